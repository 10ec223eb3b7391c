// Package rpc holds the connect options shared by every service: messages
// are plain Go structs carried as JSON.
package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Codec marshals messages with encoding/json. It is registered under the
// name "json" so connect clients and handlers negotiate application/json.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{connect.WithCodec(Codec{})}
}

func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(Codec{})}
}

// Mux routes the procedures of one service under prefix, the way generated
// connect handlers do.
func Mux(prefix string, handlers map[string]http.Handler) (string, http.Handler) {
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok && strings.HasPrefix(r.URL.Path, prefix) {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// Code returns the connect code carried by err, or CodeUnknown.
func Code(err error) connect.Code {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return connect.CodeUnknown
}
