package rpc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	type msg struct {
		Name string `json:"name"`
	}
	data, err := Codec{}.Marshal(msg{Name: "a"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a"}`, string(data))

	var out msg
	require.NoError(t, Codec{}.Unmarshal(data, &out))
	assert.Equal(t, "a", out.Name)
	require.NoError(t, Codec{}.Unmarshal(nil, &out))
	assert.Equal(t, "json", Codec{}.Name())
}

func TestMux(t *testing.T) {
	prefix, h := Mux("/svc.v1.S/", map[string]http.Handler{
		"/svc.v1.S/Ping": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})
	assert.Equal(t, "/svc.v1.S/", prefix)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/svc.v1.S/Ping", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/svc.v1.S/Pong", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCode(t *testing.T) {
	assert.Equal(t, connect.CodeNotFound, Code(connect.NewError(connect.CodeNotFound, errors.New("x"))))
	assert.Equal(t, connect.CodeUnknown, Code(errors.New("x")))
}
