package auth

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumscope/go/internal/models"
	"github.com/mcdev12/scrumscope/go/internal/rpc"
)

const AuthServiceName = "scrumscope.v1.AuthService"

const SignInGuestProcedure = "/scrumscope.v1.AuthService/SignInGuest"

type SignInGuestRequest struct {
	Name string `json:"name"`
}

type SignInGuestResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// Service implements the AuthService RPCs.
type Service struct {
	auth *Authenticator
}

func NewService(a *Authenticator) *Service {
	return &Service{auth: a}
}

func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(rpc.HandlerOptions(), opts...)
	return rpc.Mux("/"+AuthServiceName+"/", map[string]http.Handler{
		SignInGuestProcedure: connect.NewUnaryHandler(SignInGuestProcedure, s.SignInGuest, opts...),
	})
}

func (s *Service) SignInGuest(ctx context.Context, req *connect.Request[SignInGuestRequest]) (*connect.Response[SignInGuestResponse], error) {
	user, token, err := s.auth.SignInGuest(req.Msg.Name)
	if err != nil {
		if errors.Is(err, ErrInvalidName) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	log.Info().Str("user_id", user.ID).Msg("guest signed in")
	return connect.NewResponse(&SignInGuestResponse{User: user, Token: token}), nil
}

// NewSignInGuestClient returns a client for the SignInGuest procedure at baseURL.
func NewSignInGuestClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[SignInGuestRequest, SignInGuestResponse] {
	opts = append(rpc.ClientOptions(), opts...)
	return connect.NewClient[SignInGuestRequest, SignInGuestResponse](httpClient, baseURL+SignInGuestProcedure, opts...)
}
