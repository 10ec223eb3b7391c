// Package auth issues and verifies the signed tokens that identify players.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing token")
	ErrInvalidName  = errors.New("name must be between 1 and 40 characters")
)

const maxNameLength = 40

// DevUser is the identity used for requests without a token in dev mode.
var DevUser = models.User{
	ID:        "dev-user",
	Name:      "Dev User",
	Email:     "dev@example.com",
	AvatarURL: models.AvatarURL("dev"),
}

type claims struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret  string
	TTL     time.Duration
	DevMode bool
}

type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	devMode bool
	clock   clockwork.Clock
}

func NewAuthenticator(cfg Config, clock clockwork.Clock) *Authenticator {
	return &Authenticator{
		secret:  []byte(cfg.Secret),
		ttl:     cfg.TTL,
		devMode: cfg.DevMode,
		clock:   clock,
	}
}

// Issue signs a token for user.
func (a *Authenticator) Issue(user models.User) (string, error) {
	now := a.clock.Now()
	c := claims{
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the user it was issued for.
func (a *Authenticator) Verify(token string) (models.User, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return models.User{}, ErrInvalidToken
	}
	return models.User{
		ID:        c.Subject,
		Name:      c.Name,
		Email:     c.Email,
		AvatarURL: c.AvatarURL,
	}, nil
}

// Authenticate verifies token. In dev mode an empty token resolves to DevUser.
func (a *Authenticator) Authenticate(token string) (models.User, error) {
	if token == "" {
		if a.devMode {
			return DevUser, nil
		}
		return models.User{}, ErrMissingToken
	}
	return a.Verify(token)
}

// AuthenticateRequest reads the bearer token from the Authorization header,
// falling back to the token query parameter used by browser websockets.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (models.User, error) {
	return a.Authenticate(TokenFromRequest(r))
}

func TokenFromRequest(r *http.Request) string {
	if token := BearerToken(r.Header); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(h http.Header) string {
	token, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// SignInGuest creates a guest identity with a random avatar and signs a token for it.
func (a *Authenticator) SignInGuest(name string) (models.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return models.User{}, "", ErrInvalidName
	}

	id := uuid.NewString()
	user := models.User{
		ID:        "guest-" + id,
		Name:      name,
		AvatarURL: models.AvatarURL(id),
	}
	token, err := a.Issue(user)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}
