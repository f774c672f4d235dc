package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/shubham-shewale/crypto-stream/pkg/models"
)

// UserDirectory resolves user ids carried in tokens.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// JWTAuthenticator validates HS256 bearer tokens and resolves the caller's tier.
type JWTAuthenticator struct {
	secret []byte
	users  UserDirectory
	clock  clockwork.Clock
	logger *zap.Logger
}

type Option func(*JWTAuthenticator)

func WithClock(c clockwork.Clock) Option {
	return func(a *JWTAuthenticator) { a.clock = c }
}

func NewJWTAuthenticator(secret string, users UserDirectory, logger *zap.Logger, opts ...Option) *JWTAuthenticator {
	a := &JWTAuthenticator{
		secret: []byte(secret),
		users:  users,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate returns the identity for token or an *Error describing the rejection.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return models.Identity{}, &Error{Kind: KindInvalidToken, Cause: err}
	}

	userID, err := userIDFrom(claims)
	if err != nil {
		return models.Identity{}, &Error{Kind: KindInvalidToken, Cause: err}
	}

	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			a.logger.Error("User lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return models.Identity{}, &Error{Kind: KindUnknownUser, Cause: err}
	}

	return user.Identity(a.clock.Now()), nil
}

func userIDFrom(claims jwt.MapClaims) (int64, error) {
	raw, ok := claims["user_id"]
	if !ok {
		return 0, errors.New("token has no user_id claim")
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("user_id %v is not an integer", v)
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("user_id %q: %w", v, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("user_id has unsupported type %T", raw)
	}
}

// TokenFromRequest reads the token query parameter, falling back to an
// Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
