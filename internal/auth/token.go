package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken o provedor não tem credencial para entregar
var ErrNoToken = errors.New("auth: no token available")

// TokenProvider fornece uma credencial nova a cada handshake
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapta uma função a TokenProvider
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Claims represents JWT claims exchanged with the streaming server.
type Claims struct {
	UserID   string   `json:"user_id"`
	Datasets []string `json:"datasets,omitempty"`
	jwt.RegisteredClaims
}

// CanRead reports whether the token grants access to the dataset. An empty
// dataset list grants access to all datasets.
func (c *Claims) CanRead(datasetID string) bool {
	if len(c.Datasets) == 0 {
		return true
	}
	for _, d := range c.Datasets {
		if d == datasetID {
			return true
		}
	}
	return false
}

// JWTProvider mints short-lived HS256 tokens for one user.
type JWTProvider struct {
	secret   []byte
	issuer   string
	userID   string
	datasets []string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTProvider validates the secret and builds a provider.
func NewJWTProvider(secret []byte, issuer, userID string, datasets []string, ttl time.Duration) (*JWTProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	if userID == "" {
		return nil, errors.New("auth: empty user id")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWTProvider{
		secret:   secret,
		issuer:   issuer,
		userID:   userID,
		datasets: datasets,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Token implements TokenProvider.
func (p *JWTProvider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := p.now()
	claims := &Claims{
		UserID:   p.userID,
		Datasets: p.datasets,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   p.userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// ParseToken validates a JWT and returns claims.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("auth: missing user_id")
	}
	return claims, nil
}
