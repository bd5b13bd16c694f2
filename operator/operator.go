// Package operator carries the identity of the person acting on the ledger.
//
// Corrections must name an operator. The HTTP layer resolves one from a
// signed bearer token or, when trusted, from the X-Operator-ID header and
// stores it on the request context.
package operator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// HeaderID is the header read when header identity is trusted.
const HeaderID = "X-Operator-ID"

// ErrMissing is returned when no operator identity is present.
var ErrMissing = errors.New("fuelledger: operator identity required")

type ctxKey struct{}

// WithID returns a copy of ctx carrying operatorID.
func WithID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, operatorID)
}

// FromContext returns the operator stored on ctx.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)
	return v, ok && v != ""
}

// Config controls how the middleware resolves an operator.
type Config struct {
	// Secret verifies HS256 bearer tokens. Empty disables token identity.
	Secret []byte

	// TrustHeader accepts X-Operator-ID when no bearer token is sent.
	// Only enable behind a gateway that sets the header itself.
	TrustHeader bool

	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

// Claims are the token claims the middleware understands. The operator is
// the registered subject.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Middleware resolves the operator and stores it on the request context.
// Requests without any identity pass through; an invalid token is rejected.
func Middleware(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" && len(cfg.Secret) > 0 {
			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				abort(c, "invalid authorization header format")
				return
			}
			subject, err := Verify(cfg, tokenString)
			if err != nil {
				abort(c, "invalid token")
				return
			}
			c.Request = c.Request.WithContext(WithID(c.Request.Context(), subject))
			c.Next()
			return
		}

		if cfg.TrustHeader {
			if id := strings.TrimSpace(c.GetHeader(HeaderID)); id != "" {
				c.Request = c.Request.WithContext(WithID(c.Request.Context(), id))
			}
		}
		c.Next()
	}
}

// Require rejects requests that reached it without an operator.
func Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := FromContext(c.Request.Context()); !ok {
			abort(c, ErrMissing.Error())
			return
		}
		c.Next()
	}
}

// Verify parses tokenString and returns its subject.
func Verify(cfg Config, tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("operator: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("operator: %w", ErrMissing)
	}
	return claims.Subject, nil
}

// Issue signs a token for operatorID valid for ttl.
func Issue(cfg Config, operatorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "unauthorized",
		"message": msg,
	})
}
