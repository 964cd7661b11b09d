package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vitwit/xsettle/types"
)

type ctxKey struct{}

// CallerFromContext returns the relay address the request was authenticated as.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(ctxKey{}).(common.Address)
	return caller, ok
}

// Authenticator verifies relay bearer tokens. The token subject is the
// address the relay delivers messages as.
type Authenticator struct {
	key    []byte
	issuer string
}

func NewAuthenticator(key []byte, issuer string) *Authenticator {
	return &Authenticator{key: key, issuer: issuer}
}

// Issue signs a token for relay valid for ttl.
func (a *Authenticator) Issue(relay common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   relay.Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns the relay address it names.
func (a *Authenticator) Verify(token string) (common.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, opts...)
	if err != nil {
		return common.Address{}, types.Wrap(types.CodeUnauthorized, err, "invalid relay token")
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, types.Errorf(types.CodeUnauthorized, "token subject %q is not an address", claims.Subject)
	}
	return common.HexToAddress(claims.Subject), nil
}

// middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (a *Authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, types.Errorf(types.CodeUnauthorized, "missing bearer token"))
			return
		}
		caller, err := a.Verify(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, caller)))
	})
}
