package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig enables HS256 bearer auth when Secret is set. Issuer and
// Audience are checked only when non-empty.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") { return "", false }
	tok := strings.TrimSpace(h[len("Bearer "):])
	return tok, tok != ""
}

// authJWT returns a middleware that enforces Authorization: Bearer JWT (HS256),
// or nil when no secret is configured.
func authJWT(cfg AuthConfig) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// allow unauthenticated for health, metrics and the catalog
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/v1/dictionary/") {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := parseBearerToken(r)
			if !ok {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			tok, err := parser.ParseWithClaims(raw, &jwt.RegisteredClaims{}, keyFunc)
			if err != nil || !tok.Valid {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
