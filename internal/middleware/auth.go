package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"sker/internal/registry"
)

// Principal is the authenticated identity attached to
// ctx.Metadata["user"] (§4.9).
type Principal struct {
	Subject string
	Claims  map[string]any
}

// TokenExtractor pulls a bearer token out of the raw inbound request
// (an *http.Request for the HTTP transport, or nil for stdio where
// extractors fall back to other sources such as a configured static
// token).
type TokenExtractor func(ctx *registry.RequestContext) (string, bool)

// HeaderExtractor reads the token from an Authorization: Bearer header
// on ctx.Request, when present.
func HeaderExtractor() TokenExtractor {
	return func(ctx *registry.RequestContext) (string, bool) {
		req, ok := ctx.Request.(*http.Request)
		if !ok {
			return "", false
		}
		auth := req.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			return auth[len(prefix):], true
		}
		return "", false
	}
}

// TokenProvider authenticates an extracted token into a Principal.
type TokenProvider func(token string) (*Principal, error)

// JWTProvider validates a token with the given HMAC secret and maps
// its claims into a Principal. This is the minimal case the
// golang-jwt/jwt/v5 + giantswarm/mcp-oauth + golang.org/x/oauth2 stack
// supports directly; OAuth2 authorization-code/client-credentials
// flows layer in front of this as a separate TokenProvider that
// exchanges a code for a token before handing it here.
func JWTProvider(secret []byte) TokenProvider {
	return func(token string) (*Principal, error) {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("middleware: unexpected signing method")
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid {
			return nil, errors.New("middleware: invalid token")
		}
		claims, _ := parsed.Claims.(jwt.MapClaims)
		sub, _ := claims["sub"].(string)
		return &Principal{Subject: sub, Claims: claims}, nil
	}
}

// ErrUnauthenticated is returned when no extractor/provider pair
// succeeds.
var ErrUnauthenticated = errors.New("middleware: unauthenticated")

// Authentication tries each extractor in order until one yields a
// token, then each provider until one authenticates it, attaching the
// resulting Principal to ctx.Metadata["user"] (§4.9). Optional: pass
// required=false to let unauthenticated calls through with no
// principal attached.
func Authentication(id string, priority int, extractors []TokenExtractor, providers []TokenProvider, required bool) registry.MiddlewareEntry {
	return registry.MiddlewareEntry{
		ID:       id,
		Priority: priority,
		Fn: func(ctx *registry.RequestContext, next func() (any, error)) (any, error) {
			var token string
			found := false
			for _, ext := range extractors {
				if t, ok := ext(ctx); ok {
					token, found = t, true
					break
				}
			}
			if !found {
				if required {
					return nil, ErrUnauthenticated
				}
				return next()
			}

			var principal *Principal
			var lastErr error
			for _, p := range providers {
				pr, err := p(token)
				if err == nil {
					principal = pr
					break
				}
				lastErr = err
			}
			if principal == nil {
				if required {
					if lastErr == nil {
						lastErr = ErrUnauthenticated
					}
					return nil, lastErr
				}
				return next()
			}
			if ctx.Metadata == nil {
				ctx.Metadata = map[string]any{}
			}
			ctx.Metadata["user"] = principal
			return next()
		},
	}
}
