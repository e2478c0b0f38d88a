package authn

import (
	"encoding/json"
	"net/http"
	"strings"
)

// TokenExtractorFunc pulls the raw token out of a request.
type TokenExtractorFunc func(r *http.Request) (string, error)

// Middleware rejects requests without a valid bearer token with 401 and
// stores the verified Session in the request context.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return MiddlewareWithExtractor(svc, BearerTokenExtractor)
}

func MiddlewareWithExtractor(svc *Service, extract TokenExtractorFunc) func(http.Handler) http.Handler {
	if extract == nil {
		extract = BearerTokenExtractor
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extract(r)
			if err != nil {
				unauthorized(w)
				return
			}
			sess, err := svc.Verify(token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// CookieTokenExtractor reads the token from the named cookie.
func CookieTokenExtractor(name string) TokenExtractorFunc {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", ErrMissingToken
		}
		return c.Value, nil
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="billing"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Authentication required", "code": "unauthorized"})
}
