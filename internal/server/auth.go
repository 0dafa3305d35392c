package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/engine/auth"
)

type identityKey struct{}

func withIdentity(ctx context.Context, u domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, u)
}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	u, ok := ctx.Value(identityKey{}).(domain.Identity)
	return u, ok
}

func identityFromRequest(ctx context.Context) (domain.Identity, huma.StatusError) {
	if u, ok := identityFromContext(ctx); ok && u.ID != "" {
		return u, nil
	}
	return domain.Identity{}, unauthorizedError()
}

// publicPaths lists the routes reachable without a bearer token.
func publicPaths(basePath string) map[string]bool {
	public := map[string]bool{}
	for _, p := range []string{"auth/register", "auth/login", "health", "openapi.json", "docs"} {
		public[path.Join(basePath, p)] = true
	}
	return public
}

// newAuthMiddleware resolves the bearer token on every non-public API
// request. The identity is re-read from storage each time, so a deleted
// user's token stops working immediately.
func newAuthMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			u, err := e.Resolve(req.Context(), req.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, auth.ErrUnauthenticated) {
					w.Header().Set("WWW-Authenticate", "Bearer")
					respondStatusError(w, unauthorizedError())
					return
				}
				respondStatusError(w, handleError(req.Context(), err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), u)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
