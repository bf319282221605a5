package http

import (
	"net/http"

	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
)

// EdgeFilter redirects requests that carry none of the session indicator
// cookies straight to the login page, before any backend call. It only
// checks presence, never validity: the gate always runs after it.
func EdgeFilter(g *gate.Gate, cookieNames []string, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.IsPublic(r.URL.Path) || hasAnyCookie(r, cookieNames) {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.EdgeRedirects.Inc()
			}
			intent := g.Intent(r.URL.Path, r.URL.RawQuery)
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, g.LoginURL(intent, ""), http.StatusFound)
		})
	}
}

func hasAnyCookie(r *http.Request, names []string) bool {
	for _, name := range names {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return true
		}
	}
	return false
}
