package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/ctxkey"
	"github.com/Sentinel-Gate/docgate/internal/domain/audit"
	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
	"github.com/Sentinel-Gate/docgate/internal/service"
)

// loopCookieName counts consecutive gate redirects for one browser.
const loopCookieName = "docgate_redirects"

// loopWindow is how long a redirect count is remembered.
const loopWindow = 30 * time.Second

// DefaultMaxRedirects is the number of consecutive gate redirects allowed
// before the loop is broken with an error page.
const DefaultMaxRedirects = 5

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// GateMiddleware evaluates the auth gate exactly once per request. ALLOW
// stores the decision in the request context and calls next; any DENY
// redirects to the login page. A viewer who went away before the decision
// was made gets nothing written.
type GateMiddleware struct {
	gate         *gate.Gate
	cookie       CookieConfig
	maxRedirects int
	pages        *pages
	audit        service.AuditRecorder
	metrics      *Metrics
}

func (m *GateMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())
		token := sessionToken(r, m.cookie.Name)

		d := m.gate.Evaluate(r.Context(), gate.Request{
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Token:    token,
		})

		if r.Context().Err() != nil {
			logger.Debug("viewer left before gate decision, discarding", "path", r.URL.Path, "outcome", d.Outcome)
			return
		}

		if !d.Bypassed {
			m.record(r, d)
		}

		if d.Allowed() {
			if !d.Bypassed {
				clearLoopCookie(w, r, m.cookie.Secure)
			}
			ctx := context.WithValue(r.Context(), ctxkey.DecisionKey{}, d)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		switch {
		case errors.Is(d.Err, session.ErrNoSession):
			logger.Debug("gate denied: no session", "path", r.URL.Path)
		case d.Outcome == gate.OutcomeDenyWrongRole:
			logger.Info("gate denied: role not allowed", "path", r.URL.Path, "role", d.Role)
		default:
			logger.Warn("gate denied", "path", r.URL.Path, "outcome", d.Outcome, "error", d.Err)
		}

		// The token is dead or signed out; drop it so the next round trip
		// does not resend it.
		if token != "" && d.Outcome != gate.OutcomeDenyError {
			clearSessionCookie(w, m.cookie)
		}

		count := loopCount(r) + 1
		if count > m.maxRedirects {
			logger.Warn("redirect loop detected, rendering error page", "path", r.URL.Path, "redirects", count-1)
			if m.metrics != nil {
				m.metrics.RedirectLoops.Inc()
			}
			clearLoopCookie(w, r, m.cookie.Secure)
			m.pages.error(w, http.StatusForbidden, errorPage{
				Title:    "Unable to sign you in",
				Message:  "Your browser was sent to the sign-in page too many times in a row. Check that cookies are enabled for this site, then try again.",
				LinkURL:  m.gate.LoginPath(),
				LinkText: "Go to sign in",
			})
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     loopCookieName,
			Value:    strconv.Itoa(count),
			Path:     "/",
			MaxAge:   int(loopWindow / time.Second),
			HttpOnly: true,
			Secure:   m.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})

		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, d.Redirect, http.StatusFound)
	})
}

func (m *GateMiddleware) record(r *http.Request, d gate.Decision) {
	if m.audit == nil {
		return
	}
	rec := audit.AuditRecord{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventTypeGate,
		RequestID: RequestIDFromContext(r.Context()),
		Path:      r.URL.Path,
		Decision:  audit.DecisionDeny,
		Outcome:   d.Outcome.String(),
		Role:      d.Role.String(),
		SourceIP:  ClientIP(r.Context()),
		UserAgent: r.UserAgent(),
	}
	if d.Allowed() {
		rec.Decision = audit.DecisionAllow
	}
	if d.Session != nil {
		rec.SessionID = d.Session.ID
		rec.IdentityID = d.Session.IdentityID
		rec.Email = d.Session.Email
	}
	if d.Err != nil && d.Outcome == gate.OutcomeDenyError {
		rec.Reason = d.Err.Error()
	}
	m.audit.Record(rec)
}

// DecisionFromContext returns the gate decision stored for this request.
func DecisionFromContext(ctx context.Context) (gate.Decision, bool) {
	d, ok := ctx.Value(ctxkey.DecisionKey{}).(gate.Decision)
	return d, ok
}

func sessionToken(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func loopCount(r *http.Request) int {
	c, err := r.Cookie(loopCookieName)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(c.Value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func clearLoopCookie(w http.ResponseWriter, r *http.Request, secure bool) {
	if _, err := r.Cookie(loopCookieName); err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loopCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func setSessionCookie(w http.ResponseWriter, cfg CookieConfig, sess *session.Session) {
	c := &http.Cookie{
		Name:     cfg.Name,
		Value:    sess.AccessToken,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl := sess.TTL(); ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
	}
	http.SetCookie(w, c)
}

func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
