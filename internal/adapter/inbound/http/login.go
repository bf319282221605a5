package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
	"github.com/Sentinel-Gate/docgate/internal/service"
)

// Login modes.
const (
	LoginModeLocal     = "local"
	LoginModeDelegated = "delegated"
)

// maxLoginFormBytes bounds the login POST body.
const maxLoginFormBytes = 64 << 10

// LoginConfig configures the login and logout handlers.
type LoginConfig struct {
	Mode string
	// DelegatedURL is the external identity dashboard (delegated mode).
	DelegatedURL string
	// PublicURL is this site's external origin, used to build the return
	// target for the delegated provider. Empty sends a relative target.
	PublicURL string
	Cookie    CookieConfig
}

// errorMessages maps the login page error codes the gateway emits to
// their message. Unknown codes are ignored, so the query cannot inject text.
var errorMessages = map[string]string{
	gate.ErrorCodeInsufficientAccess: service.MessageInsufficientAccess,
}

// LoginHandler serves the login path in delegated or local-form mode.
type LoginHandler struct {
	gate  *gate.Gate
	login *service.LoginService
	pages *pages
	cfg   LoginConfig
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		if h.cfg.Mode == LoginModeDelegated {
			h.delegate(w, r)
			return
		}
		h.showForm(w, r)
	case r.Method == http.MethodPost && h.cfg.Mode == LoginModeLocal:
		h.submit(w, r)
	default:
		allow := "GET, HEAD"
		if h.cfg.Mode == LoginModeLocal {
			allow += ", POST"
		}
		w.Header().Set("Allow", allow)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}
}

// delegate hands the viewer to the external identity provider with the
// redirect target encoded once.
func (h *LoginHandler) delegate(w http.ResponseWriter, r *http.Request) {
	intent := h.gate.SanitizeIntent(r.URL.Query().Get("redirect"))
	target := strings.TrimRight(h.cfg.PublicURL, "/") + intent
	location := strings.TrimRight(h.cfg.DelegatedURL, "/") + "/auth?redirect=" + url.QueryEscape(target)

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *LoginHandler) showForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Reaching the form ends a gate redirect chain.
	clearLoopCookie(w, r, h.cfg.Cookie.Secure)

	h.pages.login(w, http.StatusOK, loginPage{
		Action:    h.gate.LoginPath(),
		Intent:    h.gate.SanitizeIntent(q.Get("redirect")),
		Error:     errorMessages[q.Get("error")],
		CSRFToken: ensureCSRFCookie(w, r, h.cfg.Cookie.Secure),
	})
}

func (h *LoginHandler) submit(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxLoginFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	intent := h.gate.SanitizeIntent(r.PostForm.Get("redirect"))
	email := strings.TrimSpace(r.PostForm.Get("email"))
	form := loginPage{
		Action: h.gate.LoginPath(),
		Intent: intent,
		Email:  email,
	}

	if !validCSRF(r) {
		logger.Warn("login rejected: CSRF token mismatch")
		form.Error = "Your sign-in form expired. Please try again."
		form.CSRFToken = ensureCSRFCookie(w, r, h.cfg.Cookie.Secure)
		h.pages.login(w, http.StatusForbidden, form)
		return
	}
	form.CSRFToken = ensureCSRFCookie(w, r, h.cfg.Cookie.Secure)

	res, err := h.login.Submit(r.Context(), service.LoginRequest{
		Email:     email,
		Password:  r.PostForm.Get("password"),
		Intent:    intent,
		ClientIP:  ClientIP(r.Context()),
		UserAgent: r.UserAgent(),
		RequestID: RequestIDFromContext(r.Context()),
	})
	if err != nil {
		var lerr *service.LoginError
		if !errors.As(err, &lerr) {
			logger.Error("login failed unexpectedly", "error", err)
			lerr = &service.LoginError{Failure: service.FailureBackend, Message: "authentication service unavailable"}
		}
		logger.Info("login rejected", "result", lerr.Failure)
		if lerr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int((lerr.RetryAfter+time.Second-1)/time.Second)))
		}
		form.Error = lerr.Message
		h.pages.login(w, lerr.Status(), form)
		return
	}

	setSessionCookie(w, h.cfg.Cookie, res.Session)
	clearLoopCookie(w, r, h.cfg.Cookie.Secure)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
}

// LogoutHandler signs the viewer out and sends them to the login page.
type LogoutHandler struct {
	gate  *gate.Gate
	login *service.LoginService
	cfg   LoginConfig
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if token := sessionToken(r, h.cfg.Cookie.Name); token != "" {
		err := h.login.SignOut(r.Context(), token, service.LoginRequest{
			ClientIP:  ClientIP(r.Context()),
			UserAgent: r.UserAgent(),
			RequestID: RequestIDFromContext(r.Context()),
		})
		if err != nil {
			LoggerFromContext(r.Context()).Warn("sign-out failed", "error", err)
		}
	}
	clearSessionCookie(w, h.cfg.Cookie)

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.gate.LoginPath(), http.StatusSeeOther)
}
