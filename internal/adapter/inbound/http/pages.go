package http

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templatesFS embed.FS

// csrfCookieName holds the double-submit token for the login form.
const csrfCookieName = "docgate_csrf"

type loginPage struct {
	SiteName  string
	Action    string
	Intent    string
	Email     string
	Error     string
	CSRFToken string
}

type errorPage struct {
	SiteName string
	Title    string
	Message  string
	LinkURL  string
	LinkText string
}

// pages renders the gateway's own HTML.
type pages struct {
	tmpl     *template.Template
	siteName string
	logger   *slog.Logger
}

func newPages(siteName string, logger *slog.Logger) (*pages, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if siteName == "" {
		siteName = "Documentation"
	}
	return &pages{tmpl: tmpl, siteName: siteName, logger: logger}, nil
}

func (p *pages) render(w http.ResponseWriter, name string, status int, data any) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("failed to render page", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	setPageCSP(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (p *pages) login(w http.ResponseWriter, status int, data loginPage) {
	data.SiteName = p.siteName
	p.render(w, "login.html", status, data)
}

func (p *pages) error(w http.ResponseWriter, status int, data errorPage) {
	data.SiteName = p.siteName
	p.render(w, "error.html", status, data)
}

// ensureCSRFCookie returns the viewer's CSRF token, setting a new cookie
// when none is present.
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, secure bool) string {
	if c, err := r.Cookie(csrfCookieName); err == nil && len(c.Value) == 64 {
		return c.Value
	}
	token := generateCSRFToken()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   3600,
	})
	return token
}

// validCSRF checks the form token against the cookie.
func validCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	form := r.PostFormValue("csrf_token")
	return subtle.ConstantTimeCompare([]byte(form), []byte(c.Value)) == 1
}

func generateCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
