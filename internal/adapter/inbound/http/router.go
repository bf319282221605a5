package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
	"github.com/Sentinel-Gate/docgate/internal/service"
)

// HandlerConfig wires the gateway routes.
type HandlerConfig struct {
	Gate    *gate.Gate
	Login   *service.LoginService
	Content http.Handler

	LoginConfig  LoginConfig
	LogoutPath   string
	MaxRedirects int

	// EdgeCookieNames enables the edge filter when non-empty.
	EdgeCookieNames []string
	// TrustProxyHeaders honors X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
	SiteName          string

	Health         *HealthChecker
	Metrics        *Metrics
	MetricsHandler http.Handler
	Audit          service.AuditRecorder
	Logger         *slog.Logger
}

// NewHandler builds the gateway handler.
//
// Middleware, outermost first: metrics, request ID, real IP, security
// headers, canonical path. Routes: /health, /metrics, the login and logout paths, and
// everything else through edge filter, gate and content.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if cfg.Gate == nil || cfg.Login == nil || cfg.Content == nil {
		return nil, errors.New("http: gate, login service and content handler are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.LoginConfig.Mode == "" {
		cfg.LoginConfig.Mode = LoginModeLocal
	}

	p, err := newPages(cfg.SiteName, cfg.Logger)
	if err != nil {
		return nil, err
	}

	gm := &GateMiddleware{
		gate:         cfg.Gate,
		cookie:       cfg.LoginConfig.Cookie,
		maxRedirects: cfg.MaxRedirects,
		pages:        p,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
	}
	protected := gm.Wrap(ContentCSP(cfg.Content))
	if len(cfg.EdgeCookieNames) > 0 {
		protected = EdgeFilter(cfg.Gate, cfg.EdgeCookieNames, cfg.Metrics)(protected)
	}

	mux := http.NewServeMux()
	if cfg.Health != nil {
		mux.Handle("/health", cfg.Health.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}
	mux.Handle(cfg.Gate.LoginPath(), &LoginHandler{gate: cfg.Gate, login: cfg.Login, pages: p, cfg: cfg.LoginConfig})
	if cfg.LogoutPath != "" {
		mux.Handle(cfg.LogoutPath, &LogoutHandler{gate: cfg.Gate, login: cfg.Login, cfg: cfg.LoginConfig})
	}
	mux.Handle("/", protected)

	var handler http.Handler = CanonicalPath(mux)
	handler = SecurityHeaders(handler)
	handler = RealIPMiddleware(cfg.TrustProxyHeaders)(handler)
	handler = RequestIDMiddleware(cfg.Logger)(handler)
	if cfg.Metrics != nil {
		handler = MetricsMiddleware(cfg.Metrics)(handler)
	}
	return handler, nil
}
