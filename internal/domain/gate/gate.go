package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/policy"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// DefaultTimeout bounds each backend call when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// signOutTimeout bounds the forced sign-out after a wrong-role decision.
const signOutTimeout = 5 * time.Second

// Config holds the gate paths and limits.
type Config struct {
	LoginPath   string
	LogoutPath  string
	PublicPaths []string
	CacheTTL    time.Duration
	Timeout     time.Duration
}

// Observer receives one call per evaluation. Implementations must be cheap.
type Observer interface {
	ObserveDecision(d Decision, elapsed time.Duration)
	ObserveViewCache(hit bool)
}

type noopObserver struct{}

func (noopObserver) ObserveDecision(Decision, time.Duration) {}
func (noopObserver) ObserveViewCache(bool) {}

// Gate composes the session store, role resolver and access policy into a
// per-request decision.
type Gate struct {
	store    session.Store
	roles    auth.RoleResolver
	policy   policy.Engine
	cfg      Config
	bypass   *PathMatcher
	loop     *PathMatcher
	cache    *viewCache
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	unsub    func()
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) {
		g.tracer = t
	}
}

// New creates a gate and subscribes it to the store's sign-out events.
// Call Close to drop the subscription.
func New(store session.Store, roles auth.RoleResolver, engine policy.Engine, cfg Config, opts ...Option) (*Gate, error) {
	if store == nil || roles == nil || engine == nil {
		return nil, errors.New("gate: session store, role resolver and policy are required")
	}
	if cfg.LoginPath == "" || cfg.LoginPath[0] != '/' {
		return nil, fmt.Errorf("gate: login path %q must start with /", cfg.LoginPath)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	loopPaths := []string{cfg.LoginPath}
	if cfg.LogoutPath != "" {
		loopPaths = append(loopPaths, cfg.LogoutPath)
	}

	g := &Gate{
		store:    store,
		roles:    roles,
		policy:   engine,
		cfg:      cfg,
		bypass:   NewPathMatcher(cfg.PublicPaths...),
		loop:     NewPathMatcher(loopPaths...),
		cache:    newViewCache(cfg.CacheTTL),
		logger:   slog.Default(),
		observer: noopObserver{},
		tracer:   otel.Tracer("github.com/Sentinel-Gate/docgate/internal/domain/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.unsub = store.Subscribe(g.onAuthEvent)
	return g, nil
}

// Close drops the store subscription.
func (g *Gate) Close() {
	if g.unsub != nil {
		g.unsub()
	}
}

// LoginPath returns the configured login path.
func (g *Gate) LoginPath() string { return g.cfg.LoginPath }

// IsPublic reports whether the path bypasses evaluation.
func (g *Gate) IsPublic(path string) bool { return g.isBypassed(canonicalPath(path)) }

// isBypassed expects a canonical path. Login and logout match exactly;
// public entries match by prefix.
func (g *Gate) isBypassed(p string) bool {
	if p == g.cfg.LoginPath || (g.cfg.LogoutPath != "" && p == g.cfg.LogoutPath) {
		return true
	}
	return g.bypass.Match(p)
}

// Intent returns the sanitized redirect intent for a path and raw query.
func (g *Gate) Intent(path, rawQuery string) string {
	raw := canonicalPath(path)
	if rawQuery != "" {
		raw += "?" + rawQuery
	}
	return sanitizeIntent(raw, g.loop)
}

// SanitizeIntent validates an intent received from a client (login form,
// redirect query parameter).
func (g *Gate) SanitizeIntent(raw string) string {
	return sanitizeIntent(raw, g.loop)
}

// LoginURL returns the login location carrying intent and an optional error code.
func (g *Gate) LoginURL(intent, errorCode string) string {
	return loginURL(g.cfg.LoginPath, g.SanitizeIntent(intent), errorCode)
}

// Evaluate decides whether the viewer behind req may see req.Path.
// It never panics and never fails open: any unexpected failure is DENY_ERROR.
func (g *Gate) Evaluate(ctx context.Context, req Request) (d Decision) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.evaluate", trace.WithAttributes(attribute.String("http.path", req.Path)))

	p := canonicalPath(req.Path)
	intent := g.Intent(p, req.RawQuery)

	defer func() {
		if r := recover(); r != nil {
			g.cache.evict(req.Token)
			d = g.deny(OutcomeDenyError, intent, fmt.Errorf("panic during evaluation: %v", r))
			g.logger.Error("gate evaluation panicked", "path", req.Path, "panic", r)
		}

		span.SetAttributes(
			attribute.String("gate.outcome", d.Outcome.String()),
			attribute.Bool("gate.bypassed", d.Bypassed),
			attribute.Bool("gate.cached", d.Cached),
		)
		if d.Err != nil {
			span.SetStatus(codes.Error, d.Err.Error())
		}
		span.End()
		g.observer.ObserveDecision(d, time.Since(start))
	}()

	if g.isBypassed(p) {
		return Decision{Outcome: OutcomeAllow, Bypassed: true, Intent: intent}
	}

	if req.Token == "" {
		return g.deny(OutcomeDenyNoSession, intent, session.ErrNoSession)
	}

	v, cached, outcome, err := g.resolve(ctx, req.Token)
	if err != nil {
		g.cache.evict(req.Token)
		return g.deny(outcome, intent, err)
	}

	allowed, err := g.allows(ctx, v, p)
	if err != nil {
		g.cache.evict(req.Token)
		return g.deny(OutcomeDenyError, intent, fmt.Errorf("policy evaluation: %w", err))
	}

	if !allowed {
		g.cache.evict(req.Token)
		g.forceSignOut(ctx, req.Token, v.session)
		d := g.deny(OutcomeDenyWrongRole, intent, fmt.Errorf("role %q not allowed", v.role))
		d.Session = v.session
		d.Role = v.role
		d.Cached = cached
		return d
	}

	return Decision{
		Outcome: OutcomeAllow,
		Intent:  intent,
		Session: v.session,
		Role:    v.role,
		Cached:  cached,
	}
}

// resolve returns the (session, role) view for token, from cache or backends.
func (g *Gate) resolve(ctx context.Context, token string) (view, bool, Outcome, error) {
	if v, ok := g.cache.get(token); ok {
		g.observer.ObserveViewCache(true)
		return v, true, "", nil
	}
	g.observer.ObserveViewCache(false)

	sessCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	sess, err := g.store.GetSession(sessCtx, token)
	cancel()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return view{}, false, OutcomeDenyNoSession, err
		}
		return view{}, false, OutcomeDenyError, fmt.Errorf("session lookup: %w", err)
	}
	if sess == nil || sess.IsExpired() {
		return view{}, false, OutcomeDenyNoSession, session.ErrNoSession
	}

	roleCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	role, err := g.roles.GetRole(roleCtx, auth.Identity{
		ID:          sess.IdentityID,
		Email:       sess.Email,
		AccessToken: sess.AccessToken,
	})
	cancel()
	if err != nil {
		return view{}, false, OutcomeDenyError, fmt.Errorf("role lookup: %w", err)
	}

	g.cache.put(token, sess, role)
	return view{session: sess, role: role}, false, "", nil
}

func (g *Gate) allows(ctx context.Context, v view, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	return g.policy.Allows(ctx, policy.EvaluationContext{
		Role:       v.role,
		IdentityID: v.session.IdentityID,
		Email:      v.session.Email,
		Path:       path,
	})
}

// forceSignOut terminates a session whose role is not allowed. It runs even
// if the request was cancelled, so a stale session cannot be reused.
func (g *Gate) forceSignOut(ctx context.Context, token string, sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signOutTimeout)
	defer cancel()
	if err := g.store.SignOut(ctx, token); err != nil {
		g.logger.Warn("forced sign-out failed", "identity_id", sess.IdentityID, "error", err)
	}
}

func (g *Gate) deny(outcome Outcome, intent string, err error) Decision {
	code := ""
	if outcome == OutcomeDenyWrongRole {
		code = ErrorCodeInsufficientAccess
	}
	return Decision{
		Outcome:  outcome,
		Intent:   intent,
		Redirect: loginURL(g.cfg.LoginPath, intent, code),
		Err:      err,
	}
}

func (g *Gate) onAuthEvent(evt session.Event) {
	if evt.Type != session.EventSignedOut {
		return
	}
	if evt.AccessToken != "" {
		g.cache.evict(evt.AccessToken)
		return
	}
	g.cache.evictIdentity(evt.IdentityID)
}
