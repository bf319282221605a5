package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/docgate/internal/domain/audit"
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/policy"
	"github.com/Sentinel-Gate/docgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// User-visible login messages.
const (
	MessageInsufficientAccess = "insufficient access"
	MessageNoRole             = "your account has no access role assigned"
	MessageRoleLookupFailed   = "could not verify your access, please try again"
	MessageInProgress         = "sign-in already in progress"
	MessageRateLimited        = "too many sign-in attempts, please wait and try again"
	MessageMissingFields      = "email and password are required"
)

// LoginFailure classifies a failed login submit.
type LoginFailure string

const (
	FailureInvalidInput LoginFailure = "invalid_input"
	FailureRateLimited  LoginFailure = "rate_limited"
	FailureInProgress   LoginFailure = "in_progress"
	FailureCredentials  LoginFailure = "credentials"
	FailureBackend      LoginFailure = "backend"
	FailureRoleLookup   LoginFailure = "role_lookup"
	FailureNotAllowed   LoginFailure = "insufficient_access"
)

// LoginResultSuccess is the result label for a successful submit.
const LoginResultSuccess = "success"

// LoginError is returned by Submit. Message is safe to show to the viewer.
type LoginError struct {
	Failure    LoginFailure
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login %s: %s: %v", e.Failure, e.Message, e.Err)
	}
	return fmt.Sprintf("login %s: %s", e.Failure, e.Message)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// Status maps the failure to an HTTP status code.
func (e *LoginError) Status() int {
	switch e.Failure {
	case FailureInvalidInput:
		return http.StatusBadRequest
	case FailureRateLimited:
		return http.StatusTooManyRequests
	case FailureInProgress:
		return http.StatusConflict
	case FailureCredentials:
		return http.StatusUnauthorized
	case FailureBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

// LoginRequest is one local-form submit. Password is used for the single
// sign-in call and never retained.
type LoginRequest struct {
	Email     string `validate:"required"`
	Password  string `validate:"required"`
	Intent    string
	ClientIP  string
	UserAgent string
	RequestID string
}

// LoginResult is a successful submit.
type LoginResult struct {
	Session  *session.Session
	Role     auth.Role
	Redirect string
}

// LoginObserver receives one call per submit with the result label.
type LoginObserver interface {
	ObserveLogin(result string)
}

// AuditRecorder accepts audit records without blocking.
type AuditRecorder interface {
	Record(record audit.AuditRecord)
}

// IntentSanitizer turns an untrusted redirect value into a site-relative
// path.
type IntentSanitizer interface {
	SanitizeIntent(raw string) string
}

// LoginConfig holds login limits.
type LoginConfig struct {
	// RateLimit applies per client IP. Rate 0 disables limiting.
	RateLimit ratelimit.RateLimitConfig
	// Timeout bounds each backend call.
	Timeout time.Duration
}

// LoginService runs the local-form login: sign in, resolve the role,
// check the access policy and consume the redirect intent.
type LoginService struct {
	store     session.Store
	roles     auth.RoleResolver
	policy    policy.Engine
	intents   IntentSanitizer
	limiter   ratelimit.RateLimiter
	cfg       LoginConfig
	validate  *validator.Validate
	logger    *slog.Logger
	audit     AuditRecorder
	observer  LoginObserver
	tracer    trace.Tracer
	inflight  map[string]struct{}
	inflightM sync.Mutex
}

// LoginOption configures LoginService.
type LoginOption func(*LoginService)

// WithLoginAudit sets the audit recorder.
func WithLoginAudit(r AuditRecorder) LoginOption {
	return func(s *LoginService) { s.audit = r }
}

// WithLoginObserver sets the metrics observer.
func WithLoginObserver(o LoginObserver) LoginOption {
	return func(s *LoginService) { s.observer = o }
}

// WithLoginRateLimiter enables per-IP submit limiting.
func WithLoginRateLimiter(l ratelimit.RateLimiter) LoginOption {
	return func(s *LoginService) { s.limiter = l }
}

// WithLoginTracer overrides the tracer taken from the global provider.
func WithLoginTracer(t trace.Tracer) LoginOption {
	return func(s *LoginService) { s.tracer = t }
}

// NewLoginService creates a LoginService.
func NewLoginService(store session.Store, roles auth.RoleResolver, engine policy.Engine, intents IntentSanitizer, cfg LoginConfig, logger *slog.Logger, opts ...LoginOption) *LoginService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	s := &LoginService{
		store:    store,
		roles:    roles,
		policy:   engine,
		intents:  intents,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
		tracer:   otel.Tracer("github.com/Sentinel-Gate/docgate/internal/service"),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit handles one login form submit.
func (s *LoginService) Submit(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "login.submit", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	req.Email = strings.TrimSpace(req.Email)
	intent := s.intents.SanitizeIntent(req.Intent)

	defer func() {
		label := LoginResultSuccess
		var lerr *LoginError
		if errors.As(err, &lerr) {
			label = string(lerr.Failure)
			span.SetStatus(codes.Error, label)
		}
		span.SetAttributes(attribute.String("login.result", label))
		if s.observer != nil {
			s.observer.ObserveLogin(label)
		}
		s.record(req, result, lerr, intent, time.Since(start))
	}()

	if verr := s.validate.Struct(req); verr != nil {
		return nil, &LoginError{Failure: FailureInvalidInput, Message: MessageMissingFields}
	}

	if s.limiter != nil && s.cfg.RateLimit.Rate > 0 {
		key := ratelimit.FormatKey(ratelimit.KeyTypeLogin, req.ClientIP)
		res, lerr := s.limiter.Allow(ctx, key, s.cfg.RateLimit)
		if lerr != nil {
			s.logger.Warn("login rate limiter failed", "error", lerr)
		} else if !res.Allowed {
			return nil, &LoginError{Failure: FailureRateLimited, Message: MessageRateLimited, RetryAfter: res.RetryAfter}
		}
	}

	release, ok := s.acquire(req.ClientIP, req.Email)
	if !ok {
		return nil, &LoginError{Failure: FailureInProgress, Message: MessageInProgress}
	}
	defer release()

	sess, err := s.signIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, sess)
	if err != nil {
		s.signOut(ctx, sess)
		return nil, err
	}

	allowed, perr := s.allows(ctx, sess, role, intent)
	if perr != nil || !allowed {
		s.signOut(ctx, sess)
		if perr != nil {
			s.logger.Error("access policy evaluation failed at login", "error", perr)
		}
		return nil, &LoginError{Failure: FailureNotAllowed, Message: MessageInsufficientAccess, Err: perr}
	}

	s.logger.Info("login succeeded", "identity_id", sess.IdentityID, "role", role)
	return &LoginResult{Session: sess, Role: role, Redirect: intent}, nil
}

// acquire marks a sign-in for (ip, email) as pending. The second caller
// gets ok=false until release runs.
func (s *LoginService) acquire(ip, email string) (release func(), ok bool) {
	key := ip + "|" + strings.ToLower(email)
	s.inflightM.Lock()
	defer s.inflightM.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, false
	}
	s.inflight[key] = struct{}{}
	return func() {
		s.inflightM.Lock()
		delete(s.inflight, key)
		s.inflightM.Unlock()
	}, true
}

func (s *LoginService) signIn(ctx context.Context, email, password string) (*session.Session, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	sess, err := s.store.SignInWithPassword(callCtx, email, password)
	if err == nil {
		return sess, nil
	}

	var serr *session.SignInError
	if errors.As(err, &serr) {
		failure := FailureBackend
		if serr.Kind == session.SignInCredentialsInvalid {
			failure = FailureCredentials
		}
		return nil, &LoginError{Failure: failure, Message: serr.Message, Err: err}
	}
	return nil, &LoginError{Failure: FailureBackend, Message: "authentication service unavailable", Err: err}
}

func (s *LoginService) resolveRole(ctx context.Context, sess *session.Session) (auth.Role, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	role, err := s.roles.GetRole(callCtx, auth.Identity{
		ID:          sess.IdentityID,
		Email:       sess.Email,
		AccessToken: sess.AccessToken,
	})
	switch {
	case err == nil:
		return role, nil
	case errors.Is(err, auth.ErrRoleNotFound):
		return "", &LoginError{Failure: FailureRoleLookup, Message: MessageNoRole, Err: err}
	default:
		s.logger.Error("role lookup failed at login", "identity_id", sess.IdentityID, "error", err)
		return "", &LoginError{Failure: FailureRoleLookup, Message: MessageRoleLookupFailed, Err: err}
	}
}

func (s *LoginService) allows(ctx context.Context, sess *session.Session, role auth.Role, intent string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	p, _, _ := strings.Cut(intent, "?")
	return s.policy.Allows(callCtx, policy.EvaluationContext{
		Role:       role,
		IdentityID: sess.IdentityID,
		Email:      sess.Email,
		Path:       p,
	})
}

// signOut terminates a session created by this submit. It runs even when
// the request context is already cancelled.
func (s *LoginService) signOut(ctx context.Context, sess *session.Session) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	if err := s.store.SignOut(callCtx, sess.AccessToken); err != nil {
		s.logger.Warn("sign-out after rejected login failed", "identity_id", sess.IdentityID, "error", err)
	}
}

// SignOut ends the session for token, used by the logout handler.
func (s *LoginService) SignOut(ctx context.Context, token string, req LoginRequest) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	err := s.store.SignOut(callCtx, token)
	if s.audit != nil {
		rec := audit.AuditRecord{
			Timestamp: time.Now().UTC(),
			EventType: audit.EventTypeLogout,
			RequestID: req.RequestID,
			Decision:  audit.DecisionAllow,
			Outcome:   "SIGNED_OUT",
			SourceIP:  req.ClientIP,
			UserAgent: req.UserAgent,
		}
		if err != nil {
			rec.Reason = err.Error()
		}
		s.audit.Record(rec)
	}
	return err
}

func (s *LoginService) record(req LoginRequest, result *LoginResult, lerr *LoginError, intent string, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	rec := audit.AuditRecord{
		Timestamp:     time.Now().UTC(),
		RequestID:     req.RequestID,
		Email:         req.Email,
		Path:          intent,
		SourceIP:      req.ClientIP,
		UserAgent:     req.UserAgent,
		LatencyMicros: elapsed.Microseconds(),
	}
	if lerr != nil {
		rec.EventType = audit.EventTypeLoginFailed
		rec.Decision = audit.DecisionDeny
		rec.Outcome = string(lerr.Failure)
		rec.Reason = lerr.Message
	} else if result != nil {
		rec.EventType = audit.EventTypeLogin
		rec.Decision = audit.DecisionAllow
		rec.Outcome = LoginResultSuccess
		rec.SessionID = result.Session.ID
		rec.IdentityID = result.Session.IdentityID
		rec.Role = result.Role.String()
	}
	s.audit.Record(rec)
}
