package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/Sentinel-Gate/docgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/content"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/gotrue"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/postgrest"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/sqlrole"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/docgate/internal/config"
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
	"github.com/Sentinel-Gate/docgate/internal/domain/policy"
	"github.com/Sentinel-Gate/docgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
	"github.com/Sentinel-Gate/docgate/internal/service"
	"github.com/Sentinel-Gate/docgate/internal/telemetry"
)

const instrumentationName = "github.com/Sentinel-Gate/docgate"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the docgate gateway.

Every request outside the public paths is checked by the auth gate.
Allowed viewers get content from the configured source (a local
directory, an S3 bucket or an upstream server). Everyone else is
sent to the login page.

Examples:
  # Start with config file settings
  docgate start

  # Local development: debug logging, insecure cookies, admin and developer allowed
  docgate start --dev

  # Start with a specific config file
  docgate --config /path/to/docgate.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, relaxed cookie settings)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so the --dev flag applies first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C is a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("docgate stopped")
	return nil
}

// sessionBackend is the session store plus the pieces only the local
// backend has.
type sessionBackend struct {
	store  session.Store
	local  *service.LocalAuthService
	memory *memory.MemorySessionStore
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode: session cookies are not marked Secure")
	}

	// Telemetry first so the gate and login spans have a provider.
	providers, err := telemetry.Setup(telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "docgate",
		Version:        Version,
		SampleRatio:    cfg.Tracing.SampleRatio,
		MetricInterval: config.Duration(cfg.Tracing.MetricInterval, telemetry.DefaultMetricInterval),
		// stdout carries the audit stream.
		Writer: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()
	tracer := otel.Tracer(instrumentationName)

	// Session store.
	sessions, err := buildSessionBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if sessions.memory != nil {
		defer sessions.memory.Stop()
	}

	// Role resolver.
	roles, rolesProbe, closeRoles, err := buildRoleResolver(ctx, cfg, sessions, logger)
	if err != nil {
		return err
	}
	defer closeRoles()

	engine, err := buildPolicy(cfg.Policy)
	if err != nil {
		return err
	}

	// Metrics. The registry is private so tests and multiple gateways in
	// one process never collide on the default registerer.
	var metrics *http.Metrics
	var metricsHandler stdhttp.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = http.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	var observer gate.Observer
	if metrics != nil {
		observer = metrics
	}
	if cfg.Tracing.Enabled {
		otelObserver, err := telemetry.NewGateObserver(otel.Meter(instrumentationName), observer)
		if err != nil {
			return fmt.Errorf("failed to create gate instruments: %w", err)
		}
		observer = otelObserver
	}

	gateOpts := []gate.Option{gate.WithLogger(logger), gate.WithTracer(tracer)}
	if observer != nil {
		gateOpts = append(gateOpts, gate.WithObserver(observer))
	}
	g, err := gate.New(sessions.store, roles, engine, gate.Config{
		LoginPath:   cfg.Auth.LoginPath,
		LogoutPath:  cfg.Auth.LogoutPath,
		PublicPaths: cfg.Auth.PublicPaths,
		CacheTTL:    config.Duration(cfg.Auth.CacheTTL, 30*time.Second),
		Timeout:     config.Duration(cfg.Auth.Timeout, gate.DefaultTimeout),
	}, gateOpts...)
	if err != nil {
		return fmt.Errorf("failed to create gate: %w", err)
	}
	defer g.Close()
	logger.Info("access policy loaded",
		"allowed_roles", cfg.Policy.AllowedRoles,
		"expression", cfg.Policy.Expression != "")

	// Audit.
	auditStore, err := createAuditStore(cfg, logger)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	auditService := service.NewAuditService(auditStore, logger,
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(config.Duration(cfg.Audit.FlushInterval, time.Second)),
		service.WithSendTimeout(config.Duration(cfg.Audit.SendTimeout, 100*time.Millisecond)),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	)
	auditService.Start(ctx)
	defer auditService.Stop()

	// Login flow.
	loginOpts := []service.LoginOption{
		service.WithLoginAudit(auditService),
		service.WithLoginTracer(tracer),
	}
	if metrics != nil {
		loginOpts = append(loginOpts, service.WithLoginObserver(metrics))
	}
	var limiter *memory.MemoryRateLimiter
	loginCfg := service.LoginConfig{Timeout: config.Duration(cfg.Auth.Timeout, gate.DefaultTimeout)}
	if cfg.RateLimit.Enabled {
		limiter = memory.NewRateLimiterWithConfig(
			config.Duration(cfg.RateLimit.CleanupInterval, 5*time.Minute),
			config.Duration(cfg.RateLimit.MaxTTL, time.Hour),
		)
		limiter.StartCleanup(ctx)
		defer limiter.Stop()
		loginCfg.RateLimit = ratelimit.RateLimitConfig{
			Rate:   cfg.RateLimit.LoginRate,
			Burst:  cfg.RateLimit.LoginBurst,
			Period: time.Minute,
		}
		loginOpts = append(loginOpts, service.WithLoginRateLimiter(limiter))
	}
	login := service.NewLoginService(sessions.store, roles, engine, g, loginCfg, logger, loginOpts...)

	contentHandler, err := buildContent(cfg.Content, logger)
	if err != nil {
		return err
	}

	health := http.NewHealthChecker(sessions.memory, limiter, auditService, Version)
	health.SetAuditLog(auditStore)
	if rolesProbe != nil {
		health.AddProbe("role_database", rolesProbe)
	}
	if metrics != nil {
		if sessions.local != nil {
			metrics.RegisterActiveSessions(sessions.local.ActiveSessions)
		}
		metrics.RegisterAuditDrops(auditService.DroppedRecords)
		if limiter != nil {
			metrics.RegisterRateLimitKeys(limiter.Size)
		}
	}

	var edgeCookies []string
	if cfg.EdgeFilter.Enabled {
		edgeCookies = cfg.EdgeFilter.CookieNames
	}

	handler, err := http.NewHandler(http.HandlerConfig{
		Gate:    g,
		Login:   login,
		Content: contentHandler,
		LoginConfig: http.LoginConfig{
			Mode:         cfg.Auth.Mode,
			DelegatedURL: cfg.Auth.DelegatedURL,
			PublicURL:    cfg.Server.PublicURL,
			Cookie: http.CookieConfig{
				Name:   cfg.Auth.SessionCookie,
				Domain: cfg.Auth.CookieDomain,
				Secure: cfg.Auth.CookieSecure,
			},
		},
		LogoutPath:        cfg.Auth.LogoutPath,
		MaxRedirects:      cfg.Auth.MaxRedirects,
		EdgeCookieNames:   edgeCookies,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		SiteName:          cfg.Server.SiteName,
		Health:            health,
		Metrics:           metrics,
		MetricsHandler:    metricsHandler,
		Audit:             auditService,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	server := http.NewServer(handler,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile),
		http.WithLogger(logger),
	)

	printBanner(os.Stderr, Version, cfg)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func buildSessionBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sessionBackend, error) {
	switch cfg.SessionStore.Backend {
	case "remote":
		client, err := gotrue.New(cfg.SessionStore.Remote.URL, cfg.SessionStore.Remote.APIKey,
			gotrue.WithTimeout(config.Duration(cfg.SessionStore.Remote.Timeout, 10*time.Second)),
			gotrue.WithLogger(logger),
		)
		if err != nil {
			return sessionBackend{}, fmt.Errorf("failed to create session client: %w", err)
		}
		logger.Info("session store: remote", "url", cfg.SessionStore.Remote.URL)
		return sessionBackend{store: client}, nil

	default:
		accounts := state.NewFileAccountStore(cfg.SessionStore.AccountsFile, logger)
		if !accounts.Exists() {
			logger.Warn("accounts file does not exist, nobody can sign in",
				"path", accounts.Path(), "hint", "docgate accounts add <email> --role developer")
		}
		store := memory.NewSessionStore()
		local := service.NewLocalAuthService(accounts, store,
			config.Duration(cfg.Auth.SessionTTL, service.DefaultSessionTTL), logger)

		// Expired sessions leave the gate's view cache like signed-out ones.
		store.OnExpire(func(s *session.Session) {
			local.Publish(session.Event{
				Type:        session.EventSignedOut,
				AccessToken: s.AccessToken,
				IdentityID:  s.IdentityID,
			})
		})
		store.StartCleanup(ctx)

		logger.Info("session store: local", "accounts_file", accounts.Path())
		return sessionBackend{store: local, local: local, memory: store}, nil
	}
}

// buildRoleResolver returns the resolver, an optional health probe for it
// and a close function.
func buildRoleResolver(ctx context.Context, cfg *config.Config, sessions sessionBackend, logger *slog.Logger) (auth.RoleResolver, http.Probe, func(), error) {
	noop := func() {}
	rc := cfg.Roles

	switch rc.Backend {
	case "rest":
		r, err := postgrest.New(postgrest.Config{
			URL:      rc.REST.URL,
			APIKey:   rc.REST.APIKey,
			Table:    rc.REST.Table,
			IDColumn: rc.REST.IDColumn,
			RoleCol:  rc.REST.RoleColumn,
		}, nil)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create role resolver: %w", err)
		}
		logger.Info("role records: rest", "url", rc.REST.URL)
		return r, nil, noop, nil

	case "sql":
		r, err := sqlrole.Open(ctx, sqlrole.Config{
			Driver:   rc.SQL.Driver,
			DSN:      rc.SQL.DSN,
			Table:    rc.SQL.Table,
			IDColumn: rc.SQL.IDColumn,
			RoleCol:  rc.SQL.RoleColumn,
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to open role database: %w", err)
		}
		logger.Info("role records: sql", "driver", rc.SQL.Driver)
		return r, r.Ping, func() {
			if err := r.Close(); err != nil {
				logger.Warn("failed to close role database", "error", err)
			}
		}, nil

	default:
		if sessions.local == nil {
			return nil, nil, noop, errors.New("roles: the local backend requires session_store.backend local")
		}
		logger.Info("role records: local accounts file")
		return sessions.local, nil, noop, nil
	}
}

// buildPolicy returns the configured access policy engine.
func buildPolicy(pc config.PolicyConfig) (policy.Engine, error) {
	if expr := strings.TrimSpace(pc.Expression); expr != "" {
		p, err := cel.NewPolicy(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid policy expression: %w", err)
		}
		return p, nil
	}
	rs, err := policy.NewRoleSet(pc.AllowedRoles...)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed_roles: %w", err)
	}
	return rs, nil
}

func buildContent(cc config.ContentConfig, logger *slog.Logger) (stdhttp.Handler, error) {
	switch cc.Source {
	case "s3":
		client, err := content.NewS3Client(content.S3Config{
			Bucket:          cc.S3.Bucket,
			Prefix:          cc.S3.Prefix,
			Region:          cc.S3.Region,
			Endpoint:        cc.S3.Endpoint,
			ForcePathStyle:  cc.S3.ForcePathStyle,
			AccessKeyID:     cc.S3.AccessKeyID,
			SecretAccessKey: cc.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		logger.Info("content source: s3", "bucket", cc.S3.Bucket, "prefix", cc.S3.Prefix)
		return content.NewS3Handler(client, cc.S3.Bucket, cc.S3.Prefix, logger), nil

	case "upstream":
		h, err := content.NewUpstreamHandler(cc.Upstream.URL,
			config.Duration(cc.Upstream.Timeout, 30*time.Second), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream proxy: %w", err)
		}
		logger.Info("content source: upstream", "url", cc.Upstream.URL)
		return h, nil

	default:
		h, err := content.NewDirHandler(cc.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open content directory: %w", err)
		}
		logger.Info("content source: dir", "path", cc.Dir)
		return h, nil
	}
}

// createAuditStore opens the audit sink: stdout or an append-only file.
func createAuditStore(cfg *config.Config, logger *slog.Logger) (*memory.MemoryAuditStore, error) {
	switch {
	case cfg.Audit.Output == "stdout":
		logger.Debug("audit output: stdout", "buffer_size", cfg.Audit.BufferSize)
		return memory.NewAuditStore(cfg.Audit.BufferSize), nil

	case strings.HasPrefix(cfg.Audit.Output, "file://"):
		path := parseFileURI(cfg.Audit.Output)
		if path == "" {
			return nil, fmt.Errorf("invalid audit file URI: %s", cfg.Audit.Output)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
		}
		logger.Debug("audit output: file", "path", path, "buffer_size", cfg.Audit.BufferSize)
		return memory.NewAuditStoreWithWriter(f, cfg.Audit.BufferSize), nil

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'stdout' or 'file://path')", cfg.Audit.Output)
	}
}

// parseFileURI extracts the file path from a "file:///path" URI.
// On Windows, file:///C:/path becomes C:/path.
func parseFileURI(uri string) string {
	const prefix = "file://"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	path := uri[len(prefix):]
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return path
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(w io.Writer, version string, cfg *config.Config) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	scheme := "http"
	if cfg.Server.TLSCertFile != "" {
		scheme = "https"
	}
	siteURL := fmt.Sprintf("%s://%s/", scheme, cfg.Server.HTTPAddr)
	if strings.HasPrefix(cfg.Server.HTTPAddr, ":") {
		siteURL = fmt.Sprintf("%s://localhost%s/", scheme, cfg.Server.HTTPAddr)
	}
	if cfg.Server.PublicURL != "" {
		siteURL = strings.TrimSuffix(cfg.Server.PublicURL, "/") + "/"
	}

	modeStr := green + "production" + reset
	if cfg.DevMode {
		modeStr = yellow + "development" + reset + dim + " (insecure cookies)" + reset
	}

	access := strings.Join(cfg.Policy.AllowedRoles, ", ")
	if cfg.Policy.Expression != "" {
		access = "expression"
	}

	login := cfg.Auth.Mode
	if cfg.Auth.Mode == "delegated" {
		login += " -> " + cfg.Auth.DelegatedURL
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s%s docgate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "  %-14s %s\n", "Site:", siteURL)
	fmt.Fprintf(w, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(w, "  %-14s %s\n", "Login:", login)
	fmt.Fprintf(w, "  %-14s %s / %s\n", "Sessions:", cfg.SessionStore.Backend, cfg.Roles.Backend)
	fmt.Fprintf(w, "  %-14s %s\n", "Access:", access)
	fmt.Fprintf(w, "  %-14s %s\n", "Content:", cfg.Content.Source)
	fmt.Fprintf(w, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(w, "\n")
}
