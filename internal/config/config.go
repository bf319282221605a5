// Package config provides configuration types for docgate.
//
// Configuration comes from a YAML file (docgate.yaml), DOCGATE_*
// environment variables and an optional .env file. Durations are Go
// duration strings ("5s", "8h").
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level docgate configuration.
type Config struct {
	// Server configures the HTTP listener and gateway pages.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures the gate, the login flow and the session cookie.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// SessionStore selects where sessions are created and checked.
	SessionStore SessionStoreConfig `yaml:"session_store" mapstructure:"session_store"`

	// Roles selects where an identity's role is read from.
	Roles RolesConfig `yaml:"roles" mapstructure:"roles"`

	// Policy decides which roles may read the site. Exactly one of
	// allowed_roles or expression must be set outside dev mode.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// EdgeFilter configures the cookie-presence pre-check.
	EdgeFilter EdgeFilterConfig `yaml:"edge_filter" mapstructure:"edge_filter"`

	// RateLimit configures login throttling.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Content selects the origin serving the documentation site.
	Content ContentConfig `yaml:"content" mapstructure:"content"`

	// Audit configures where audit records are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Tracing configures the OpenTelemetry pipeline.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// DevMode enables verbose logging and permissive defaults.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// PublicURL is the external origin of the site (e.g. "https://docs.example.com").
	// Used to build absolute return targets for a delegated login provider.
	PublicURL string `yaml:"public_url" mapstructure:"public_url" validate:"omitempty,url"`

	// LogLevel sets the minimum log level. DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// SiteName is shown on the login and error pages.
	SiteName string `yaml:"site_name" mapstructure:"site_name"`

	// TrustProxyHeaders honors X-Forwarded-For and X-Real-IP. Only enable
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`

	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file"`
}

// AuthConfig configures the Auth Gate and the Login Flow.
type AuthConfig struct {
	// Mode is "local" (login form served here) or "delegated" (redirect to
	// an external identity dashboard).
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=local delegated"`

	// DelegatedURL is the identity dashboard base URL, required in delegated mode.
	DelegatedURL string `yaml:"delegated_url" mapstructure:"delegated_url" validate:"omitempty,url"`

	LoginPath  string `yaml:"login_path" mapstructure:"login_path" validate:"omitempty,startswith=/"`
	LogoutPath string `yaml:"logout_path" mapstructure:"logout_path" validate:"omitempty,startswith=/"`

	// PublicPaths are path prefixes (ending in "/") or exact paths that
	// bypass the gate: API, health, metrics, static assets.
	PublicPaths []string `yaml:"public_paths" mapstructure:"public_paths" validate:"omitempty,dive,startswith=/"`

	// SessionCookie is the cookie carrying the access token.
	SessionCookie string `yaml:"session_cookie" mapstructure:"session_cookie"`
	CookieDomain  string `yaml:"cookie_domain" mapstructure:"cookie_domain"`
	// CookieSecure marks cookies Secure. Defaults to true outside dev mode.
	CookieSecure bool `yaml:"cookie_secure" mapstructure:"cookie_secure"`

	// CacheTTL bounds how long a resolved session and role is reused.
	// "0s" disables the view cache.
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty,duration"`

	// Timeout bounds each session and role backend call. A timeout denies.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// MaxRedirects is the number of consecutive gate redirects before the
	// loop is broken with an error page.
	MaxRedirects int `yaml:"max_redirects" mapstructure:"max_redirects" validate:"omitempty,min=1,max=50"`

	// SessionTTL is the lifetime of locally issued sessions.
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl" validate:"omitempty,duration"`
}

// SessionStoreConfig selects the session backend.
type SessionStoreConfig struct {
	// Backend is "remote" (GoTrue-compatible auth service) or "local"
	// (accounts file plus in-memory sessions).
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=remote local"`

	Remote RemoteAuthConfig `yaml:"remote" mapstructure:"remote"`

	// AccountsFile is the local accounts file. Defaults to ~/.docgate/accounts.json.
	AccountsFile string `yaml:"accounts_file" mapstructure:"accounts_file"`
}

// RemoteAuthConfig locates the hosted auth service.
type RemoteAuthConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// RolesConfig selects the role backend.
type RolesConfig struct {
	// Backend is "rest", "sql" or "local". Defaults to "local" with the
	// local session store and "rest" otherwise.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=rest sql local"`

	REST RESTRolesConfig `yaml:"rest" mapstructure:"rest"`
	SQL  SQLRolesConfig  `yaml:"sql" mapstructure:"sql"`
}

// RESTRolesConfig configures the PostgREST role table query. URL and
// api key default to the remote session store's.
type RESTRolesConfig struct {
	URL        string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Table      string `yaml:"table" mapstructure:"table"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	RoleColumn string `yaml:"role_column" mapstructure:"role_column"`
}

// SQLRolesConfig configures the database role table.
type SQLRolesConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=sqlite pgx mysql"`
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	Table      string `yaml:"table" mapstructure:"table"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	RoleColumn string `yaml:"role_column" mapstructure:"role_column"`
}

// PolicyConfig decides which roles may read the site.
type PolicyConfig struct {
	// AllowedRoles is the set of roles granted access.
	AllowedRoles []string `yaml:"allowed_roles" mapstructure:"allowed_roles" validate:"omitempty,dive,oneof=admin developer moderator user"`

	// Expression is a CEL expression over role, email and path.
	Expression string `yaml:"expression" mapstructure:"expression"`
}

// EdgeFilterConfig configures the cookie-presence pre-check.
type EdgeFilterConfig struct {
	// Enabled turns the filter on. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CookieNames are the session indicator cookies. Defaults to the
	// session cookie, the only cookie the gateway itself sets.
	CookieNames []string `yaml:"cookie_names" mapstructure:"cookie_names"`
}

// RateLimitConfig configures login throttling.
type RateLimitConfig struct {
	// Enabled turns login rate limiting on. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// LoginRate is the number of login submits per minute per client IP.
	LoginRate int `yaml:"login_rate" mapstructure:"login_rate" validate:"omitempty,min=1"`

	// LoginBurst is the number of submits allowed at once. Defaults to LoginRate.
	LoginBurst int `yaml:"login_burst" mapstructure:"login_burst" validate:"omitempty,min=1"`

	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`
	MaxTTL          string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// ContentConfig selects the content origin.
type ContentConfig struct {
	// Source is "dir", "s3" or "upstream".
	Source string `yaml:"source" mapstructure:"source" validate:"omitempty,oneof=dir s3 upstream"`

	// Dir is the built site directory for the dir source.
	Dir string `yaml:"dir" mapstructure:"dir"`

	S3       S3ContentConfig       `yaml:"s3" mapstructure:"s3"`
	Upstream UpstreamContentConfig `yaml:"upstream" mapstructure:"upstream"`
}

// S3ContentConfig locates the site in a bucket.
type S3ContentConfig struct {
	Bucket         string `yaml:"bucket" mapstructure:"bucket"`
	Prefix         string `yaml:"prefix" mapstructure:"prefix"`
	Region         string `yaml:"region" mapstructure:"region"`
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	// Static credentials; the default AWS credential chain applies when empty.
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

// UpstreamContentConfig configures the static host reverse proxy.
type UpstreamContentConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// AuditConfig configures audit log output.
type AuditConfig struct {
	// Output is "stdout" or "file:///absolute/path/to/audit.log".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// ChannelSize is the buffer size for the audit channel.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records to batch before writing.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often to flush pending records.
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// SendTimeout is how long Record blocks on a full channel before
	// dropping. "0s" drops immediately.
	SendTimeout string `yaml:"send_timeout" mapstructure:"send_timeout" validate:"omitempty,duration"`

	// WarningThreshold is the channel fill percentage that logs a warning.
	WarningThreshold int `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`

	// BufferSize is the number of recent records kept in memory.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// TracingConfig configures OpenTelemetry export to stdout.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	SampleRatio    float64 `yaml:"sample_ratio" mapstructure:"sample_ratio" validate:"omitempty,gt=0,lte=1"`
	MetricInterval string  `yaml:"metric_interval" mapstructure:"metric_interval" validate:"omitempty,duration"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled serves /metrics. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These run after SetDefaults and before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	// Dev servers run on plain http://localhost.
	if !viper.IsSet("auth.cookie_secure") {
		c.Auth.CookieSecure = false
	}

	if len(c.Policy.AllowedRoles) == 0 && c.Policy.Expression == "" {
		c.Policy.AllowedRoles = []string{"admin", "developer"}
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network access must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.SiteName == "" {
		c.Server.SiteName = "Documentation"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "local"
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = "/login"
	}
	if c.Auth.LogoutPath == "" {
		c.Auth.LogoutPath = "/logout"
	}
	if c.Auth.PublicPaths == nil {
		c.Auth.PublicPaths = []string{"/api/", "/health", "/metrics", "/assets/", "/favicon.ico"}
	}
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = "sb-access-token"
	}
	if !viper.IsSet("auth.cookie_secure") {
		c.Auth.CookieSecure = true
	}
	if c.Auth.CacheTTL == "" {
		c.Auth.CacheTTL = "30s"
	}
	if c.Auth.Timeout == "" {
		c.Auth.Timeout = "5s"
	}
	if c.Auth.MaxRedirects == 0 {
		c.Auth.MaxRedirects = 5
	}
	if c.Auth.SessionTTL == "" {
		c.Auth.SessionTTL = "8h"
	}

	if c.SessionStore.Backend == "" {
		c.SessionStore.Backend = "local"
	}
	if c.SessionStore.Remote.Timeout == "" {
		c.SessionStore.Remote.Timeout = "10s"
	}
	if c.SessionStore.AccountsFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.SessionStore.AccountsFile = filepath.Join(home, ".docgate", "accounts.json")
		} else {
			c.SessionStore.AccountsFile = "accounts.json"
		}
	}

	if c.Roles.Backend == "" {
		if c.SessionStore.Backend == "local" {
			c.Roles.Backend = "local"
		} else {
			c.Roles.Backend = "rest"
		}
	}
	if c.Roles.REST.URL == "" {
		c.Roles.REST.URL = c.SessionStore.Remote.URL
	}
	if c.Roles.REST.APIKey == "" {
		c.Roles.REST.APIKey = c.SessionStore.Remote.APIKey
	}

	if !viper.IsSet("edge_filter.enabled") {
		c.EdgeFilter.Enabled = true
	}
	if len(c.EdgeFilter.CookieNames) == 0 {
		c.EdgeFilter.CookieNames = []string{c.Auth.SessionCookie}
	}

	if !viper.IsSet("rate_limit.enabled") {
		c.RateLimit.Enabled = true
	}
	if c.RateLimit.LoginRate == 0 {
		c.RateLimit.LoginRate = 10
	}
	if c.RateLimit.LoginBurst == 0 {
		c.RateLimit.LoginBurst = c.RateLimit.LoginRate
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if c.Content.Source == "" {
		c.Content.Source = "dir"
	}
	if c.Content.Source == "dir" && c.Content.Dir == "" {
		c.Content.Dir = "site"
	}
	if c.Content.S3.Region == "" {
		c.Content.S3.Region = "us-east-1"
	}
	if c.Content.Upstream.Timeout == "" {
		c.Content.Upstream.Timeout = "30s"
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Tracing.MetricInterval == "" {
		c.Tracing.MetricInterval = "60s"
	}

	if !viper.IsSet("metrics.enabled") {
		c.Metrics.Enabled = true
	}
}

// Duration parses a validated duration field. Invalid or empty values
// yield fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
