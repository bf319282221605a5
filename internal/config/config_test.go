package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Auth.Mode != "local" || cfg.Auth.LoginPath != "/login" || cfg.Auth.LogoutPath != "/logout" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Auth.SessionCookie != "sb-access-token" {
		t.Errorf("SessionCookie = %q", cfg.Auth.SessionCookie)
	}
	if !cfg.Auth.CookieSecure {
		t.Error("CookieSecure should default to true")
	}
	if cfg.Auth.Timeout != "5s" || cfg.Auth.MaxRedirects != 5 {
		t.Errorf("Timeout = %q, MaxRedirects = %d", cfg.Auth.Timeout, cfg.Auth.MaxRedirects)
	}
	if cfg.SessionStore.Backend != "local" || cfg.Roles.Backend != "local" {
		t.Errorf("backends = %q/%q, want local/local", cfg.SessionStore.Backend, cfg.Roles.Backend)
	}
	if !cfg.EdgeFilter.Enabled || !reflect.DeepEqual(cfg.EdgeFilter.CookieNames, []string{"sb-access-token"}) {
		t.Errorf("EdgeFilter = %+v", cfg.EdgeFilter)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.LoginRate != 10 || cfg.RateLimit.LoginBurst != 10 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Content.Source != "dir" || cfg.Content.Dir != "site" {
		t.Errorf("Content = %+v", cfg.Content)
	}
	if cfg.Audit.Output != "stdout" {
		t.Errorf("Audit.Output = %q, want %q", cfg.Audit.Output, "stdout")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to true")
	}
	if len(cfg.Policy.AllowedRoles) != 0 || cfg.Policy.Expression != "" {
		t.Error("SetDefaults must not pick a policy")
	}
}

func TestConfig_SetDefaults_RemoteBackends(t *testing.T) {
	t.Parallel()

	cfg := Config{SessionStore: SessionStoreConfig{
		Backend: "remote",
		Remote:  RemoteAuthConfig{URL: "https://auth.example.com", APIKey: "anon"},
	}}
	cfg.SetDefaults()

	if cfg.Roles.Backend != "rest" {
		t.Errorf("Roles.Backend = %q, want rest", cfg.Roles.Backend)
	}
	if cfg.Roles.REST.URL != "https://auth.example.com" || cfg.Roles.REST.APIKey != "anon" {
		t.Errorf("REST roles did not inherit the auth backend: %+v", cfg.Roles.REST)
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:    ServerConfig{HTTPAddr: ":9090"},
		Auth:      AuthConfig{SessionCookie: "docs_session", PublicPaths: []string{}},
		Audit:     AuditConfig{Output: "file:///var/log/custom.log"},
		RateLimit: RateLimitConfig{LoginRate: 3},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Audit.Output != "file:///var/log/custom.log" {
		t.Errorf("Audit.Output was overwritten: got %q", cfg.Audit.Output)
	}
	if cfg.RateLimit.LoginRate != 3 || cfg.RateLimit.LoginBurst != 3 {
		t.Errorf("RateLimit = %+v, want rate 3 burst 3", cfg.RateLimit)
	}
	if cfg.EdgeFilter.CookieNames[0] != "docs_session" {
		t.Errorf("edge cookie = %v, want the session cookie", cfg.EdgeFilter.CookieNames)
	}
	if len(cfg.Auth.PublicPaths) != 0 {
		t.Errorf("explicit empty public paths replaced: %v", cfg.Auth.PublicPaths)
	}
}

func TestConfig_SetDevDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Auth.CookieSecure {
		t.Error("dev mode should not mark cookies Secure")
	}
	if !reflect.DeepEqual(cfg.Policy.AllowedRoles, []string{"admin", "developer"}) {
		t.Errorf("AllowedRoles = %v", cfg.Policy.AllowedRoles)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("dev config should validate: %v", err)
	}

	expr := Config{DevMode: true, Policy: PolicyConfig{Expression: `role == "admin"`}}
	expr.SetDevDefaults()
	if len(expr.Policy.AllowedRoles) != 0 {
		t.Error("dev defaults must not add roles next to an expression")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration(250ms) = %v", got)
	}
	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("Duration(\"\") = %v, want fallback", got)
	}
	if got := Duration("soon", time.Second); got != time.Second {
		t.Errorf("Duration(soon) = %v, want fallback", got)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docgate.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	if got := findConfigFileInPaths([]string{dir}); got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// The binary itself: "docgate" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "docgate"), []byte("\x7fELF binary"), 0755)

	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "docgate.yaml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(filepath.Join(dir, "docgate.yml"), []byte("server:\n  http_addr: :9090\n"), 0644)

	if got := findConfigFileInPaths([]string{dir}); got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}

// The loader tests share viper's global state and cannot run in parallel.

func TestLoadConfig_FileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "docgate.yaml")
	yaml := `
server:
  http_addr: "0.0.0.0:8443"
auth:
  cookie_secure: false
policy:
  allowed_roles: [admin, developer]
content:
  dir: /srv/site
edge_filter:
  enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGATE_AUTH_TIMEOUT", "2s")

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8443" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.Timeout != "2s" {
		t.Errorf("Timeout = %q, want env override 2s", cfg.Auth.Timeout)
	}
	if cfg.Auth.CookieSecure {
		t.Error("explicit cookie_secure: false was overridden")
	}
	if cfg.EdgeFilter.Enabled {
		t.Error("explicit edge_filter.enabled: false was overridden")
	}
	if !reflect.DeepEqual(cfg.Policy.AllowedRoles, []string{"admin", "developer"}) {
		t.Errorf("AllowedRoles = %v", cfg.Policy.AllowedRoles)
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), path)
	}
}

func TestLoadConfig_MissingPolicyFails(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "docgate.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	InitViper(path)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() without a policy should fail")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DOCGATE_TEST_ENV_FILE=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGATE_TEST_ENV_FILE", "")
	os.Unsetenv("DOCGATE_TEST_ENV_FILE")

	if err := LoadEnvFile(path, true); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if got := os.Getenv("DOCGATE_TEST_ENV_FILE"); got != "loaded" {
		t.Errorf("env = %q, want loaded", got)
	}

	missing := filepath.Join(t.TempDir(), "missing.env")
	if err := LoadEnvFile(missing, false); err != nil {
		t.Errorf("optional missing file: %v", err)
	}
	if err := LoadEnvFile(missing, true); err == nil {
		t.Error("required missing file should fail")
	}
}
