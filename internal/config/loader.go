package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for docgate.yaml/.yml in standard locations.
// The search requires an explicit YAML extension so the "docgate" binary
// in the working directory is never picked up as config.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Without search paths ReadInConfig returns ConfigFileNotFoundError,
		// which callers treat as env-only configuration.
		viper.SetConfigName("docgate")
		viper.SetConfigType("yaml")
	}

	// DOCGATE_SERVER_HTTP_ADDR overrides server.http_addr.
	viper.SetEnvPrefix("DOCGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment without overriding variables that are already set. A
// missing file is only an error when required is set.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".docgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "docgate"))
		}
	} else {
		paths = append(paths, "/etc/docgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first docgate.yaml or docgate.yml in
// paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "docgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// envKeys are bound explicitly so Unmarshal sees them even when the key
// is absent from the config file. Lists (public_paths, allowed_roles,
// cookie_names) accept comma-separated values.
var envKeys = []string{
	"server.http_addr",
	"server.public_url",
	"server.log_level",
	"server.site_name",
	"server.trust_proxy_headers",
	"server.tls_cert_file",
	"server.tls_key_file",

	"auth.mode",
	"auth.delegated_url",
	"auth.login_path",
	"auth.logout_path",
	"auth.public_paths",
	"auth.session_cookie",
	"auth.cookie_domain",
	"auth.cookie_secure",
	"auth.cache_ttl",
	"auth.timeout",
	"auth.max_redirects",
	"auth.session_ttl",

	"session_store.backend",
	"session_store.remote.url",
	"session_store.remote.api_key",
	"session_store.remote.timeout",
	"session_store.accounts_file",

	"roles.backend",
	"roles.rest.url",
	"roles.rest.api_key",
	"roles.rest.table",
	"roles.sql.driver",
	"roles.sql.dsn",
	"roles.sql.table",

	"policy.allowed_roles",
	"policy.expression",

	"edge_filter.enabled",
	"edge_filter.cookie_names",

	"rate_limit.enabled",
	"rate_limit.login_rate",
	"rate_limit.login_burst",

	"content.source",
	"content.dir",
	"content.s3.bucket",
	"content.s3.prefix",
	"content.s3.region",
	"content.s3.endpoint",
	"content.s3.access_key_id",
	"content.s3.secret_access_key",
	"content.upstream.url",

	"audit.output",

	"tracing.enabled",
	"tracing.sample_ratio",

	"metrics.enabled",

	"dev_mode",
}

func bindNestedEnvKeys() {
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the loaded configuration file, or ""
// when running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
