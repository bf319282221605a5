package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers docgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// audit_output: validates "stdout" or "file://<absolute-path>"
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateAuditOutput validates the audit output field.
// Valid values: "stdout" or "file://<absolute-path>"
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}

	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}

	return false
}

// validateDuration accepts non-negative Go duration strings.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d >= 0
}

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	var errs []error
	for _, check := range []func() error{
		c.validatePolicy,
		c.validateAuth,
		c.validateSessionStore,
		c.validateRoles,
		c.validateContent,
		c.validateTLS,
	} {
		if err := check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validatePolicy requires an explicit policy: the allowed-role set is a
// deployment decision with no built-in default.
func (c *Config) validatePolicy() error {
	hasRoles := len(c.Policy.AllowedRoles) > 0
	hasExpr := strings.TrimSpace(c.Policy.Expression) != ""

	switch {
	case hasRoles && hasExpr:
		return errors.New("policy: specify allowed_roles OR expression, not both")
	case !hasRoles && !hasExpr:
		return errors.New("policy: allowed_roles or expression is required (e.g. allowed_roles: [admin, developer])")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.Mode == "delegated" && c.Auth.DelegatedURL == "" {
		return errors.New("auth: delegated_url is required when mode is delegated")
	}
	if c.Auth.LoginPath == c.Auth.LogoutPath {
		return fmt.Errorf("auth: login_path and logout_path must differ (both %q)", c.Auth.LoginPath)
	}
	if c.Auth.LoginPath == "/" {
		return errors.New("auth: login_path cannot be the site root")
	}
	if c.Auth.SessionCookie == "" {
		return errors.New("auth: session_cookie is required")
	}
	return nil
}

func (c *Config) validateSessionStore() error {
	switch c.SessionStore.Backend {
	case "remote":
		if c.SessionStore.Remote.URL == "" {
			return errors.New("session_store: remote.url is required for the remote backend")
		}
	case "local":
		if c.Auth.Mode == "delegated" {
			return errors.New("session_store: the local backend cannot verify sessions issued by a delegated login provider")
		}
		if c.SessionStore.AccountsFile == "" {
			return errors.New("session_store: accounts_file is required for the local backend")
		}
	}
	return nil
}

func (c *Config) validateRoles() error {
	switch c.Roles.Backend {
	case "local":
		if c.SessionStore.Backend != "local" {
			return errors.New("roles: the local backend requires session_store.backend local")
		}
	case "rest":
		if c.Roles.REST.URL == "" {
			return errors.New("roles: rest.url is required for the rest backend")
		}
	case "sql":
		if c.Roles.SQL.Driver == "" || c.Roles.SQL.DSN == "" {
			return errors.New("roles: sql.driver and sql.dsn are required for the sql backend")
		}
	}
	return nil
}

func (c *Config) validateContent() error {
	switch c.Content.Source {
	case "dir":
		if c.Content.Dir == "" {
			return errors.New("content: dir is required for the dir source")
		}
	case "s3":
		if c.Content.S3.Bucket == "" {
			return errors.New("content: s3.bucket is required for the s3 source")
		}
	case "upstream":
		if c.Content.Upstream.URL == "" {
			return errors.New("content: upstream.url is required for the upstream source")
		}
	}
	return nil
}

func (c *Config) validateTLS() error {
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return errors.New("server: tls_cert_file and tls_key_file must be set together")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a duration such as \"5s\" or \"1h\"", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout' or 'file://<absolute-path>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
