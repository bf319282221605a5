package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/docgate/internal/config"
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"start", "stop", "version", "hash-password", "accounts", "config"}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFileURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///var/log/docgate/audit.log", "/var/log/docgate/audit.log"},
		{"file:///C:/logs/audit.log", "C:/logs/audit.log"},
		{"stdout", ""},
		{"file://", ""},
	}
	for _, tt := range tests {
		if got := parseFileURI(tt.uri); got != tt.want {
			t.Errorf("parseFileURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestBuildPolicy_RoleSet(t *testing.T) {
	engine, err := buildPolicy(config.PolicyConfig{AllowedRoles: []string{"admin", "developer"}})
	if err != nil {
		t.Fatalf("buildPolicy() error = %v", err)
	}
	tests := []struct {
		role auth.Role
		want bool
	}{
		{auth.RoleAdmin, true},
		{auth.RoleDeveloper, true},
		{auth.RoleUser, false},
	}
	for _, tt := range tests {
		got, err := engine.Allows(context.Background(), policy.EvaluationContext{Role: tt.role})
		if err != nil {
			t.Fatalf("Allows(%s) error = %v", tt.role, err)
		}
		if got != tt.want {
			t.Errorf("Allows(%s) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestBuildPolicy_Expression(t *testing.T) {
	engine, err := buildPolicy(config.PolicyConfig{Expression: `role == "moderator"`})
	if err != nil {
		t.Fatalf("buildPolicy() error = %v", err)
	}
	ok, err := engine.Allows(context.Background(), policy.EvaluationContext{Role: auth.RoleModerator})
	if err != nil || !ok {
		t.Errorf("Allows(moderator) = %v, %v; want true", ok, err)
	}
}

func TestBuildPolicy_Invalid(t *testing.T) {
	if _, err := buildPolicy(config.PolicyConfig{Expression: "role =="}); err == nil {
		t.Error("buildPolicy() with a broken expression should fail")
	}
	if _, err := buildPolicy(config.PolicyConfig{AllowedRoles: []string{"owner"}}); err == nil {
		t.Error("buildPolicy() with an unknown role should fail")
	}
}

func TestCreateAuditStore_File(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file URI layout differs on windows")
	}
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	cfg := &config.Config{Audit: config.AuditConfig{Output: "file://" + path, BufferSize: 10}}

	store, err := createAuditStore(cfg, discardLogger())
	if err != nil {
		t.Fatalf("createAuditStore() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("audit file not created: %v", err)
	}
}

func TestCreateAuditStore_Invalid(t *testing.T) {
	cfg := &config.Config{Audit: config.AuditConfig{Output: "syslog"}}
	if _, err := createAuditStore(cfg, discardLogger()); err == nil {
		t.Error("createAuditStore() with unknown output should fail")
	}
}

func TestBuildContent_Dir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>docs</h1>"), 0644); err != nil {
		t.Fatal(err)
	}

	h, err := buildContent(config.ContentConfig{Source: "dir", Dir: dir}, discardLogger())
	if err != nil {
		t.Fatalf("buildContent() error = %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<h1>docs</h1>") {
		t.Errorf("GET / body = %q", rec.Body.String())
	}
}

func TestBuildContent_MissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := buildContent(config.ContentConfig{Source: "dir", Dir: missing}, discardLogger()); err == nil {
		t.Error("buildContent() with a missing directory should fail")
	}
}

func TestBuildSessionBackend_Local(t *testing.T) {
	cfg := &config.Config{}
	cfg.SessionStore.Backend = "local"
	cfg.SessionStore.AccountsFile = filepath.Join(t.TempDir(), "accounts.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildSessionBackend(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildSessionBackend() error = %v", err)
	}
	defer backend.memory.Stop()

	if backend.local == nil || backend.memory == nil {
		t.Fatal("local backend should expose the local auth service and memory store")
	}

	roles, probe, closeRoles, err := buildRoleResolver(ctx, &config.Config{Roles: config.RolesConfig{Backend: "local"}}, backend, discardLogger())
	if err != nil {
		t.Fatalf("buildRoleResolver() error = %v", err)
	}
	defer closeRoles()
	if roles == nil || probe != nil {
		t.Errorf("local roles = %v, probe = %v; want resolver and no probe", roles, probe)
	}
}

func TestBuildRoleResolver_LocalNeedsLocalSessions(t *testing.T) {
	cfg := &config.Config{Roles: config.RolesConfig{Backend: "local"}}
	if _, _, _, err := buildRoleResolver(context.Background(), cfg, sessionBackend{}, discardLogger()); err == nil {
		t.Error("local roles without local sessions should fail")
	}
}

func TestBuildSessionBackend_Remote(t *testing.T) {
	cfg := &config.Config{}
	cfg.SessionStore.Backend = "remote"
	cfg.SessionStore.Remote.URL = "https://auth.example.com"
	cfg.SessionStore.Remote.APIKey = "anon"

	backend, err := buildSessionBackend(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildSessionBackend() error = %v", err)
	}
	if backend.store == nil || backend.local != nil || backend.memory != nil {
		t.Errorf("remote backend = %+v; want only a store", backend)
	}
}

func TestPIDFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "docgate.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile() error = %v", err)
	}
	if got := readPIDFile(path); got != os.Getpid() {
		t.Errorf("readPIDFile() = %d, want %d", got, os.Getpid())
	}
}

func TestReadPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pid")
	if err := os.WriteFile(garbage, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.pid")},
		{"garbage", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readPIDFile(tt.path); got != 0 {
				t.Errorf("readPIDFile() = %d, want 0", got)
			}
		})
	}
}

func TestPrintBanner(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = ":8080"
	cfg.Auth.Mode = "delegated"
	cfg.Auth.DelegatedURL = "https://dashboard.example.com/auth"
	cfg.SessionStore.Backend = "remote"
	cfg.Roles.Backend = "rest"
	cfg.Policy.AllowedRoles = []string{"admin", "developer"}
	cfg.Content.Source = "s3"

	var buf bytes.Buffer
	printBanner(&buf, "1.2.3", cfg)
	out := buf.String()

	for _, want := range []string{
		"docgate 1.2.3",
		"http://localhost:8080/",
		"delegated -> https://dashboard.example.com/auth",
		"remote / rest",
		"admin, developer",
		"s3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}
