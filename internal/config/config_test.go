package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/server"
	"github.com/danmuck/echoframe/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerConfigOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
addr = "127.0.0.1:7000"
workers = 4
max_pending_bytes = 1048576
heartbeat_interval = "15s"
admin_token = " tok "
log_file = "logs/server.log"
log_max_backups = 3
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:7000" || cfg.Workers != 4 {
		t.Fatalf("overlay addr=%q workers=%d", cfg.Server.ListenAddr, cfg.Workers)
	}
	if cfg.Server.Session.MaxPendingBytes != 1<<20 || cfg.Server.Session.HeartbeatInterval != 15*time.Second {
		t.Fatalf("session overlay=%+v", cfg.Server.Session)
	}
	if cfg.Server.Session.ReadBufferSize != session.DefaultReadBufferSize {
		t.Fatalf("undefined key lost its default, read buffer=%d", cfg.Server.Session.ReadBufferSize)
	}
	if cfg.NodeID != "echoserver" || cfg.AdminAddr != "" {
		t.Fatalf("defaults node=%q admin=%q", cfg.NodeID, cfg.AdminAddr)
	}
	if cfg.AdminToken != "tok" {
		t.Fatalf("admin token=%q", cfg.AdminToken)
	}
	if cfg.Log.Path != "logs/server.log" || cfg.Log.MaxBackups != 3 || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("log file overlay=%+v", cfg.Log)
	}
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown key":      `bogus = 1`,
		"bad duration":     `read_timeout = "soon"`,
		"negative pending": `max_pending_bytes = -1`,
		"zero buffer":      `read_buffer_size = 0`,
		"empty addr":       `addr = ""`,
		"negative workers": `workers = -2`,
		"zero log size":    `log_max_size_mb = 0`,
	}
	for name, body := range cases {
		if _, err := LoadServerConfig(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	_, err := LoadServerConfig(writeFile(t, `session_security_mode = "production"`))
	if !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("production without tls got=%v", err)
	}
	_, err = LoadServerConfig(writeFile(t, `
session_tls_enabled = true
session_tls_cert_file = "server.crt"
session_tls_key_file = "server.key"
session_tls_ca_file = "ca.crt"
`))
	if !errors.Is(err, session.ErrTLSCAFileUnused) {
		t.Fatalf("ca file without mutual got=%v", err)
	}
	if _, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestLoadClientConfig(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `
addr = "echo.internal:12345"
max_connect_attempts = 0
session_tls_enabled = true
session_tls_server_name = "echo.internal"
session_tls_ca_file = "/etc/echoframe/ca.crt"
read_timeout = "2s"
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != "echo.internal:12345" || cfg.MaxConnectAttempts != 0 {
		t.Fatalf("client overlay=%+v", cfg)
	}
	if !cfg.Session.TLS.Enabled || cfg.Session.TLS.ServerName != "echo.internal" || cfg.Session.ReadTimeout != 2*time.Second {
		t.Fatalf("client session=%+v", cfg.Session)
	}
}

func TestTemplatesRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{KindServer, KindClient} {
		body, err := Template(kind)
		if err != nil {
			t.Fatalf("%s template: %v", kind, err)
		}
		if !strings.Contains(body, "session_security_mode") || (kind == KindServer && !strings.Contains(body, "log_max_backups = 10")) {
			t.Fatalf("%s template missing session keys:\n%s", kind, body)
		}
		path := writeFile(t, body)
		switch kind {
		case KindServer:
			cfg, err := LoadServerConfig(path)
			if err != nil {
				t.Fatalf("load server template: %v\n%s", err, body)
			}
			if cfg.Server.ListenAddr != server.DefaultListenAddr || cfg.AdminAddr == "" {
				t.Fatalf("server template cfg=%+v", cfg)
			}
		case KindClient:
			if _, err := LoadClientConfig(path); err != nil {
				t.Fatalf("load client template: %v\n%s", err, body)
			}
		}
	}
	if _, err := Template("proxy"); err == nil {
		t.Fatalf("unknown kind should fail")
	}
}

func TestWriteTemplateRespectsOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := WriteTemplate(path, KindServer, false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteTemplate(path, KindServer, false); err == nil {
		t.Fatalf("second write without overwrite should fail")
	}
	if err := WriteTemplate(path, KindServer, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}
