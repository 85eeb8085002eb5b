package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not parse")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("empty level should not parse")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogFormat, "json")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || cfg.Timestamp || !cfg.JSON {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, JSON: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("session", "1").Msg("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"session":"1"`) || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestOpenWritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	var console bytes.Buffer
	logger, closer := Open(Config{
		Level: zerolog.InfoLevel,
		JSON:  true,
		Out:   &console,
		File:  FileConfig{Path: path, Sync: true},
	})
	logger.Info().Str("session", "7").Msg("both sinks")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"session":"7"`) || !strings.Contains(console.String(), "both sinks") {
		t.Fatalf("file=%q console=%q", data, console.String())
	}
}

func TestOpenAsyncFileFlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	var console bytes.Buffer
	logger, closer := Open(Config{
		Level: zerolog.InfoLevel,
		Out:   &console,
		File:  FileConfig{Path: path, Exclusive: true},
	})
	for i := 0; i < 50; i++ {
		logger.Info().Int("n", i).Msg("queued")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if got := strings.Count(string(data), "queued"); got != 50 {
		t.Fatalf("file lines=%d want 50", got)
	}
	if console.Len() != 0 {
		t.Fatalf("exclusive file sink still wrote console: %q", console.String())
	}
}

func TestOpenRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	logger, closer := Open(Config{
		Level: zerolog.InfoLevel,
		Out:   io.Discard,
		File:  FileConfig{Path: filepath.Join(dir, "server.log"), MaxSizeMB: 1, MaxBackups: 3, Sync: true},
	})
	line := strings.Repeat("x", 1024)
	for i := 0; i < 1500; i++ {
		logger.Info().Str("pad", line).Msg("fill")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected a rotated backup, files=%d", len(entries))
	}
}

func TestFileEnvOverridesAndDefaults(t *testing.T) {
	t.Setenv(EnvLogFile, "/var/log/echoframe/server.log")
	t.Setenv(EnvLogMaxSizeMB, "25")
	t.Setenv(EnvLogBackups, "nope")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.File.Path != "/var/log/echoframe/server.log" || cfg.File.MaxSizeMB != 25 {
		t.Fatalf("file overrides=%+v", cfg.File)
	}
	fc := cfg.File.withDefaults()
	if fc.MaxSizeMB != 25 || fc.MaxBackups != DefaultLogMaxBackups {
		t.Fatalf("defaults=%+v", fc)
	}
}
