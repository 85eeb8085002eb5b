package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "ECHOFRAME_LOG_LEVEL"
	EnvLogTimestamp = "ECHOFRAME_LOG_TIMESTAMP"
	EnvLogNoColor   = "ECHOFRAME_LOG_NOCOLOR"
	EnvLogFormat    = "ECHOFRAME_LOG_FORMAT"
	EnvLogFile      = "ECHOFRAME_LOG_FILE"
	EnvLogMaxSizeMB = "ECHOFRAME_LOG_MAX_SIZE_MB"
	EnvLogBackups   = "ECHOFRAME_LOG_MAX_BACKUPS"

	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 10
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger setup for one process.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	JSON      bool
	Out       io.Writer
	File      FileConfig
}

// FileConfig adds a size-rotated JSON log file next to the console output.
// An empty Path disables it.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	// Sync writes through on the caller's goroutine instead of a buffered
	// background writer.
	Sync bool
	// Exclusive drops the console sink.
	Exclusive bool
}

func (f FileConfig) withDefaults() FileConfig {
	if f.MaxSizeMB <= 0 {
		f.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if f.MaxBackups <= 0 {
		f.MaxBackups = DefaultLogMaxBackups
	}
	return f
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var (
	configureOnce sync.Once
	mu            sync.Mutex
	active        Config
	activeSet     bool
	sink          io.Closer
)

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global zerolog logger once per process.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		install(cfg)
	})
}

// ConfigureFile attaches (or replaces) the file sink of the global logger.
// The file settings given here win over ECHOFRAME_LOG_FILE*.
func ConfigureFile(fc FileConfig) {
	if fc.Path == "" {
		return
	}
	mu.Lock()
	cfg := active
	if !activeSet {
		cfg = defaultConfig(ProfileRuntime)
		applyEnvOverrides(&cfg)
	}
	mu.Unlock()
	cfg.File = fc
	install(cfg)
}

// Close flushes and releases the global file sink, if any.
func Close() error {
	mu.Lock()
	closer := sink
	sink = nil
	mu.Unlock()
	if closer == nil {
		return nil
	}
	return closer.Close()
}

func install(cfg Config) {
	logger, closer := Open(cfg)
	mu.Lock()
	prev := sink
	sink = closer
	active = cfg
	activeSet = true
	log.Logger = logger
	zerolog.SetGlobalLevel(cfg.Level)
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// New builds a stream logger without touching global state. File settings
// are ignored; use Open for those.
func New(cfg Config) zerolog.Logger {
	cfg.File = FileConfig{}
	logger, _ := Open(cfg)
	return logger
}

// Open builds a logger from cfg, including its file sink. The closer flushes
// and closes that file and must be called before exit.
func Open(cfg Config) (zerolog.Logger, io.Closer) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		fc := cfg.File.withDefaults()
		var file io.WriteCloser = &lumberjack.Logger{
			Filename:   fc.Path,
			MaxSize:    fc.MaxSizeMB,
			MaxBackups: fc.MaxBackups,
		}
		if !fc.Sync {
			file = diode.NewWriter(file, 4096, 10*time.Millisecond, func(missed int) {
				fmt.Fprintf(os.Stderr, "logging: dropped %d log lines\n", missed)
			})
		}
		closer = file
		if fc.Exclusive {
			out = file
		} else {
			out = zerolog.MultiLevelWriter(out, file)
		}
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger(), closer
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Timestamp: false, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if path := strings.TrimSpace(os.Getenv(EnvLogFile)); path != "" {
		cfg.File.Path = path
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvLogMaxSizeMB))); err == nil && n > 0 {
		cfg.File.MaxSizeMB = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvLogBackups))); err == nil && n > 0 {
		cfg.File.MaxBackups = n
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "json":
		cfg.JSON = true
	case "console", "text":
		cfg.JSON = false
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
