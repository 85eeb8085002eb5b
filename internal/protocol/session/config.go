package session

import "time"

// SecurityMode selects how strict transport validation is.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig describes the credential material for TLS transports.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-connection transport and lifecycle defaults.
type Config struct {
	SecurityMode SecurityMode
	TLS          TLSConfig

	// ReadBufferSize is the fixed scratch buffer reused for every read.
	ReadBufferSize int
	// MaxPendingBytes pauses reads while the send queue holds more than this
	// many bytes. Zero leaves the queue unbounded.
	MaxPendingBytes int

	ConnectTimeout    time.Duration
	HandshakeTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	HeartbeatInterval time.Duration
	Backoff           BackoffConfig
}

const (
	DefaultReadBufferSize   = 1024
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultShutdownTimeout  = 2 * time.Second
)

// DefaultConfig leaves idle timeouts and heartbeats off; the echo service
// keeps a connection until the peer leaves.
func DefaultConfig() Config {
	return Config{
		SecurityMode:     SecurityModeDevelopment,
		ReadBufferSize:   DefaultReadBufferSize,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values that would otherwise make a session unusable.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.SecurityMode == "" {
		c.SecurityMode = def.SecurityMode
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.MaxPendingBytes < 0 {
		c.MaxPendingBytes = 0
	}
	return c
}
