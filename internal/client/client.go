// Package client dials an echo server and exchanges frames synchronously.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/echoframe/internal/protocol/frame"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/rs/zerolog"
)

const DefaultAddress = "127.0.0.1:12345"

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrEchoMismatch    = errors.New("client: echo mismatch")
)

type Config struct {
	Address            string
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Address:            DefaultAddress,
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 3,
	}
}

type Client struct {
	cfg    Config
	logger zerolog.Logger
	rngMu  sync.Mutex
	rng    *rand.Rand
}

func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("addr", cfg.Address).Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Dial is shorthand for New followed by Client.Dial.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Conn, error) {
	c, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return c.Dial(ctx)
}

// Dial connects, retrying with backoff until MaxConnectAttempts is spent.
// Zero attempts retries until ctx is done.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := c.dialOnce(ctx)
		if err == nil {
			c.logger.Debug().Int("attempt", attempt).Msg("client connected")
			return &Conn{conn: conn, cfg: c.cfg.Session}, nil
		}
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("client dial failed")
		if !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dialOnce(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Session.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := session.ClientTLSConfig(c.cfg.Session.TLS, c.cfg.Address)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	c.rngMu.Lock()
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	c.rngMu.Unlock()
	if !session.WaitBackoff(ctx, delay) {
		return ctx.Err()
	}
	return nil
}

// Conn is one synchronous frame connection. Send and Receive may be used from
// different goroutines, but not each from several at once.
type Conn struct {
	conn net.Conn
	cfg  session.Config
}

func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *Conn) Send(cmd frame.CommandID, payload []byte) error {
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return frame.WriteFrame(c.conn, frame.Frame{Header: frame.Header{CommandID: cmd}, Payload: payload})
}

func (c *Conn) Receive() (frame.Frame, error) {
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return frame.ReadFrame(c.conn)
}

// Echo sends one frame and waits for its reply, skipping server heartbeats.
func (c *Conn) Echo(cmd frame.CommandID, payload []byte) (frame.Frame, time.Duration, error) {
	start := time.Now()
	if err := c.Send(cmd, payload); err != nil {
		return frame.Frame{}, 0, err
	}
	for {
		f, err := c.Receive()
		if err != nil {
			return frame.Frame{}, 0, err
		}
		if f.Command() == frame.CmdHeartbeat && cmd != frame.CmdHeartbeat {
			continue
		}
		rtt := time.Since(start)
		if f.Command() != cmd || !bytes.Equal(f.Payload, payload) {
			return f, rtt, fmt.Errorf("%w: sent %s/%d bytes got %s/%d bytes",
				ErrEchoMismatch, cmd, len(payload), f.Command(), len(f.Payload))
		}
		return f, rtt, nil
	}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
