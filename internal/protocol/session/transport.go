package session

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

const (
	TransportTCP = "tcp"
	TransportTLS = "tls"
)

// Transport is the capability a Session drives. Plain and TLS connections
// differ only in Handshake and Shutdown.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Handshake completes any security negotiation before the first read.
	Handshake(ctx context.Context) error
	// Shutdown signals end of stream to the peer without releasing the socket.
	Shutdown() error
	// Abort releases the socket immediately, skipping any close_notify.
	Abort() error
	Close() error
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Kind() string
}

type closeWriter interface {
	CloseWrite() error
}

type plainTransport struct {
	net.Conn
}

// NewPlainTransport wraps a raw TCP connection. Shutdown half-closes when the
// connection supports it.
func NewPlainTransport(conn net.Conn) Transport {
	return &plainTransport{Conn: conn}
}

func (t *plainTransport) Handshake(context.Context) error { return nil }

func (t *plainTransport) Shutdown() error {
	if cw, ok := t.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (t *plainTransport) Abort() error { return t.Conn.Close() }

func (t *plainTransport) Kind() string { return TransportTCP }

type tlsTransport struct {
	*tls.Conn
}

// NewTLSTransport wraps a server or client side tls.Conn. Handshake runs the
// side the conn was created for; Shutdown sends close_notify.
func NewTLSTransport(conn *tls.Conn) Transport {
	return &tlsTransport{Conn: conn}
}

func (t *tlsTransport) Handshake(ctx context.Context) error {
	return t.Conn.HandshakeContext(ctx)
}

func (t *tlsTransport) Shutdown() error {
	return t.Conn.CloseWrite()
}

func (t *tlsTransport) Abort() error {
	return t.Conn.NetConn().Close()
}

func (t *tlsTransport) Kind() string { return TransportTLS }

// NewTransport picks the transport variant from the accepted connection type.
func NewTransport(conn net.Conn) Transport {
	switch c := conn.(type) {
	case *tls.Conn:
		return NewTLSTransport(c)
	default:
		return NewPlainTransport(conn)
	}
}
