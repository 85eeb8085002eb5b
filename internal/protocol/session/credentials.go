package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var ErrNoCredentials = errors.New("session: no tls credentials")

// CredentialProvider supplies the server certificate chain and private key.
type CredentialProvider interface {
	Certificate() (tls.Certificate, error)
}

// FileCredentials reads a PEM certificate chain and a PEM private key from disk.
type FileCredentials struct {
	CertFile string
	KeyFile  string
}

func (f FileCredentials) Certificate() (tls.Certificate, error) {
	if strings.TrimSpace(f.CertFile) == "" || strings.TrimSpace(f.KeyFile) == "" {
		return tls.Certificate{}, ErrNoCredentials
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("session: load key pair %s: %w", f.CertFile, err)
	}
	return cert, nil
}

// ServerTLSConfig builds the listener config. TLS 1.2 is the floor; client
// certificates are required only when clientCAFile is set.
func ServerTLSConfig(p CredentialProvider, clientCAFile string) (*tls.Config, error) {
	if p == nil {
		return nil, ErrNoCredentials
	}
	cert, err := p.Certificate()
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if path := strings.TrimSpace(clientCAFile); path != "" {
		pool, err := loadCertPool(path)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

// ServerTLSConfigFrom applies the session TLS settings.
func ServerTLSConfigFrom(c TLSConfig) (*tls.Config, error) {
	caFile := ""
	if c.Mutual {
		caFile = c.CAFile
	}
	return ServerTLSConfig(FileCredentials{CertFile: c.CertFile, KeyFile: c.KeyFile}, caFile)
}

// ClientTLSConfig builds the dialer side. ServerName falls back to the host
// part of addr.
func ClientTLSConfig(c TLSConfig, addr string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(c.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if path := strings.TrimSpace(c.CAFile); path != "" {
		pool, err := loadCertPool(path)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if c.Mutual {
		cert, err := FileCredentials{CertFile: c.CertFile, KeyFile: c.KeyFile}.Certificate()
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("session: parse tls ca bundle: %s", path)
	}
	return pool, nil
}
