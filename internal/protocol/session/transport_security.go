package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrTLSRequired             = errors.New("session: tls required")
	ErrTLSCertFileRequired     = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("session: tls key file required")
	ErrTLSCAFileRequired       = errors.New("session: tls ca file required")
	ErrTLSCAFileUnused         = errors.New("session: tls ca file set without mutual tls")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify not allowed")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

func validateMode(mode SecurityMode) (SecurityMode, error) {
	norm := NormalizeSecurityMode(mode)
	switch norm {
	case SecurityModeDevelopment, SecurityModeProduction:
		return norm, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSecurityMode, mode)
	}
}

// ValidateClientTransport checks dialer settings. Production refuses plain
// TCP and unverified servers.
func (c Config) ValidateClientTransport() error {
	mode, err := validateMode(c.SecurityMode)
	if err != nil {
		return err
	}

	if mode == SecurityModeProduction {
		if !c.TLS.Enabled {
			return ErrTLSRequired
		}
		if c.TLS.InsecureSkipVerify {
			return ErrTLSInsecureSkipNotAllow
		}
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Mutual {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

// ValidateServerTransport checks listener settings before any socket is opened.
func (c Config) ValidateServerTransport() error {
	mode, err := validateMode(c.SecurityMode)
	if err != nil {
		return err
	}

	if mode == SecurityModeProduction && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	if c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	// A listener only reads the CA to verify clients.
	if !c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) != "" {
		return ErrTLSCAFileUnused
	}
	return nil
}
