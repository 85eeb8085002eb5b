package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/echoframe/internal/client"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/server"
	"github.com/pelletier/go-toml/v2"
)

const (
	KindServer = "server"
	KindClient = "client"
)

// Template renders the defaults for kind as a commented TOML file.
func Template(kind string) (string, error) {
	var doc any
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindServer:
		doc = serverFileFrom(DefaultServerConfig())
	case KindClient:
		doc = clientFileFrom(DefaultClientConfig())
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return string(out), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func serverFileFrom(cfg server.RunnerConfig) ServerFile {
	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:3000"}
	}
	return ServerFile{
		Addr:          cfg.Server.ListenAddr,
		AdminAddr:     "127.0.0.1:9100",
		NodeID:        cfg.NodeID,
		Workers:       cfg.Workers,
		CORSOrigins:   origins,
		LogFile:       cfg.Log.Path,
		LogMaxSizeMB:  cfg.Log.MaxSizeMB,
		LogMaxBackups: cfg.Log.MaxBackups,
		SessionFile:   sessionFileFrom(cfg.Server.Session),
	}
}

func clientFileFrom(cfg client.Config) ClientFile {
	return ClientFile{
		Addr:               cfg.Address,
		MaxConnectAttempts: cfg.MaxConnectAttempts,
		TLSServerName:      cfg.Session.TLS.ServerName,
		TLSInsecureSkip:    cfg.Session.TLS.InsecureSkipVerify,
		SessionFile:        sessionFileFrom(cfg.Session),
	}
}

func sessionFileFrom(cfg session.Config) SessionFile {
	return SessionFile{
		SecurityMode:      string(session.NormalizeSecurityMode(cfg.SecurityMode)),
		TLSEnabled:        cfg.TLS.Enabled,
		TLSMutual:         cfg.TLS.Mutual,
		TLSCertFile:       cfg.TLS.CertFile,
		TLSKeyFile:        cfg.TLS.KeyFile,
		TLSCAFile:         cfg.TLS.CAFile,
		ReadBufferSize:    cfg.ReadBufferSize,
		MaxPendingBytes:   cfg.MaxPendingBytes,
		ConnectTimeout:    durationString(cfg.ConnectTimeout),
		HandshakeTimeout:  durationString(cfg.HandshakeTimeout),
		ReadTimeout:       durationString(cfg.ReadTimeout),
		WriteTimeout:      durationString(cfg.WriteTimeout),
		ShutdownTimeout:   durationString(cfg.ShutdownTimeout),
		HeartbeatInterval: durationString(cfg.HeartbeatInterval),
	}
}

func durationString(d time.Duration) string {
	return d.String()
}
