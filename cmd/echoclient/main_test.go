package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/echoframe/internal/client"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/server"
	"github.com/danmuck/echoframe/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func startServer(t *testing.T) string {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Session: session.DefaultConfig()}, nil, log.Logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSendEchoesMessage(t *testing.T) {
	testlog.Start(t)
	addr := startServer(t)

	out, err := execute(t, "--addr", addr, "send", "--cmd", "auth.request", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(out, "auth.request hello (") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSendRejectsUnknownCommand(t *testing.T) {
	testlog.Start(t)
	if _, err := execute(t, "--addr", "127.0.0.1:1", "send", "--cmd", "nope", "x"); err == nil {
		t.Fatalf("expected unknown command error")
	}
}

func TestBenchJSONReport(t *testing.T) {
	testlog.Start(t)
	addr := startServer(t)

	out, err := execute(t, "--addr", addr, "bench", "--conns", "2", "--messages", "5", "--size", "16", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	var report client.BenchReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Total != 10 || report.Successes != 10 || report.Failures != 0 {
		t.Fatalf("report=%+v", report)
	}
}

func TestWriteReportYAML(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	in := client.BenchReport{Address: "127.0.0.1:12345", Connections: 3, Total: 30, Successes: 29, Failures: 1, FirstError: "boom"}
	if err := writeReport(&out, in, "yaml"); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got client.BenchReport
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != in {
		t.Fatalf("got=%+v want=%+v", got, in)
	}
	if err := writeReport(&out, in, "xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestResolveConfigTLSFlags(t *testing.T) {
	testlog.Start(t)
	root := newRootCmd()
	if err := root.PersistentFlags().Parse([]string{"--tls", "--tls-ca", "/tmp/ca.pem", "--tls-cert", "c.pem", "--tls-key", "k.pem"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	v := viper.New()
	bindFlags(v, root.PersistentFlags())
	cfg, err := resolveConfig(v)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !cfg.Session.TLS.Enabled || !cfg.Session.TLS.Mutual || cfg.Session.TLS.CAFile != "/tmp/ca.pem" {
		t.Fatalf("tls=%+v", cfg.Session.TLS)
	}
	if cfg.Address != client.DefaultAddress {
		t.Fatalf("addr=%q", cfg.Address)
	}
}
