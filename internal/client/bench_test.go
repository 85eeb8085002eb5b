package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/testutil/testlog"
	"github.com/rs/zerolog/log"
)

func TestResultsReport(t *testing.T) {
	testlog.Start(t)
	r := &Results{}
	for i := 1; i <= 100; i++ {
		r.Record(time.Duration(i) * time.Millisecond)
	}
	r.RecordFailure(errors.New("first"))
	r.RecordFailure(errors.New("second"))

	rep := r.Report(time.Second)
	if rep.Successes != 100 || rep.Failures != 2 || rep.Total != 102 {
		t.Fatalf("counts=%+v", rep)
	}
	if rep.MinMS != 1 || rep.MaxMS != 100 || rep.P50MS != 50 || rep.P99MS != 99 {
		t.Fatalf("latencies min=%v max=%v p50=%v p99=%v", rep.MinMS, rep.MaxMS, rep.P50MS, rep.P99MS)
	}
	if rep.AvgMS != 50.5 {
		t.Fatalf("avg got=%v", rep.AvgMS)
	}
	if rep.Throughput != 100 {
		t.Fatalf("throughput got=%v", rep.Throughput)
	}
	if rep.FirstError != "first" {
		t.Fatalf("first error got=%q", rep.FirstError)
	}
}

func TestResultsReportEmpty(t *testing.T) {
	testlog.Start(t)
	rep := (&Results{}).Report(0)
	if rep.Total != 0 || rep.P99MS != 0 || rep.Throughput != 0 {
		t.Fatalf("empty report=%+v", rep)
	}
}

func TestBenchAgainstServer(t *testing.T) {
	testlog.Start(t)
	addr := startEchoServer(t, session.DefaultConfig())

	rep, err := Bench(context.Background(), BenchConfig{
		Client:      fastConfig(addr),
		Connections: 4,
		Messages:    25,
		PayloadSize: 128,
	}, log.Logger)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	if rep.Successes != 100 || rep.Failures != 0 {
		t.Fatalf("bench report=%+v", rep)
	}
	if rep.MinMS > rep.P50MS || rep.P50MS > rep.P99MS || rep.P99MS > rep.MaxMS {
		t.Fatalf("latency ordering broken report=%+v", rep)
	}
	if rep.Address != addr || rep.Connections != 4 || rep.MessagesPerConn != 25 {
		t.Fatalf("report metadata=%+v", rep)
	}
}

func TestBenchRejectsBadConfig(t *testing.T) {
	testlog.Start(t)
	_, err := Bench(context.Background(), BenchConfig{Client: DefaultConfig(), Connections: 0, Messages: 1}, log.Logger)
	if !errors.Is(err, ErrBenchConfig) {
		t.Fatalf("got=%v", err)
	}
}
