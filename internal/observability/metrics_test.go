package observability

import (
	"testing"
	"time"

	"github.com/danmuck/echoframe/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordSessionOpened("tcp")
	RecordBytesIn(16)
	RecordFrameIn()
	RecordFrameOut(16)
	RecordInvalidHeader()
	RecordHandshakeFailure()
	RecordReadsPaused()
	RecordSessionClosed("eof", 12*time.Millisecond)
	RecordHTTPRequest("admin", "GET", "/health", 200, 2*time.Millisecond)
}

func TestFrameCountersAdvance(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(framesTotal.WithLabelValues("out"))
	RecordFrameOut(8)
	RecordFrameOut(8)
	if got := testutil.ToFloat64(framesTotal.WithLabelValues("out")); got != before+2 {
		t.Fatalf("frames out: got=%v want=%v", got, before+2)
	}

	active := testutil.ToFloat64(sessionsActive)
	RecordSessionOpened("tls")
	if got := testutil.ToFloat64(sessionsActive); got != active+1 {
		t.Fatalf("active sessions: got=%v want=%v", got, active+1)
	}
	RecordSessionClosed("stopped", time.Millisecond)
	if got := testutil.ToFloat64(sessionsActive); got != active {
		t.Fatalf("active sessions after close: got=%v want=%v", got, active)
	}
}
