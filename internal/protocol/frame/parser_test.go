package frame

import (
	"bytes"
	"testing"

	"github.com/danmuck/echoframe/internal/testutil/testlog"
)

func mustBuild(t *testing.T, cmd CommandID, payload string) []byte {
	t.Helper()
	wire, err := Build(cmd, []byte(payload))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return wire
}

func expectFrame(t *testing.T, p *Parser, cmd CommandID, payload string) {
	t.Helper()
	f, res := p.TryParse()
	if res != ParseSuccess {
		t.Fatalf("expected success, got %s", res)
	}
	if f.Command() != cmd {
		t.Fatalf("command mismatch: got=%s want=%s", f.Command(), cmd)
	}
	if string(f.Payload) != payload {
		t.Fatalf("payload mismatch: got=%q want=%q", f.Payload, payload)
	}
}

func expectResult(t *testing.T, p *Parser, want ParseResult) {
	t.Helper()
	if _, res := p.TryParse(); res != want {
		t.Fatalf("expected %s, got %s", want, res)
	}
}

func TestParseSingleCompletePacket(t *testing.T) {
	testlog.Start(t)
	var p Parser
	p.Push(mustBuild(t, CmdPublishMessage, "hello"))
	expectFrame(t, &p, CmdPublishMessage, "hello")
	expectResult(t, &p, ParseNeedMoreData)
	if p.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d", p.Buffered())
	}
}

func TestParseRoundTripPayloadSizes(t *testing.T) {
	testlog.Start(t)
	for _, n := range []int{0, 1, 7, 8, 1023, 1024, 4096, MaxPayloadLength} {
		payload := bytes.Repeat([]byte{byte(n)}, n)
		wire, err := Build(CommandID(n%65536), payload)
		if err != nil {
			t.Fatalf("n=%d build: %v", n, err)
		}
		var p Parser
		p.Push(wire)
		f, res := p.TryParse()
		if res != ParseSuccess {
			t.Fatalf("n=%d expected success, got %s", n, res)
		}
		if f.Command() != CommandID(n%65536) || !bytes.Equal(f.Payload, payload) {
			t.Fatalf("n=%d round trip mismatch", n)
		}
	}
}

func TestParseSplitPacket(t *testing.T) {
	testlog.Start(t)
	wire := mustBuild(t, CmdPublishMessage, "this is a relatively long message")
	for _, cut := range []int{1, 5, HeaderLen - 1, HeaderLen, HeaderLen + 3, len(wire) - 1} {
		var p Parser
		p.Push(wire[:cut])
		expectResult(t, &p, ParseNeedMoreData)
		if p.Buffered() != cut {
			t.Fatalf("cut=%d need-more must not consume, buffered=%d", cut, p.Buffered())
		}
		p.Push(wire[cut:])
		expectFrame(t, &p, CmdPublishMessage, "this is a relatively long message")
	}
}

func TestParseByteAtATime(t *testing.T) {
	testlog.Start(t)
	wire := mustBuild(t, CmdAuthRequest, "token123")
	var p Parser
	for i := 0; i < len(wire)-1; i++ {
		p.Push(wire[i : i+1])
		expectResult(t, &p, ParseNeedMoreData)
	}
	p.Push(wire[len(wire)-1:])
	expectFrame(t, &p, CmdAuthRequest, "token123")
}

func TestParseStickyPackets(t *testing.T) {
	testlog.Start(t)
	var p Parser
	combined := append(mustBuild(t, CmdPublishMessage, "msg1"), mustBuild(t, CmdAuthRequest, "token123")...)
	p.Push(combined)
	expectFrame(t, &p, CmdPublishMessage, "msg1")
	expectFrame(t, &p, CmdAuthRequest, "token123")
	expectResult(t, &p, ParseNeedMoreData)
}

func TestParseStickyPacketWithIncompleteTail(t *testing.T) {
	testlog.Start(t)
	var p Parser
	second := mustBuild(t, CmdAuthRequest, "token123")
	combined := append(mustBuild(t, CmdPublishMessage, "msg1"), second[:10]...)
	p.Push(combined)
	expectFrame(t, &p, CmdPublishMessage, "msg1")
	expectResult(t, &p, ParseNeedMoreData)
	if p.Buffered() != 10 {
		t.Fatalf("partial tail must stay buffered, got %d", p.Buffered())
	}
	p.Push(second[10:])
	expectFrame(t, &p, CmdAuthRequest, "token123")
}

func TestParseHeaderOnlyPacket(t *testing.T) {
	testlog.Start(t)
	var p Parser
	p.Push(BuildHeaderOnly(CmdHeartbeat))
	f, res := p.TryParse()
	if res != ParseSuccess {
		t.Fatalf("expected success, got %s", res)
	}
	if f.Command() != CmdHeartbeat || f.Header.TotalLength != HeaderLen {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("payload should be empty, got %d bytes", len(f.Payload))
	}
}

func TestParseInvalidLengthTooSmall(t *testing.T) {
	testlog.Start(t)
	var p Parser
	p.Push(EncodeHeader(Header{TotalLength: 4, CommandID: CmdPublishMessage}))
	expectResult(t, &p, ParseInvalidHeader)
	if p.Buffered() != 0 {
		t.Fatalf("invalid header must clear the buffer, got %d", p.Buffered())
	}
	expectResult(t, &p, ParseNeedMoreData)
}

func TestParseInvalidLengthTooLarge(t *testing.T) {
	testlog.Start(t)
	var p Parser
	bad := EncodeHeader(Header{TotalLength: 99999, CommandID: CmdPublishMessage})
	// trailing valid frame is dropped along with the bad header
	p.Push(append(bad, mustBuild(t, CmdPublishMessage, "after")...))
	expectResult(t, &p, ParseInvalidHeader)
	if p.Buffered() != 0 {
		t.Fatalf("invalid header must clear the buffer, got %d", p.Buffered())
	}
	expectResult(t, &p, ParseNeedMoreData)

	p.Push(mustBuild(t, CmdPublishMessage, "fresh"))
	expectFrame(t, &p, CmdPublishMessage, "fresh")
}

func TestParseMaxFrameLengthBoundary(t *testing.T) {
	testlog.Start(t)
	var p Parser
	p.Push(EncodeHeader(Header{TotalLength: MaxFrameLength, CommandID: CmdPublishMessage}))
	expectResult(t, &p, ParseNeedMoreData)
	p.Reset()
	p.Push(EncodeHeader(Header{TotalLength: MaxFrameLength + 1, CommandID: CmdPublishMessage}))
	expectResult(t, &p, ParseInvalidHeader)
}

func TestParsePayloadDoesNotAliasBuffer(t *testing.T) {
	testlog.Start(t)
	var p Parser
	p.Push(mustBuild(t, CmdPublishMessage, "first"))
	f, _ := p.TryParse()
	p.Push(mustBuild(t, CmdPublishMessage, "XXXXX"))
	if string(f.Payload) != "first" {
		t.Fatalf("payload changed after push: %q", f.Payload)
	}
}

func TestParseSteadyStreamCompactsBuffer(t *testing.T) {
	testlog.Start(t)
	var p Parser
	wire := mustBuild(t, CmdPublishMessage, "steady-state")
	for i := 0; i < 1000; i++ {
		p.Push(wire[:5])
		p.Push(wire[5:])
		p.Push(wire[:3])
		expectFrame(t, &p, CmdPublishMessage, "steady-state")
		p.Push(wire[3:])
		expectFrame(t, &p, CmdPublishMessage, "steady-state")
	}
	if cap(p.buf) > 4*len(wire) {
		t.Fatalf("buffer grew without bound: cap=%d", cap(p.buf))
	}
}

func FuzzParser(f *testing.F) {
	seed, _ := Build(CmdPublishMessage, []byte("seed"))
	f.Add(seed, 3)
	f.Add([]byte{0, 0, 0, 4, 0, 1, 0, 0}, 1)
	f.Fuzz(func(t *testing.T, data []byte, chunk int) {
		if chunk <= 0 {
			chunk = 1
		}
		var p Parser
		for len(data) > 0 {
			n := min(chunk, len(data))
			p.Push(data[:n])
			data = data[n:]
			for {
				fr, res := p.TryParse()
				if res != ParseSuccess {
					break
				}
				if int(fr.Header.TotalLength) != HeaderLen+len(fr.Payload) {
					t.Fatalf("length mismatch: %d vs %d", fr.Header.TotalLength, len(fr.Payload))
				}
			}
			if p.Buffered() > MaxFrameLength+chunk {
				t.Fatalf("buffer exceeded bound: %d", p.Buffered())
			}
		}
	})
}
