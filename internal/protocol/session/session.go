package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/echoframe/internal/observability"
	"github.com/danmuck/echoframe/internal/protocol/frame"
	"github.com/rs/zerolog"
)

var (
	ErrSessionClosed   = errors.New("session: closed")
	ErrSessionStarted  = errors.New("session: already running")
	ErrHandshakeFailed = errors.New("session: handshake failed")
	ErrInvalidFrame    = errors.New("session: invalid frame header")
	ErrHandlerFailed   = errors.New("session: handler failed")
)

const sendMailboxSize = 64

type ioResult struct {
	n   int
	err error
}

// Session drives one connection from handshake to close.
type Session struct {
	id        uint64
	tr        Transport
	handler   Handler
	cfg       Config
	logger    zerolog.Logger
	remote    string
	startedAt time.Time

	state     atomic.Int32
	running   atomic.Bool
	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	queued    atomic.Int64
	throttled atomic.Bool

	// loop-owned
	ctx     context.Context
	parser  frame.Parser
	queue   sendQueue
	readBuf []byte
	reading bool
	writing bool
	paused  bool
	closing bool

	readReq   chan struct{}
	readDone  chan ioResult
	writeReq  chan []byte
	writeDone chan ioResult
	sendCh    chan []byte
	quit      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	ioWG      sync.WaitGroup

	closeReason string
	closeErr    error
}

// New wires a session around tr. A nil handler echoes.
func New(id uint64, tr Transport, handler Handler, cfg Config, logger zerolog.Logger) *Session {
	cfg = cfg.WithDefaults()
	if handler == nil {
		handler = EchoHandler{}
	}
	remote := ""
	if addr := tr.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s := &Session{
		id:        id,
		tr:        tr,
		handler:   handler,
		cfg:       cfg,
		remote:    remote,
		startedAt: time.Now(),
		readBuf:   make([]byte, cfg.ReadBufferSize),
		readReq:   make(chan struct{}, 1),
		readDone:  make(chan ioResult),
		writeReq:  make(chan []byte, 1),
		writeDone: make(chan ioResult),
		sendCh:    make(chan []byte, sendMailboxSize),
		quit:      make(chan struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.logger = logger.With().
		Uint64("session", id).
		Str("remote", remote).
		Str("transport", tr.Kind()).
		Logger()
	return s
}

func (s *Session) ID() uint64            { return s.id }
func (s *Session) Remote() string        { return s.remote }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseReason is set once Done is closed.
func (s *Session) CloseReason() string {
	<-s.done
	return s.closeReason
}

// Run performs the handshake and then serves the connection until it closes.
// A peer EOF or a requested stop returns nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}
	defer close(s.done)

	observability.RecordSessionOpened(s.tr.Kind())
	s.logger.Info().Msg("session opened")

	if err := s.handshake(ctx); err != nil {
		if ctx.Err() != nil || s.stopRequested() {
			return s.teardown(ReasonStopped, nil)
		}
		observability.RecordHandshakeFailure()
		s.logger.Warn().Err(err).Msg("session handshake failed")
		return s.teardown(ReasonHandshake, fmt.Errorf("%w: %v", ErrHandshakeFailed, err))
	}
	s.advance(StateActive)

	s.ioWG.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s.loop(ctx)
}

// Close asks the session to stop. It never blocks; wait on Done.
func (s *Session) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Send encodes and queues a frame from outside the session loop.
func (s *Session) Send(cmd frame.CommandID, payload []byte) error {
	if s.State() >= StateClosing {
		return ErrSessionClosed
	}
	wire, err := frame.Build(cmd, payload)
	if err != nil {
		return err
	}
	select {
	case <-s.quit:
		return ErrSessionClosed
	default:
	}
	select {
	case s.sendCh <- wire:
	case <-s.quit:
		return ErrSessionClosed
	}
	// The loop may have torn down between the checks and the mailbox write;
	// such a frame is never written.
	if s.State() >= StateClosing {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.id,
		Remote:      s.remote,
		Transport:   s.tr.Kind(),
		State:       s.State(),
		FramesIn:    s.framesIn.Load(),
		FramesOut:   s.framesOut.Load(),
		BytesIn:     s.bytesIn.Load(),
		BytesOut:    s.bytesOut.Load(),
		QueuedBytes: s.queued.Load(),
		ReadsPaused: s.throttled.Load(),
		StartedAt:   s.startedAt,
	}
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Session) advance(to State) bool {
	for {
		cur := State(s.state.Load())
		if cur >= to {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

func (s *Session) handshake(ctx context.Context) error {
	if s.tr.Kind() == TransportTLS {
		s.advance(StateHandshaking)
	}
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-hctx.Done():
		}
	}()
	return s.tr.Handshake(hctx)
}

func (s *Session) loop(ctx context.Context) error {
	s.ctx = ctx

	var heartbeat <-chan time.Time
	if s.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	s.requestRead()
	for {
		select {
		case <-ctx.Done():
			return s.teardown(ReasonStopped, nil)
		case <-s.stop:
			return s.teardown(ReasonStopped, nil)
		case res := <-s.readDone:
			if reason, err := s.onRead(res); reason != "" {
				return s.teardown(reason, err)
			}
		case res := <-s.writeDone:
			if reason, err := s.onWrite(res); reason != "" {
				return s.teardown(reason, err)
			}
		case wire := <-s.sendCh:
			s.enqueue(wire)
		case <-heartbeat:
			s.enqueue(frame.BuildHeaderOnly(frame.CmdHeartbeat))
		}
	}
}

func (s *Session) onRead(res ioResult) (string, error) {
	s.reading = false
	if res.n > 0 {
		s.bytesIn.Add(uint64(res.n))
		observability.RecordBytesIn(res.n)
		s.parser.Push(s.readBuf[:res.n])
		if reason, err := s.drain(); reason != "" {
			return reason, err
		}
	}
	if res.err != nil {
		if errors.Is(res.err, io.EOF) {
			return ReasonEOF, nil
		}
		s.logger.Warn().Err(res.err).Msg("session read failed")
		return ReasonReadError, fmt.Errorf("session: read: %w", res.err)
	}
	s.requestRead()
	return "", nil
}

// drain dispatches every complete frame currently buffered.
func (s *Session) drain() (string, error) {
	for {
		f, result := s.parser.TryParse()
		switch result {
		case frame.ParseSuccess:
			s.framesIn.Add(1)
			observability.RecordFrameIn()
			if err := s.handler.HandleFrame(s.ctx, f, replier{s: s}); err != nil {
				s.logger.Warn().Err(err).Stringer("command", f.Command()).Msg("session handler failed")
				return ReasonHandlerError, fmt.Errorf("%w: %v", ErrHandlerFailed, err)
			}
		case frame.ParseInvalidHeader:
			observability.RecordInvalidHeader()
			s.logger.Warn().Msg("session invalid frame header")
			return ReasonInvalidFrame, ErrInvalidFrame
		default:
			return "", nil
		}
	}
}

func (s *Session) onWrite(res ioResult) (string, error) {
	s.writing = false
	if res.err != nil {
		s.logger.Warn().Err(res.err).Msg("session write failed")
		return ReasonWriteError, fmt.Errorf("session: write: %w", res.err)
	}
	s.queue.Pop()
	s.queued.Store(int64(s.queue.Bytes()))
	s.framesOut.Add(1)
	s.bytesOut.Add(uint64(res.n))
	observability.RecordFrameOut(res.n)

	s.kickWrite()
	if s.paused && s.queue.Bytes() <= s.cfg.MaxPendingBytes/2 {
		s.paused = false
		s.throttled.Store(false)
		s.logger.Debug().Int("queued_bytes", s.queue.Bytes()).Msg("session reads resumed")
		s.requestRead()
	}
	return "", nil
}

func (s *Session) enqueue(wire []byte) {
	if s.closing {
		return
	}
	s.queue.Push(wire)
	s.queued.Store(int64(s.queue.Bytes()))
	s.kickWrite()
}

func (s *Session) kickWrite() {
	if s.writing || s.closing || s.queue.Len() == 0 {
		return
	}
	s.writing = true
	s.writeReq <- s.queue.Front()
}

func (s *Session) requestRead() {
	if s.reading || s.paused || s.closing {
		return
	}
	if limit := s.cfg.MaxPendingBytes; limit > 0 && s.queue.Bytes() > limit {
		s.paused = true
		s.throttled.Store(true)
		observability.RecordReadsPaused()
		s.logger.Debug().Int("queued_bytes", s.queue.Bytes()).Msg("session reads paused")
		return
	}
	s.reading = true
	s.readReq <- struct{}{}
}

func (s *Session) readLoop() {
	defer s.ioWG.Done()
	for {
		select {
		case <-s.quit:
			return
		case <-s.readReq:
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.tr.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		n, err := s.tr.Read(s.readBuf)
		select {
		case s.readDone <- ioResult{n: n, err: err}:
		case <-s.quit:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.ioWG.Done()
	for {
		var wire []byte
		select {
		case <-s.quit:
			return
		case wire = <-s.writeReq:
		}
		if s.cfg.WriteTimeout > 0 {
			_ = s.tr.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		n, err := s.tr.Write(wire)
		if err == nil && n < len(wire) {
			err = io.ErrShortWrite
		}
		select {
		case s.writeDone <- ioResult{n: n, err: err}:
		case <-s.quit:
			return
		}
	}
}

// teardown runs once per session, on the goroutine that owns the loop.
func (s *Session) teardown(reason string, cause error) error {
	s.closeOnce.Do(func() {
		wasActive := s.State() == StateActive
		s.advance(StateClosing)
		s.closing = true
		s.queue.Clear()
		s.queued.Store(0)
		close(s.quit)

		if wasActive {
			s.shutdownTransport()
		}
		if err := s.tr.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("session close")
		}
		s.ioWG.Wait()
		s.advance(StateClosed)

		lifetime := time.Since(s.startedAt)
		observability.RecordSessionClosed(reason, lifetime)
		s.logger.Info().
			Str("reason", reason).
			Uint64("frames_in", s.framesIn.Load()).
			Uint64("frames_out", s.framesOut.Load()).
			Uint64("bytes_in", s.bytesIn.Load()).
			Uint64("bytes_out", s.bytesOut.Load()).
			Dur("lifetime", lifetime).
			Msg("session closed")

		s.closeReason = reason
		s.closeErr = cause
	})
	return s.closeErr
}

// shutdownTransport sends the end-of-stream signal but never waits longer
// than ShutdownTimeout; a peer that stopped reading gets the socket aborted.
func (s *Session) shutdownTransport() {
	_ = s.tr.SetWriteDeadline(time.Now().Add(s.cfg.ShutdownTimeout))
	done := make(chan error, 1)
	go func() { done <- s.tr.Shutdown() }()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Debug().Err(err).Msg("session shutdown")
		}
	case <-timer.C:
		s.logger.Debug().Dur("timeout", s.cfg.ShutdownTimeout).Msg("session shutdown timed out, aborting")
		if err := s.tr.Abort(); err != nil {
			s.logger.Debug().Err(err).Msg("session abort")
		}
		<-done
	}
}

type replier struct {
	s *Session
}

func (r replier) Reply(cmd frame.CommandID, payload []byte) error {
	if r.s.closing {
		return ErrSessionClosed
	}
	wire, err := frame.Build(cmd, payload)
	if err != nil {
		return err
	}
	r.s.enqueue(wire)
	return nil
}
