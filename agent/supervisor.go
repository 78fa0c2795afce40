// Package agent supervises the agent CLI subprocess: it spawns the process
// in streaming JSON mode, writes user records to its stdin, decodes its
// stdout into typed events, and reports exactly one terminal event per
// session attempt.
package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bazelment/yoloswe/agentsession/internal/logging"
	"github.com/bazelment/yoloswe/agentsession/internal/ndjson"
	"github.com/bazelment/yoloswe/agentsession/internal/queue"
	"github.com/bazelment/yoloswe/agentsession/protocol"
)

// DefaultSessionID is the session id used until the agent announces its own.
const DefaultSessionID = "default"

// stderrTailSize bounds the stderr kept for ExitError.
const stderrTailSize = 4096

// State is the supervisor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// attempt is one spawned process and everything scoped to it.
type attempt struct {
	ctx      context.Context
	proc     *processManager
	rec      *recorder
	done     chan struct{}
	stderr   *tailBuffer
	id       uint64
	stopOnce sync.Once
	stopping atomic.Bool
	// ended is guarded by Supervisor.mu.
	ended bool
}

// Supervisor owns at most one live agent subprocess at a time and exposes
// its output as a single event feed that outlives individual attempts.
type Supervisor struct {
	logger    *slog.Logger
	queue     *queue.Queue[Event]
	events    chan Event
	current   *attempt
	config    Config
	sessionID string
	state     State
	attempts  uint64
	mu        sync.Mutex
	// startMu serializes Start, Stop and Close.
	startMu sync.Mutex
	closed  bool
}

// NewSupervisor creates a Supervisor. The event feed is live immediately and
// stays open until Close.
func NewSupervisor(opts ...Option) *Supervisor {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		config:    config,
		logger:    logger,
		queue:     queue.New[Event](),
		events:    make(chan Event, config.EventBufferSize),
		sessionID: DefaultSessionID,
	}
	go s.queue.Pump(s.events)
	return s
}

// Events returns the event feed. Each session attempt ends with exactly one
// ErrorEvent or ExitEvent. The channel is closed after Close; callers should
// drain it until then.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// SessionID returns the current session id.
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// State returns the lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a subprocess is attached.
func (s *Supervisor) Running() bool {
	return s.State() == StateRunning
}

// Start spawns the agent. A live previous process is stopped first, and its
// terminal event is delivered before anything from the new one. A spawn
// failure is returned and also reported as an ErrorEvent.
//
// ctx bounds the process lifetime, not just the spawn: cancelling it stops
// the agent as if Stop had been called, so pass a context that lives as long
// as the session, not a request-scoped one.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.current
	s.mu.Unlock()

	if prev != nil {
		s.stopAttempt(prev)
	}

	s.mu.Lock()
	s.attempts++
	id := s.attempts
	s.mu.Unlock()

	a := &attempt{
		id:     id,
		ctx:    ctx,
		done:   make(chan struct{}),
		stderr: newTailBuffer(stderrTailSize),
		proc:   newProcessManager(s.config, req),
	}

	if s.config.RecordDir != "" {
		rec, err := newRecorder(s.config.RecordDir, a.id)
		if err != nil {
			s.logger.Warn("session recording disabled", "error", err)
		} else {
			a.rec = rec
		}
	}

	startErr := a.proc.Start(ctx)

	s.mu.Lock()
	s.current = a
	s.sessionID = DefaultSessionID
	if req.Resume != "" {
		s.sessionID = req.Resume
	}
	if startErr == nil {
		s.state = StateRunning
	}
	s.mu.Unlock()

	if startErr != nil {
		_ = a.rec.close()
		s.finish(a, ErrorEvent{Err: startErr, Context: "start"})
		close(a.done)
		return startErr
	}

	s.logger.Debug("agent started",
		"attempt", a.id,
		"cli", s.config.CLIPath,
		"workDir", req.WorkDir,
		"permissionMode", req.PermissionMode)

	readDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go s.readLoop(a, readDone)
	go s.stderrLoop(a, stderrDone)
	go s.waitLoop(a, readDone, stderrDone)
	return nil
}

// Send writes one user text record. It fails with ErrNotRunning when no
// process is attached or its stdin is closed.
func (s *Supervisor) Send(text string) error {
	a, sid, err := s.live()
	if err != nil {
		return err
	}
	return s.write(a, protocol.NewUserTextMessage(sid, text))
}

// SendToolResult writes a tool_result for a tool the host executed.
func (s *Supervisor) SendToolResult(toolUseID, content string, isError bool) error {
	a, sid, err := s.live()
	if err != nil {
		return err
	}
	return s.write(a, protocol.NewToolResultMessage(sid, toolUseID, content, isError))
}

// Interrupt asks the agent to abandon the current turn.
func (s *Supervisor) Interrupt() error {
	a, _, err := s.live()
	if err != nil {
		return err
	}
	return s.write(a, protocol.NewInterrupt(generateRequestID()))
}

// Stop terminates the live process, if any, and returns once its terminal
// event has been queued. It is idempotent and safe from any state.
func (s *Supervisor) Stop() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	a := s.current
	s.mu.Unlock()
	if a != nil {
		s.stopAttempt(a)
	}
	return nil
}

// Close stops the live process and closes the event feed.
func (s *Supervisor) Close() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	a := s.current
	s.mu.Unlock()

	if a != nil {
		s.stopAttempt(a)
	}
	s.queue.Close()
	return nil
}

func (s *Supervisor) stopAttempt(a *attempt) {
	a.stopOnce.Do(func() {
		a.stopping.Store(true)
		a.proc.Stop()
	})
	<-a.done
}

func (s *Supervisor) live() (*attempt, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.current
	if a == nil || a.ended || a.proc.stdin == nil {
		return nil, "", ErrNotRunning
	}
	return a, s.sessionID, nil
}

type marshaler interface {
	Marshal() ([]byte, error)
}

func (s *Supervisor) write(a *attempt, msg marshaler) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	a.rec.record(protocol.DirectionSent, data)
	if err := a.proc.stdin.WriteRaw(data); err != nil {
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	s.logger.Log(context.Background(), logging.LevelTrace, "agent stdin", "line", string(data))
	return nil
}

// emit queues ev unless a's terminal event was already queued.
func (s *Supervisor) emit(a *attempt, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ended {
		return
	}
	s.queue.Push(ev)
}

// finish queues a's terminal event. Only the first call has an effect.
func (s *Supervisor) finish(a *attempt, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ended {
		return
	}
	a.ended = true
	if s.current == a {
		if ev.Type() == EventTypeError {
			s.state = StateErrored
		} else {
			s.state = StateIdle
		}
	}
	s.queue.Push(ev)
}

// stdoutChunkSize is the read size for the agent's stdout.
const stdoutChunkSize = 64 * 1024

// readLoop decodes the CLI's stdout and dispatches events.
func (s *Supervisor) readLoop(a *attempt, done chan<- struct{}) {
	defer close(done)

	var dec protocol.Decoder
	chunk := make([]byte, stdoutChunkSize)
	for {
		n, err := a.proc.stdout.Read(chunk)
		if n > 0 {
			for _, rec := range dec.Feed(chunk[:n]) {
				s.handleRecord(a, rec)
			}
		}
		if err != nil {
			if rec, ok := dec.Flush(); ok {
				s.handleRecord(a, rec)
			}
			if !errors.Is(err, io.EOF) && !a.stopping.Load() {
				s.logger.Debug("agent stdout closed", "attempt", a.id, "error", err)
			}
			// Drain so the process never blocks on a full pipe.
			_, _ = io.Copy(io.Discard, a.proc.stdout)
			return
		}
	}
}

// handleRecord emits the event for one decoded line.
func (s *Supervisor) handleRecord(a *attempt, rec protocol.Record) {
	line := rec.Line
	s.logger.Log(context.Background(), logging.LevelTrace, "agent stdout", "line", string(line))
	a.rec.record(protocol.DirectionReceived, line)

	msg, err := rec.Msg, rec.Err
	if err != nil {
		s.emit(a, TextEvent{
			Line: string(line),
			Err:  &ProtocolError{Message: "failed to parse message", Line: string(line), Cause: err},
		})
		return
	}
	if msg == nil {
		s.logger.Debug("ignoring unknown message type", "line", string(line))
		return
	}

	switch m := msg.(type) {
	case protocol.SystemMessage:
		if m.IsInit() && m.SessionID != "" {
			s.mu.Lock()
			if s.current == a {
				s.sessionID = m.SessionID
			}
			s.mu.Unlock()
			a.rec.setSessionID(m.SessionID)
		}
		s.emit(a, SystemEvent{Message: m})
	case protocol.AssistantMessage:
		s.emit(a, AssistantEvent{Message: m})
	case protocol.UserMessage:
		s.emit(a, UserEvent{Message: m})
	case protocol.ResultMessage:
		s.emit(a, ResultEvent{Message: m})
	case protocol.StreamEvent:
		data, err := m.Parsed()
		if err != nil {
			s.emit(a, TextEvent{
				Line: string(line),
				Err:  &ProtocolError{Message: "failed to parse stream event", Line: string(line), Cause: err},
			})
			return
		}
		if data == nil {
			return
		}
		s.emit(a, StreamEvent{Message: m, Data: data})
	}
}

// stderrLoop logs stderr lines, keeps a tail for ExitError, and forwards
// them to the configured handler.
func (s *Supervisor) stderrLoop(a *attempt, done chan<- struct{}) {
	defer close(done)

	reader := ndjson.NewReader(a.proc.stderr)
	for {
		line, err := reader.ReadLine()
		if err != nil {
			_, _ = io.Copy(io.Discard, a.proc.stderr)
			return
		}
		a.stderr.WriteLine(line)
		s.logger.Debug("agent stderr", "attempt", a.id, "line", string(line))
		if s.config.StderrHandler != nil {
			s.config.StderrHandler(line)
		}
	}
}

// waitLoop reaps the process once its output is drained and reports the
// terminal event.
func (s *Supervisor) waitLoop(a *attempt, readDone, stderrDone <-chan struct{}) {
	defer close(a.done)

	<-readDone
	<-stderrDone
	code, waitErr := a.proc.Wait()
	_ = a.rec.close()

	requested := a.stopping.Load() || a.ctx.Err() != nil
	s.logger.Debug("agent exited", "attempt", a.id, "code", code, "requested", requested, "error", waitErr)

	switch {
	case requested:
		s.finish(a, ExitEvent{Code: code, Requested: true})
	case code == 0:
		s.finish(a, ExitEvent{Code: 0})
	default:
		s.finish(a, ErrorEvent{
			Err:     &ExitError{Code: code, Stderr: a.stderr.String()},
			Context: "exit",
		})
	}
}

// generateRequestID generates a unique request ID for control requests.
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

// tailBuffer keeps the last max bytes of stderr.
type tailBuffer struct {
	buf []byte
	max int
	mu  sync.Mutex
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
