// Package engine composes a session for a host: it runs the agent
// supervisor, feeds its events into the transcript and the file change
// tracker, serves tool approvals, and reports everything the host renders
// as a single update feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/bazelment/yoloswe/agentsession/agent"
	"github.com/bazelment/yoloswe/agentsession/approval"
	"github.com/bazelment/yoloswe/agentsession/changes"
	"github.com/bazelment/yoloswe/agentsession/internal/queue"
	"github.com/bazelment/yoloswe/agentsession/protocol"
	"github.com/bazelment/yoloswe/agentsession/transcript"
)

// ErrClosed is returned by operations on a closed Engine.
var ErrClosed = errors.New("engine: closed")

// ErrApprovalDisabled is returned by Approve when approvals are not routed
// to the host.
var ErrApprovalDisabled = errors.New("engine: approvals are not enabled")

// fileTools maps file-mutating tools to the input field naming their target.
var fileTools = map[string]string{
	"Write":        "file_path",
	"Edit":         "file_path",
	"MultiEdit":    "file_path",
	"NotebookEdit": "notebook_path",
}

// StartRequest describes one session.
type StartRequest struct {
	WorkDir        string
	PermissionMode string
	Model          string
	Resume         string
	// Prompt, when set, is sent as the first user turn.
	Prompt string
}

// Engine is the host-facing session. Its methods are safe for concurrent
// use.
type Engine struct {
	logger     *slog.Logger
	sup        *agent.Supervisor
	transcript *transcript.Reconstructor
	tracker    *changes.Tracker
	watcher    *changes.Watcher
	broker     *approval.Broker
	gateway    *approval.Gateway
	queue      *queue.Queue[Update]
	updates    chan Update
	loopDone   chan struct{}
	watchDone  chan struct{}
	// openTools maps stream block indices to tool ids; engine loop only.
	openTools   map[int]string
	config      Config
	hookDir     string
	ownsHookDir bool
	settings    string
	// settled is signalled, under mu, when ended or loopExited changes.
	settled *sync.Cond
	// launched counts supervisor starts, each of which ends with exactly
	// one terminal event; ended counts terminal events handled.
	launched   uint64
	ended      uint64
	mu         sync.Mutex
	closed     bool
	loopExited bool
}

// New creates an Engine. The update feed is live immediately and stays open
// until Close. Updates are queued without bound, so a host that drains
// slowly never holds up the session itself.
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		logger:    logger,
		config:    config,
		queue:     queue.New[Update](),
		updates:   make(chan Update, config.UpdateBuffer),
		loopDone:  make(chan struct{}),
		openTools: make(map[int]string),
		tracker:   changes.New("", changes.WithLogger(logger)),
	}
	e.settled = sync.NewCond(&e.mu)
	e.transcript = transcript.New(
		transcript.WithLogger(logger),
		transcript.WithOnChange(func(index int, turn transcript.Turn) {
			e.emit(TurnUpdate{Index: index, Turn: turn})
		}),
	)

	agentOpts := append([]agent.Option{agent.WithLogger(logger)}, config.AgentOptions...)
	e.sup = agent.NewSupervisor(agentOpts...)

	if config.Approval != nil {
		e.broker = approval.NewBroker(
			func(p approval.PendingApproval) { e.emit(ApprovalRequestedUpdate{Approval: p}) },
			approval.WithResolved(func(id string, approved bool) {
				e.emit(ApprovalResolvedUpdate{RequestID: id, Approved: approved})
			}),
		)
		gwOpts := []approval.Option{approval.WithLogger(logger)}
		if config.Approval.DetailBudget > 0 {
			gwOpts = append(gwOpts, approval.WithDetailBudget(config.Approval.DetailBudget))
		}
		e.gateway = approval.New(e.broker, gwOpts...)
	}

	if config.WatchFiles {
		w, err := changes.NewWatcher(logger)
		if err != nil {
			logger.Warn("external change detection disabled", "error", err)
		} else {
			e.watcher = w
			e.watchDone = make(chan struct{})
			go e.watchLoop()
		}
	}

	go e.queue.Pump(e.updates)
	go e.loop()
	return e
}

// Updates returns the update feed. After Close it is closed once every
// queued update has been received; hosts should drain it until then.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Start launches a session. A running session is stopped first. With
// approvals enabled, the gateway is started on first use and the agent is
// pointed at the generated hook settings. The agent runs until ctx is done
// or the session is stopped.
func (e *Engine) Start(ctx context.Context, req StartRequest) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.tracker.BaseDir() != req.WorkDir {
		e.tracker.Clear()
		e.tracker = changes.New(req.WorkDir, changes.WithLogger(e.logger))
		if e.watcher != nil {
			e.watcher.UnwatchAll()
		}
	}
	e.mu.Unlock()

	settings, err := e.ensureApproval(ctx)
	if err != nil {
		return err
	}

	err = e.sup.Start(ctx, agent.StartRequest{
		WorkDir:        req.WorkDir,
		PermissionMode: req.PermissionMode,
		SettingsPath:   settings,
		Model:          req.Model,
		Resume:         req.Resume,
	})
	if !errors.Is(err, agent.ErrClosed) {
		e.mu.Lock()
		e.launched++
		e.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}

	if req.Prompt != "" {
		return e.Send(ctx, req.Prompt)
	}
	return nil
}

// ensureApproval starts the gateway and writes the hook files once.
func (e *Engine) ensureApproval(ctx context.Context) (string, error) {
	if e.gateway == nil {
		return "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings != "" {
		return e.settings, nil
	}

	// The gateway outlives ctx; it is stopped by Close.
	url, err := e.gateway.Start(context.WithoutCancel(ctx))
	if err != nil {
		return "", fmt.Errorf("start approval gateway: %w", err)
	}

	cfg := e.config.Approval
	binary := cfg.Binary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return "", fmt.Errorf("locate hook binary: %w", err)
		}
	}
	dir := cfg.HookDir
	if dir == "" {
		if dir, err = os.MkdirTemp("", "agentsession-hooks-"); err != nil {
			return "", fmt.Errorf("create hook directory: %w", err)
		}
		e.ownsHookDir = true
	}
	e.hookDir = dir

	settings, err := approval.WriteHookFiles(dir, approval.HookFilesConfig{
		Binary:     binary,
		GatewayURL: url,
		Timeout:    cfg.Timeout,
		SafeTools:  cfg.SafeTools,
	})
	if err != nil {
		return "", err
	}
	e.settings = settings
	e.logger.Debug("approval hook installed", "settings", settings, "gateway", url)
	return settings, nil
}

// Send appends a user turn and writes it to the agent. The turn is removed
// again when the write fails.
func (e *Engine) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.isClosed() {
		return ErrClosed
	}
	if !e.sup.Running() {
		return agent.ErrNotRunning
	}
	// Appended first so replies racing the write land after it.
	index := e.transcript.AddUserTurn(text)
	if err := e.sup.Send(text); err != nil {
		e.transcript.RetractUserTurn(index)
		return err
	}
	return nil
}

// Interrupt asks the agent to abandon the current turn.
func (e *Engine) Interrupt() error {
	return e.sup.Interrupt()
}

// Stop ends the session. Pending approvals are denied and the current turn
// is left as it is, marked aborted. It returns once the session's final
// update has been produced.
func (e *Engine) Stop() error {
	if e.broker != nil {
		e.broker.CancelAll()
	}
	err := e.sup.Stop()
	e.settle()
	return err
}

// settle waits until the loop has handled the terminal event of every
// started attempt.
func (e *Engine) settle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.ended < e.launched && !e.loopExited {
		e.settled.Wait()
	}
}

// Reset stops the session and clears the transcript and all file tracking.
// Files on disk are not touched.
func (e *Engine) Reset() error {
	err := e.Stop()
	e.transcript.EndTurn(transcript.EndReset)
	e.transcript.Clear()
	e.mu.Lock()
	e.tracker.Clear()
	e.mu.Unlock()
	if e.watcher != nil {
		e.watcher.UnwatchAll()
	}
	return err
}

// Approve resolves a pending approval.
func (e *Engine) Approve(requestID string, approved bool) error {
	if e.broker == nil {
		return ErrApprovalDisabled
	}
	return e.broker.Resolve(requestID, approved)
}

// PendingApprovals returns the undecided approvals, oldest first.
func (e *Engine) PendingApprovals() []approval.PendingApproval {
	if e.broker == nil {
		return nil
	}
	return e.broker.Pending()
}

// Transcript returns a copy of the transcript.
func (e *Engine) Transcript() []transcript.Turn {
	return e.transcript.Turns()
}

// SessionID returns the agent's session id.
func (e *Engine) SessionID() string {
	return e.sup.SessionID()
}

// Running reports whether the agent process is attached.
func (e *Engine) Running() bool {
	return e.sup.Running()
}

// Files returns the files with unreviewed changes.
func (e *Engine) Files() []changes.TrackedFile {
	return e.currentTracker().Files()
}

// Diff renders the unreviewed changes to path.
func (e *Engine) Diff(path string) (string, error) {
	return e.currentTracker().Diff(path)
}

// AcceptFile keeps the agent's changes to path.
func (e *Engine) AcceptFile(path string) error {
	t := e.currentTracker()
	if err := t.AcceptFile(path); err != nil {
		return err
	}
	e.unwatch(t.Resolve(path))
	return nil
}

// AcceptAll keeps every change.
func (e *Engine) AcceptAll() {
	for _, p := range e.currentTracker().AcceptAll() {
		e.unwatch(p)
	}
}

// RejectFile reverts path to its content before the agent first edited it.
func (e *Engine) RejectFile(path string) error {
	t := e.currentTracker()
	if err := t.RejectFile(path); err != nil {
		return err
	}
	e.unwatch(t.Resolve(path))
	return nil
}

// Close stops the session and releases the gateway, watcher and hook files.
// The update feed closes once every producer has stopped and the host has
// received every queued update.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	if e.broker != nil {
		e.broker.CancelAll()
	}
	if err := e.sup.Close(); err != nil {
		errs = append(errs, err)
	}
	<-e.loopDone

	if e.gateway != nil {
		if err := e.gateway.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		<-e.watchDone
	}
	if e.ownsHookDir && e.hookDir != "" {
		if err := os.RemoveAll(e.hookDir); err != nil {
			errs = append(errs, err)
		}
	}

	e.queue.Close()
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) currentTracker() *changes.Tracker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker
}

func (e *Engine) unwatch(path string) {
	if e.watcher != nil {
		e.watcher.Unwatch(path)
	}
}

// emit queues an update for the host. It never blocks.
func (e *Engine) emit(u Update) {
	if !e.queue.Push(u) {
		e.logger.Debug("dropping update after close", "type", u.Type().String())
	}
}

// loop consumes the supervisor feed until Close.
func (e *Engine) loop() {
	defer close(e.loopDone)
	for ev := range e.sup.Events() {
		e.handle(ev)
		if agent.IsTerminal(ev) {
			e.mu.Lock()
			e.ended++
			e.settled.Broadcast()
			e.mu.Unlock()
		}
	}
	e.mu.Lock()
	e.loopExited = true
	e.settled.Broadcast()
	e.mu.Unlock()
}

func (e *Engine) handle(ev agent.Event) {
	switch ev := ev.(type) {
	case agent.SystemEvent:
		if ev.Message.IsInit() {
			e.emit(SessionUpdate{
				SessionID: ev.Message.SessionID,
				Model:     ev.Message.Model,
				Tools:     ev.Message.Tools,
			})
		}

	case agent.StreamEvent:
		if ev.Message.ParentToolUseID != nil {
			return
		}
		e.transcript.ApplyStreamEvent(ev.Data)
		e.trackStream(ev.Data)

	case agent.AssistantEvent:
		e.transcript.Apply(ev.Message)
		if ev.Message.ParentToolUseID != nil {
			return
		}
		if blocks, ok := ev.Message.Message.Content.AsBlocks(); ok {
			for _, b := range blocks {
				if tu, ok := b.(protocol.ToolUseBlock); ok {
					e.snapshot(tu.ID, tu.Name, tu.Input)
				}
			}
		}

	case agent.UserEvent:
		e.transcript.Apply(ev.Message)
		for _, res := range ev.Message.ToolResults() {
			e.onToolResult(res.ToolUseID)
		}

	case agent.ResultEvent:
		e.transcript.Apply(ev.Message)
		e.emit(TurnCompleteUpdate{Result: ev.Message})

	case agent.TextEvent:
		e.emit(RawOutputUpdate{Line: ev.Line})

	case agent.ErrorEvent:
		e.teardown()
		e.emit(SessionEndedUpdate{Err: ev.Err, Code: exitCode(ev.Err)})

	case agent.ExitEvent:
		e.teardown()
		e.emit(SessionEndedUpdate{Code: ev.Code, Requested: ev.Requested})
	}
}

// trackStream snapshots file targets once a streamed tool input is complete.
func (e *Engine) trackStream(data protocol.StreamEventData) {
	switch d := data.(type) {
	case protocol.MessageStartEvent:
		e.openTools = make(map[int]string)
	case protocol.ContentBlockStartEvent:
		block, err := d.ParsedBlock()
		if err != nil {
			return
		}
		if tu, ok := block.(protocol.ToolUseBlock); ok {
			e.openTools[d.Index] = tu.ID
		} else {
			delete(e.openTools, d.Index)
		}
	case protocol.ContentBlockStopEvent:
		id, ok := e.openTools[d.Index]
		delete(e.openTools, d.Index)
		if !ok {
			return
		}
		if tool, found := e.transcript.FindTool(id); found {
			e.snapshot(tool.ID, tool.Name, tool.Input)
		}
	}
}

func (e *Engine) snapshot(toolID, name string, input map[string]any) {
	field, ok := fileTools[name]
	if !ok {
		return
	}
	path, _ := input[field].(string)
	if path == "" {
		return
	}
	if err := e.currentTracker().SnapshotFile(toolID, path); err != nil {
		e.logger.Warn("file snapshot failed", "tool_id", toolID, "path", path, "error", err)
	}
}

func (e *Engine) onToolResult(toolID string) {
	f, changed, err := e.currentTracker().OnResult(toolID)
	if err != nil {
		e.logger.Warn("file change tracking failed", "tool_id", toolID, "error", err)
		return
	}
	if !changed {
		return
	}
	if e.watcher != nil {
		if err := e.watcher.Watch(f.Path); err != nil {
			e.logger.Debug("watch tracked file", "path", f.Path, "error", err)
		}
	}
	e.emit(FileChangedUpdate{ToolID: toolID, File: f})
}

// teardown runs when a session attempt ends.
func (e *Engine) teardown() {
	if e.broker != nil {
		if n := e.broker.CancelAll(); n > 0 {
			e.logger.Debug("denied pending approvals at session end", "count", n)
		}
	}
	e.transcript.EndTurn(transcript.EndAborted)
	e.openTools = make(map[int]string)
}

// watchLoop forwards edits of tracked files made outside the agent.
func (e *Engine) watchLoop() {
	defer close(e.watchDone)
	for ch := range e.watcher.Events() {
		changed, err := e.currentTracker().ChangedOnDisk(ch.Path)
		if err != nil {
			e.logger.Debug("check external change", "path", ch.Path, "error", err)
			continue
		}
		if changed {
			e.emit(ExternalChangeUpdate{Path: ch.Path, Op: ch.Op})
		}
	}
}

func exitCode(err error) int {
	var exitErr *agent.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 0
}
