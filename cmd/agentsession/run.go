package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bazelment/yoloswe/agentsession/agent"
	"github.com/bazelment/yoloswe/agentsession/approval"
	"github.com/bazelment/yoloswe/agentsession/engine"
	"github.com/bazelment/yoloswe/agentsession/internal/logging"
)

var (
	runWorkDir        string
	runModel          string
	runPermissionMode string
	runResume         string
	runRecordDir      string
	runNoApproval     bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Start an agent session",
	Long: `Start an agent session in the work directory. Each line read from stdin
is sent as a prompt once the previous turn has finished.

Lines starting with ':' are session commands:
  :files             list files with unreviewed changes
  :diff [path]       show unreviewed changes
  :accept path|all   keep changes
  :reject path|all   revert changes
  :interrupt         abandon the current turn
  :stop              end the session

When approvals are enabled and stdin is a terminal, each tool use the
agent asks for is confirmed with y/N. Without a terminal they are denied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runWorkDir, "workdir", "C", "", "Work directory (default: current directory)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model override")
	runCmd.Flags().StringVar(&runPermissionMode, "permission-mode", "", "Permission mode: default, acceptEdits, plan, bypassPermissions")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Session id to resume")
	runCmd.Flags().StringVar(&runRecordDir, "record", "", "Directory for raw protocol recordings")
	runCmd.Flags().BoolVar(&runNoApproval, "no-approval", false, "Do not route tool permission requests through this terminal")
}

func runSession(ctx context.Context, prompt string) error {
	workDir := runWorkDir
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = cwd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	if runModel != "" {
		cfg.Model = runModel
	}
	if runPermissionMode != "" {
		cfg.PermissionMode = runPermissionMode
	}
	if runRecordDir != "" {
		cfg.RecordDir = runRecordDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logFile, closeLog := logging.NewFile(os.Stderr, cfg.LogDir, verbosity)
	defer closeLog()
	if logFile != "" {
		logger.Debug("logging to file", "path", logFile)
	}

	agentOpts := []agent.Option{agent.WithCLIPath(cfg.CLIPath), agent.WithExtraArgs(cfg.ExtraArgs...)}
	if cfg.RecordDir != "" {
		agentOpts = append(agentOpts, agent.WithRecording(cfg.RecordDir))
	}
	opts := []engine.Option{engine.WithLogger(logger), engine.WithAgentOptions(agentOpts...)}
	if cfg.Approval.IsEnabled() && !runNoApproval {
		opts = append(opts, engine.WithApproval(engine.ApprovalConfig{
			SafeTools:    cfg.Approval.SafeTools,
			Timeout:      cfg.Approval.Timeout,
			DetailBudget: cfg.Approval.DetailBudget,
		}))
	}
	eng := engine.New(opts...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn("session cleanup failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = eng.Start(ctx, engine.StartRequest{
		WorkDir:        workDir,
		PermissionMode: cfg.PermissionMode,
		Model:          cfg.Model,
		Resume:         runResume,
		Prompt:         prompt,
	})
	if err != nil {
		return err
	}

	r := newRenderer(os.Stdout)
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		r.color = true
		if w, _, err := term.GetSize(fd); err == nil {
			r.width = w
		}
	}
	s := &session{
		eng:         eng,
		logger:      logger,
		out:         os.Stdout,
		r:           r,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		busy:        prompt != "",
	}
	return s.run(ctx, os.Stdin)
}

// session multiplexes engine updates and stdin lines. All fields are owned
// by the run loop.
type session struct {
	eng         *engine.Engine
	logger      *slog.Logger
	out         io.Writer
	r           *renderer
	queue       []approval.PendingApproval
	interactive bool
	busy        bool
	eof         bool
	stopping    bool
}

func (s *session) run(ctx context.Context, stdin io.Reader) error {
	lines := make(chan string)
	go readLines(stdin, lines)

	if !s.busy {
		s.promptMark()
	}
	for {
		select {
		case u, ok := <-s.eng.Updates():
			if !ok {
				return nil
			}
			if done, err := s.update(u); done {
				return err
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				s.endOfInput()
				continue
			}
			s.input(ctx, line)
		}
	}
}

// update handles one engine update and reports whether the session is over.
func (s *session) update(u engine.Update) (bool, error) {
	switch u := u.(type) {
	case engine.SessionUpdate:
		s.logger.Info("session started", "session_id", u.SessionID, "model", u.Model)
	case engine.TurnUpdate:
		s.r.turn(u)
	case engine.TurnCompleteUpdate:
		s.busy = false
		fmt.Fprintln(s.out)
		if u.Result.IsError {
			s.logger.Warn("turn failed", "subtype", u.Result.Subtype)
		}
		s.logger.Debug("turn complete", "duration_ms", u.Result.DurationMs, "cost_usd", u.Result.TotalCostUSD)
		if s.eof {
			s.stop()
		} else {
			s.promptMark()
		}
	case engine.ApprovalRequestedUpdate:
		if !s.interactive || s.eof {
			s.logger.Warn("denying tool use with no terminal to ask", "tool", u.Approval.ToolName)
			s.decide(u.Approval.RequestID, false)
			break
		}
		s.queue = append(s.queue, u.Approval)
		if len(s.queue) == 1 {
			s.r.approval(u.Approval)
		}
	case engine.ApprovalResolvedUpdate:
		s.dequeue(u.RequestID)
	case engine.FileChangedUpdate:
		s.r.fileChanged(u)
	case engine.ExternalChangeUpdate:
		fmt.Fprintf(s.out, "  ! %s changed outside the agent (%s)\n", u.Path, u.Op)
	case engine.RawOutputUpdate:
		s.logger.Debug("agent output", "line", u.Line)
	case engine.SessionEndedUpdate:
		if u.Err != nil {
			return true, fmt.Errorf("agent session ended: %w", u.Err)
		}
		s.logger.Debug("session ended", "code", u.Code, "requested", u.Requested)
		return true, nil
	}
	return false, nil
}

func (s *session) input(ctx context.Context, line string) {
	if len(s.queue) > 0 {
		s.decide(s.queue[0].RequestID, isYes(line))
		return
	}
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		if !s.busy {
			s.promptMark()
		}
	case strings.HasPrefix(line, ":"):
		s.command(line)
		if !s.busy && !s.stopping {
			s.promptMark()
		}
	case s.busy:
		fmt.Fprintln(s.out, "(agent is busy, use :interrupt to abandon the turn)")
	default:
		if err := s.eng.Send(ctx, line); err != nil {
			s.logger.Error("send prompt", "error", err)
			return
		}
		s.busy = true
	}
}

func (s *session) endOfInput() {
	s.eof = true
	for _, p := range s.queue {
		s.decide(p.RequestID, false)
	}
	if !s.busy {
		s.stop()
	}
}

func (s *session) command(line string) {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	var err error
	switch fields[0] {
	case "files":
		files := s.eng.Files()
		if len(files) == 0 {
			fmt.Fprintln(s.out, "No unreviewed changes.")
		}
		for _, f := range files {
			fmt.Fprintf(s.out, "%s %s (%s)\n", fileMark(f), f.Path, rangeSummary(f))
		}
	case "diff":
		paths := []string{arg}
		if arg == "" {
			paths = paths[:0]
			for _, f := range s.eng.Files() {
				paths = append(paths, f.Path)
			}
		}
		for _, p := range paths {
			var d string
			if d, err = s.eng.Diff(p); err != nil {
				break
			}
			fmt.Fprint(s.out, d)
		}
	case "accept":
		if arg == "all" {
			s.eng.AcceptAll()
		} else {
			err = s.eng.AcceptFile(arg)
		}
	case "reject":
		if arg == "all" {
			for _, f := range s.eng.Files() {
				err = errors.Join(err, s.eng.RejectFile(f.Path))
			}
		} else {
			err = s.eng.RejectFile(arg)
		}
	case "interrupt":
		err = s.eng.Interrupt()
	case "stop":
		s.stop()
	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

// stop ends the session without blocking the loop that drains updates.
func (s *session) stop() {
	if s.stopping {
		return
	}
	s.stopping = true
	go func() {
		if err := s.eng.Stop(); err != nil {
			s.logger.Warn("stop agent", "error", err)
		}
	}()
}

func (s *session) decide(id string, approved bool) {
	if err := s.eng.Approve(id, approved); err != nil && !errors.Is(err, approval.ErrUnknownRequest) {
		s.logger.Warn("resolve approval", "request_id", id, "error", err)
	}
}

// dequeue drops a resolved approval and asks about the next one.
func (s *session) dequeue(id string) {
	for i, p := range s.queue {
		if p.RequestID != id {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		if i == 0 && len(s.queue) > 0 {
			s.r.approval(s.queue[0])
		}
		return
	}
}

func (s *session) promptMark() {
	fmt.Fprint(s.out, "> ")
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
