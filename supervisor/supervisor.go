//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/nop/blob/main/cancelwatch.go
//

// Package supervisor launches the child MCP server, wires the stdio
// pumps to the observation pipeline, installs signal handlers, and
// coordinates a graceful drain-and-flush shutdown.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpsentinel/sentinel/audit"
	"github.com/mcpsentinel/sentinel/event"
	"github.com/mcpsentinel/sentinel/internal/errclass"
	"github.com/mcpsentinel/sentinel/internal/logx"
	"github.com/mcpsentinel/sentinel/proxy"
	"github.com/mcpsentinel/sentinel/trace"
)

// WSServer is the narrow slice of [*wsfanout.Server] the supervisor
// depends on, so tests can substitute a fake fan-out without binding a
// real listener.
type WSServer interface {
	event.Sink
	Serve(ctx context.Context) error
}

// Config configures a [*Supervisor]. Zero-value Logger/Now/ErrClassifier
// fall back to their package defaults (logx.Default, time.Now,
// errclass.Default).
type Config struct {
	// Argv is the child command line: Argv[0] is the executable, the
	// rest are its arguments.
	Argv []string

	// AuditSink, if non-nil, receives every event and is flushed and
	// fsynced during shutdown. Closing it is left to the caller.
	AuditSink *audit.Sink

	// WS, if non-nil, is served for the supervisor's lifetime and
	// stopped (new-connection-wise) before drain begins.
	WS WSServer

	// ShutdownDeadline bounds the drain step. Zero means 10s.
	ShutdownDeadline time.Duration

	// ObservationBuffer bounds the channel shared by both pumps. Zero
	// means [proxy.DefaultObservationBuffer].
	ObservationBuffer int

	// RunID and SessionID are immutable for the run. New generates them
	// if left empty.
	RunID, SessionID string

	// MaxLineBytes bounds observed (not forwarded) line length.
	MaxLineBytes int

	// PanicLogPath receives observation-side panic traces.
	PanicLogPath string

	ErrClassifier errclass.Classifier
	Logger        logx.SLogger
	Now           func() time.Time

	// AgentStdin and AgentStdout are the supervisor's own stdio,
	// connecting it to the MCP client that launched it. Nil means
	// os.Stdin/os.Stdout; tests substitute pipes so a run never touches
	// the test process's real stdio.
	AgentStdin  io.Reader
	AgentStdout io.Writer

	// newChild constructs the child process; overridable in tests.
	newChild func(argv []string) (Child, error)
}

// Report is the JSON line Supervisor.Run writes to stderr at exit,
// summarizing what the run observed and wrote.
type Report struct {
	RunID               string `json:"run_id"`
	EventsDelivered     uint64 `json:"events_delivered"`
	RecordsWritten      uint64 `json:"records_written,omitempty"`
	AuditDegraded       bool   `json:"audit_degraded,omitempty"`
	PeersAtShutdown     int    `json:"peers_at_shutdown,omitempty"`
	ObservationsDropped uint64 `json:"observations_dropped"`
	ChildExitCode       int    `json:"child_exit_code"`
}

// Supervisor coordinates one Sentinel run end to end.
type Supervisor struct {
	cfg      Config
	child    Child
	pipeline *pipeline
	logger   logx.SLogger
}

// New builds a [*Supervisor] for cfg. It does not start the child
// process; call [*Supervisor.Run] to do that.
func New(cfg Config) (*Supervisor, error) {
	if len(cfg.Argv) == 0 {
		return nil, fmt.Errorf("supervisor: empty child argv")
	}
	if cfg.Logger == nil {
		cfg.Logger = logx.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ErrClassifier == nil {
		cfg.ErrClassifier = errclass.Default
	}
	if cfg.ShutdownDeadline <= 0 {
		cfg.ShutdownDeadline = 10 * time.Second
	}
	if cfg.ObservationBuffer <= 0 {
		cfg.ObservationBuffer = proxy.DefaultObservationBuffer
	}
	if cfg.RunID == "" {
		cfg.RunID = trace.NewID()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = trace.NewID()
	}
	newChild := cfg.newChild
	if newChild == nil {
		newChild = NewChild
	}

	child, err := newChild(cfg.Argv)
	if err != nil {
		return nil, fmt.Errorf("supervisor: launch child: %w", err)
	}

	var sinks []event.Sink
	if cfg.AuditSink != nil {
		sinks = append(sinks, cfg.AuditSink)
	}
	if cfg.WS != nil {
		sinks = append(sinks, cfg.WS)
	}

	return &Supervisor{
		cfg:      cfg,
		child:    child,
		pipeline: newPipeline(cfg.RunID, cfg.SessionID, cfg.Now, cfg.Logger, sinks),
		logger:   cfg.Logger,
	}, nil
}

// Run starts the child, the two stdio pumps, and the observation
// pipeline; blocks until both stdio directions close or parent/signal
// cancellation triggers a drain-and-shutdown; and returns the process
// exit code to use.
func (s *Supervisor) Run(parent context.Context) (int, error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.child.Start(); err != nil {
		return 1, fmt.Errorf("supervisor: start child: %w", err)
	}

	go func() {
		_, _ = io.Copy(os.Stderr, s.child.Stderr())
	}()

	agentStdin := s.cfg.AgentStdin
	if agentStdin == nil {
		agentStdin = os.Stdin
	}
	agentStdout := s.cfg.AgentStdout
	if agentStdout == nil {
		agentStdout = os.Stdout
	}
	var agentStdinCloser io.Closer
	if c, ok := agentStdin.(io.Closer); ok {
		agentStdinCloser = c
	}

	obs := make(chan proxy.Observation, s.cfg.ObservationBuffer)

	pumpA := &proxy.Pump{
		Name: "agent->child", Direction: event.Outbound,
		Src: agentStdin, Dst: s.child.Stdin(), SrcCloser: agentStdinCloser,
		Observations: obs, MaxLineBytes: s.cfg.MaxLineBytes,
		Logger: s.logger, ErrClassifier: s.cfg.ErrClassifier, Now: s.cfg.Now,
	}
	pumpB := &proxy.Pump{
		Name: "child->agent", Direction: event.Inbound,
		Src: s.child.Stdout(), Dst: agentStdout, SrcCloser: s.child.Stdout(),
		Observations: obs, MaxLineBytes: s.cfg.MaxLineBytes,
		Logger: s.logger, ErrClassifier: s.cfg.ErrClassifier, Now: s.cfg.Now,
	}

	// The data-path tasks run in their own errgroup: a genuine pump
	// error (not plain EOF, which io.Copy already maps to nil) is worth
	// surfacing, but neither pump's completion may cancel the other's
	// context directly: EOF on one side closes that direction only.
	var pumps errgroup.Group
	pumpADone := make(chan struct{})
	pumpBDone := make(chan struct{})
	pumps.Go(func() error { defer close(pumpADone); return pumpA.Run(ctx) })
	pumps.Go(func() error { defer close(pumpBDone); return pumpB.Run(ctx) })

	// Once both directions have closed, the data path is over: trigger
	// the same shutdown path a signal would.
	bothClosed := make(chan struct{})
	go func() {
		<-pumpADone
		<-pumpBDone
		close(bothClosed)
		stop()
	}()
	go func() {
		if err := pumps.Wait(); err != nil {
			s.logger.Info("pumpFailed", slog.Any("err", err))
		}
	}()

	// The observation tasks (pipeline consumer, WebSocket fan-out) run
	// concurrently with the data path and with each other.
	var observers errgroup.Group
	pipelineDone := make(chan struct{})
	observers.Go(func() error {
		defer close(pipelineDone)
		defer s.recoverPanic("pipeline")
		s.pipeline.run(obs)
		return nil
	})
	if s.cfg.WS != nil {
		observers.Go(func() error {
			defer s.recoverPanic("wsfanout")
			return s.cfg.WS.Serve(ctx)
		})
	}
	go func() {
		if err := observers.Wait(); err != nil {
			s.logger.Info("observerTaskFailed", slog.Any("err", err))
		}
	}()

	<-ctx.Done()

	// Whether shutdown began because the streams ended (clean exit) or
	// because a signal arrived first (exit 130 unless the child
	// reports its own code). Checked now: the pumps close shortly
	// after a signal too, so this is ambiguous if read later.
	eofInitiated := bothClosedYet(bothClosed)

	// Close the child's stdin if the agent side is already done. If it
	// isn't (we got here via signal, not EOF), pumpA's
	// context.AfterFunc-bound SrcCloser (os.Stdin) will unblock its
	// read shortly; we don't force-close the child's stdin ourselves to
	// avoid racing pumpA's own forward write.
	select {
	case <-pumpADone:
		_ = s.child.Stdin().Close()
	default:
	}

	// Drain with a hard deadline. obs may only be closed once both
	// pumps have stopped producing into it; a pump that is still stuck
	// past the deadline keeps obs open and the drain is abandoned.
	if waitOrTimeout(pumpADone, s.cfg.ShutdownDeadline) && waitOrTimeout(pumpBDone, s.cfg.ShutdownDeadline) {
		close(obs)
		select {
		case <-pipelineDone:
			// Only touch the tracker once its owning goroutine has
			// exited. Final checkpoint, then the shutdown event it
			// rides on: the event exists so the forced checkpoint has
			// a record to attach to even when no requests were left
			// pending.
			s.pipeline.drainPending()
			if s.cfg.AuditSink != nil {
				s.cfg.AuditSink.CheckpointNext()
			}
			s.pipeline.emitShutdown()
		case <-time.After(s.cfg.ShutdownDeadline):
			s.logger.Info("drainDeadlineExceeded")
		}
	} else {
		s.logger.Info("drainDeadlineExceeded")
	}

	// Flush and fsync the audit file regardless of how the drain ended.
	if s.cfg.AuditSink != nil {
		if err := s.cfg.AuditSink.Flush(); err != nil {
			s.logger.Info("auditFlushFailed", slog.Any("err", err))
		}
	}

	childErr := s.child.Wait()
	exitCode := s.child.ExitCode()
	if exitCode < 0 {
		if eofInitiated {
			exitCode = 0
		} else {
			exitCode = 130
		}
	}

	dropped := pumpA.Stats().ObservationsDropped() + pumpB.Stats().ObservationsDropped()
	s.report(exitCode, dropped)
	return exitCode, childErr
}

func bothClosedYet(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func waitOrTimeout(ch <-chan struct{}, d time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *Supervisor) report(exitCode int, observationsDropped uint64) {
	rep := Report{
		RunID:               s.cfg.RunID,
		EventsDelivered:     s.pipeline.eventsDelivered,
		ChildExitCode:       exitCode,
		ObservationsDropped: observationsDropped,
	}
	if s.cfg.AuditSink != nil {
		st := s.cfg.AuditSink.Stats()
		rep.RecordsWritten = st.RecordsWritten
		rep.AuditDegraded = st.Degraded
	}
	if s.cfg.WS != nil {
		if pc, ok := s.cfg.WS.(interface{ PeerCount() int }); ok {
			rep.PeersAtShutdown = pc.PeerCount()
		}
	}
	line, err := json.Marshal(rep)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(line))
}

// recoverPanic catches a panic on an observation-side goroutine, logs
// it to the configured panic file, and lets the goroutine die without
// affecting the data path.
func (s *Supervisor) recoverPanic(task string) {
	r := recover()
	if r == nil {
		return
	}
	path := s.cfg.PanicLogPath
	if path == "" {
		path = "sentinel_panic.log"
	}
	msg := fmt.Sprintf("[%s] panic in %s: %v\n", s.cfg.Now().Format(time.RFC3339), task, r)
	if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		_, _ = f.WriteString(msg)
		_ = f.Close()
	}
	fmt.Fprint(os.Stderr, msg)
}
