// Package executor runs the reasoning engine CLI as a subprocess and turns its
// output into a Result. Expected failures never surface as errors or panics.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/metrics"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

const defaultKillGrace = 2 * time.Second

// Executor invokes the engine binary.
type Executor struct {
	binary    string
	workDir   string
	settings  Settings
	document  ContextDocument
	killGrace time.Duration
	logger    *slog.Logger
	latencies *utils.LatencyTracker
}

// Option customises an Executor.
type Option func(*Executor)

// WithKillGrace bounds how long Run waits for output pipes after the engine
// has been killed.
func WithKillGrace(d time.Duration) Option {
	return func(e *Executor) { e.killGrace = d }
}

// WithTopology replaces the infrastructure section of the context document.
func WithTopology(topology string) Option {
	return func(e *Executor) { e.document.Topology = topology }
}

// New constructs an Executor from engine settings.
func New(cfg config.EngineConfig, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		binary:  cfg.Binary,
		workDir: cfg.CodebasePath,
		settings: Settings{
			Model:          cfg.Model,
			MaxTurns:       cfg.MaxTurns,
			AllowEditTools: cfg.AllowEditTools(),
		},
		document: ContextDocument{
			Environment:    cfg.Environment,
			AllowEditTools: cfg.AllowEditTools(),
		},
		killGrace: defaultKillGrace,
		logger:    logger,
		latencies: utils.NewLatencyTracker(512),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings exposes the invocation-independent settings.
func (e *Executor) Settings() Settings {
	return e.settings
}

// Preflight verifies that the engine binary can be resolved.
func (e *Executor) Preflight() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return utils.NewAppError("executor.preflight", "engine not found", err)
	}
	return nil
}

// LatencyP95 returns the p95 invocation latency.
func (e *Executor) LatencyP95() time.Duration {
	return e.latencies.Percentile(95)
}

// Run performs exactly one engine invocation.
func (e *Executor) Run(ctx context.Context, inv Invocation) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine invocation panicked", slog.Any("panic", r))
			res = failure(FailureInternal, fmt.Sprintf("internal error: %v", r))
		}
		res.Duration = time.Since(start)
		e.latencies.Observe(res.Duration)
		metrics.ObserveInvocation(res.Duration, res.outcome())
	}()

	if err := inv.validate(); err != nil {
		return failure(FailureInternal, "invalid invocation: "+err.Error())
	}

	contextFile, cleanup, err := writeContextFile(e.document.Render())
	defer cleanup()
	if err != nil {
		e.logger.Error("context document unavailable", slog.Any("error", err))
		return failure(FailureInternal, err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binary, BuildArgs(e.settings, inv, contextFile)...)
	if isDir(e.workDir) {
		cmd.Dir = e.workDir
	}
	configureProcessGroup(cmd)
	cmd.WaitDelay = e.killGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("invoking engine",
		slog.Bool("resume", inv.Session != nil && inv.Session.Resume),
		slog.Bool("skip_permissions", inv.SkipPermissions),
		slog.Duration("timeout", inv.Timeout),
	)

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			e.logger.Warn("engine invocation timed out", slog.Duration("timeout", inv.Timeout))
			return failure(FailureTimeout, "timed out after "+formatSeconds(inv.Timeout))
		case ctx.Err() != nil:
			return failure(FailureCancelled, "cancelled: "+ctx.Err().Error())
		case errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist):
			e.logger.Error("engine binary not found", slog.String("binary", e.binary))
			return failure(FailureNotFound, "engine not found")
		case errors.Is(runErr, exec.ErrWaitDelay):
			// the engine exited cleanly but a child kept its pipes open
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return failure(FailureInternal, runErr.Error())
		}
	}

	res = decodeOutput(stdout.String(), stderr.String(), exitCode)
	if !res.Success {
		e.logger.Warn("engine invocation failed", slog.Int("exit_code", exitCode), slog.String("error", utils.Truncate(res.Error, 200)))
	}
	return res
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
