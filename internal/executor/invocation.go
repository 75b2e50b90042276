package executor

import (
	"errors"
	"time"
)

// FailureKind classifies why an invocation did not succeed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureNotFound  FailureKind = "not_found"
	FailureTimeout   FailureKind = "timeout"
	FailureExit      FailureKind = "exit"
	FailureCancelled FailureKind = "cancelled"
	FailureInternal  FailureKind = "internal"
)

// SessionRef binds an invocation to a conversation session.
type SessionRef struct {
	Token  string
	Resume bool
}

// Invocation describes a single engine call.
type Invocation struct {
	Prompt string
	// AllowedTools restricts the engine to the listed tools. Nil allows all.
	AllowedTools    []string
	DeniedTools     []string
	BudgetUSD       float64
	Timeout         time.Duration
	Session         *SessionRef
	SkipPermissions bool
}

func (inv Invocation) validate() error {
	var errs []error
	if inv.Prompt == "" {
		errs = append(errs, errors.New("prompt is empty"))
	}
	if inv.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if inv.BudgetUSD <= 0 {
		errs = append(errs, errors.New("budget must be positive"))
	}
	return errors.Join(errs...)
}

// Result is the outcome of an invocation. Failures are carried as values.
type Result struct {
	Success      bool
	Output       string
	CostUSD      float64
	SessionToken string
	Turns        int
	Raw          map[string]any
	Error        string
	Failure      FailureKind
	ExitCode     int
	Duration     time.Duration
}

func (r Result) outcome() string {
	switch {
	case r.Success:
		return "ok"
	case r.Failure == FailureTimeout:
		return "timeout"
	case r.Failure == FailureNotFound:
		return "not_found"
	case r.Failure == FailureInternal:
		return "internal"
	case r.Failure == FailureCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func failure(kind FailureKind, msg string) Result {
	return Result{Failure: kind, Error: msg, ExitCode: -1}
}
