package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []executor.Invocation
	respond func(executor.Invocation) executor.Result
}

func (f *fakeEngine) Run(ctx context.Context, inv executor.Invocation) executor.Result {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	respond := f.respond
	f.mu.Unlock()
	if respond == nil {
		return executor.Result{Success: true, Output: "ok"}
	}
	return respond(inv)
}

func (f *fakeEngine) invocations() []executor.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Invocation(nil), f.calls...)
}

// phaseOf maps a lifecycle prompt to the phase that produced it.
func phaseOf(inv executor.Invocation) string {
	switch {
	case strings.HasPrefix(inv.Prompt, "You are investigating"):
		return "investigate"
	case strings.HasPrefix(inv.Prompt, "Based on the following alert"):
		return "diagnose"
	case strings.HasPrefix(inv.Prompt, "Based on the diagnostics"):
		return "remediate"
	case strings.HasPrefix(inv.Prompt, "Analyze this remediation request"):
		return "analysis"
	case strings.HasPrefix(inv.Prompt, "Execute this approved remediation"):
		return "execution"
	}
	return "other"
}

func scripted(results map[string]executor.Result) func(executor.Invocation) executor.Result {
	return func(inv executor.Invocation) executor.Result {
		if res, ok := results[phaseOf(inv)]; ok {
			return res
		}
		return executor.Result{Success: true, Output: "ok"}
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]transport.OutgoingMessage
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(map[string][]transport.OutgoingMessage)}
}

func (n *recordingNotifier) Notify(_ context.Context, thread string, msgs ...transport.OutgoingMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[thread] = append(n.sent[thread], msgs...)
	return nil
}

// hookNotifier runs before for every delivery and records what survives it.
type hookNotifier struct {
	*recordingNotifier
	before func(msgs []transport.OutgoingMessage)
}

func (n *hookNotifier) Notify(ctx context.Context, thread string, msgs ...transport.OutgoingMessage) error {
	if n.before != nil {
		n.before(msgs)
	}
	return n.recordingNotifier.Notify(ctx, thread, msgs...)
}

func titleOf(m transport.OutgoingMessage) string {
	if m.Summary != nil {
		return m.Summary.Title
	}
	return m.Text
}

func (n *recordingNotifier) titles(thread string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent[thread] {
		out = append(out, titleOf(m))
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Behavior.AutoRespond = true
	cfg.Behavior.AutoRemediate = false
	cfg.Engine.Environment = "prod"
	return cfg
}
