package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/session"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

func newTestAssistant(eng Engine) (*Assistant, *ledger.Ledger) {
	costs := ledger.New(nil)
	return NewAssistant(testLogger(), testConfig(), eng, session.NewStore(30*time.Minute), costs), costs
}

func TestConverseResumesSession(t *testing.T) {
	eng := &fakeEngine{respond: func(executor.Invocation) executor.Result {
		return executor.Result{Success: true, Output: "all good", CostUSD: 0.01}
	}}
	a, costs := newTestAssistant(eng)

	first, err := a.Converse(context.Background(), Turn{ThreadID: "t1", User: "alice", Message: "how is harbor?"})
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	second, err := a.Converse(context.Background(), Turn{ThreadID: "t1", User: "alice", Message: "and the disk?"})
	if err != nil {
		t.Fatalf("converse: %v", err)
	}

	if first.SessionID != second.SessionID {
		t.Fatalf("expected the same session token, got %s and %s", first.SessionID, second.SessionID)
	}
	calls := eng.invocations()
	if calls[0].Session.Resume || !calls[1].Session.Resume {
		t.Fatalf("expected create then resume, got %+v %+v", calls[0].Session, calls[1].Session)
	}
	footer := second.Messages[len(second.Messages)-1]
	if !footer.Silent || !strings.Contains(footer.Text, "Session: 2 messages") {
		t.Fatalf("unexpected footer %q", footer.Text)
	}
	if got := costs.ScopeTotal(ledger.ScopeSession, "t1"); got < 0.019 || got > 0.021 {
		t.Fatalf("expected session spend 0.02, got %f", got)
	}
}

func TestConverseChunksLongReplies(t *testing.T) {
	eng := &fakeEngine{respond: func(executor.Invocation) executor.Result {
		return executor.Result{Success: true, Output: strings.Repeat("x", 1900*7)}
	}}
	a, _ := newTestAssistant(eng)

	reply, err := a.Converse(context.Background(), Turn{ThreadID: "t2", Message: "dump"})
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	// five chunks, the truncation marker, the footer
	if len(reply.Messages) != 7 {
		t.Fatalf("expected 7 messages, got %d", len(reply.Messages))
	}
	if reply.Messages[5].Text != transport.TruncationMarker {
		t.Fatalf("expected truncation marker, got %q", reply.Messages[5].Text)
	}
}

func TestConverseFailureIsReported(t *testing.T) {
	eng := &fakeEngine{respond: func(executor.Invocation) executor.Result {
		return executor.Result{Success: false, Error: "Claude timed out after 180s"}
	}}
	a, _ := newTestAssistant(eng)

	reply, err := a.Converse(context.Background(), Turn{ThreadID: "t3", Message: "hello"})
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if len(reply.Messages) != 1 || !strings.HasPrefix(reply.Messages[0].Text, "❌ Error") {
		t.Fatalf("unexpected failure reply %+v", reply.Messages)
	}
	if _, err := a.Converse(context.Background(), Turn{ThreadID: "t3", Message: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestAskIsStateless(t *testing.T) {
	eng := &fakeEngine{respond: func(executor.Invocation) executor.Result {
		return executor.Result{Success: true, Output: strings.Repeat("y", 4000)}
	}}
	a, _ := newTestAssistant(eng)

	reply, err := a.Ask(context.Background(), "where does harbor run?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if eng.invocations()[0].Session != nil {
		t.Fatalf("ask must not bind a session")
	}
	if len(reply.Messages) != 1 || len([]rune(reply.Messages[0].Text)) != 1900 {
		t.Fatalf("expected one message truncated to 1900 runes")
	}
}

func TestRunTaskSkipsPermissions(t *testing.T) {
	eng := &fakeEngine{}
	a, _ := newTestAssistant(eng)

	if _, err := a.RunTask(context.Background(), Task{Text: "restart the exporter", User: "admin"}); err != nil {
		t.Fatalf("run task: %v", err)
	}
	inv := eng.invocations()[0]
	if !inv.SkipPermissions || inv.Timeout != 600*time.Second {
		t.Fatalf("unexpected task invocation %+v", inv)
	}
}

func TestResetSessionStartsFresh(t *testing.T) {
	eng := &fakeEngine{}
	a, _ := newTestAssistant(eng)

	first, _ := a.Converse(context.Background(), Turn{ThreadID: "t4", Message: "hi"})
	fresh := a.ResetSession("t4")
	if fresh == first.SessionID {
		t.Fatalf("reset returned the previous token")
	}
	next, _ := a.Converse(context.Background(), Turn{ThreadID: "t4", Message: "hi again"})
	if next.SessionID != fresh || next.Resumed {
		t.Fatalf("expected fresh unresumed session %s, got %s resumed=%v", fresh, next.SessionID, next.Resumed)
	}
}
