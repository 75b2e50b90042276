package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/session"
	"github.com/miradorstack/mirador-oracle/internal/transport"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

var ErrEmptyMessage = errors.New("message is empty")

// Turn is one user message within a conversation thread.
type Turn struct {
	ThreadID string
	User     string
	Message  string
}

// Reply is the engine's answer, already split for the chat surface.
type Reply struct {
	Messages  []transport.OutgoingMessage
	Result    executor.Result
	SessionID string
	Resumed   bool
}

// Task is a one-shot instruction issued by an administrator.
type Task struct {
	Text string
	User string
}

// Assistant answers conversational turns and one-shot requests outside the
// incident lifecycle.
type Assistant struct {
	logger   *slog.Logger
	cfg      config.Config
	engine   Engine
	sessions *session.Store
	costs    *ledger.Ledger
}

// NewAssistant wires the conversational surface.
func NewAssistant(logger *slog.Logger, cfg config.Config, eng Engine, sessions *session.Store, costs *ledger.Ledger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if costs == nil {
		costs = ledger.New(nil)
	}
	return &Assistant{logger: logger, cfg: cfg, engine: eng, sessions: sessions, costs: costs}
}

// Converse continues the thread's session, or starts one when it expired.
func (a *Assistant) Converse(ctx context.Context, turn Turn) (Reply, error) {
	message := strings.TrimSpace(turn.Message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	token, resumed := a.sessions.GetOrCreate(turn.ThreadID)
	res := a.engine.Run(ctx, executor.Invocation{
		Prompt:    conversationPrompt(utils.FirstNonEmpty(turn.User, "unknown"), message, a.cfg.Engine.AllowEditTools()),
		BudgetUSD: a.cfg.Budgets.Conversation,
		Timeout:   a.cfg.Timeouts.Conversation,
		Session:   &executor.SessionRef{Token: token, Resume: resumed},
	})
	a.sessions.RecordCost(turn.ThreadID, res.CostUSD)
	a.costs.Add(ledger.ScopeSession, turn.ThreadID, res.CostUSD)

	a.logger.Info("conversation turn",
		slog.String("thread_id", turn.ThreadID),
		slog.String("session_id", token),
		slog.Bool("resumed", resumed),
		slog.Bool("success", res.Success),
		slog.Float64("cost_usd", res.CostUSD),
	)

	reply := Reply{Result: res, SessionID: token, Resumed: resumed}
	if !res.Success {
		reply.Messages = []transport.OutgoingMessage{failureMessage("Error", res.Error)}
		return reply, nil
	}

	reply.Messages = transport.ChunkMessages(res.Output, a.cfg.Transport.MessageLimit, a.cfg.Transport.ConversationMaxChunks)
	if info, ok := a.sessions.Describe(turn.ThreadID); ok {
		footer := fmt.Sprintf("*Session: %d messages | Cost: $%.4f | Total: $%.4f*", info.MessageCount, res.CostUSD, info.CostUSD)
		reply.Messages = append(reply.Messages, transport.OutgoingMessage{Text: footer, Silent: true})
	}
	return reply, nil
}

// Ask answers a single question without session context.
func (a *Assistant) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyMessage
	}
	res := a.engine.Run(ctx, executor.Invocation{
		Prompt:    askPrompt(question),
		BudgetUSD: a.cfg.Budgets.Conversation,
		Timeout:   a.cfg.Timeouts.Conversation,
	})
	a.costs.Add(ledger.ScopeTask, "ask", res.CostUSD)

	reply := Reply{Result: res}
	if !res.Success {
		reply.Messages = []transport.OutgoingMessage{failureMessage("Error", res.Error)}
		return reply, nil
	}
	reply.Messages = []transport.OutgoingMessage{transport.Text(utils.Truncate(res.Output, a.cfg.Transport.MessageLimit))}
	return reply, nil
}

// RunTask executes an administrative instruction with permission prompts skipped.
func (a *Assistant) RunTask(ctx context.Context, task Task) (Reply, error) {
	text := strings.TrimSpace(task.Text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	a.logger.Info("running task", slog.String("user", task.User), slog.String("task", utils.Truncate(text, causeLimit)))

	res := a.engine.Run(ctx, executor.Invocation{
		Prompt:          taskPrompt(text, a.cfg.Engine.AllowEditTools()),
		BudgetUSD:       a.cfg.Budgets.Task,
		Timeout:         a.cfg.Timeouts.Task,
		SkipPermissions: true,
	})
	a.costs.Add(ledger.ScopeTask, utils.FirstNonEmpty(task.User, "task"), res.CostUSD)

	reply := Reply{Result: res}
	if !res.Success {
		reply.Messages = []transport.OutgoingMessage{failureMessage("Task failed", res.Error)}
		return reply, nil
	}
	reply.Messages = transport.ChunkMessages(res.Output, a.cfg.Transport.MessageLimit, a.cfg.Transport.TaskMaxChunks)
	reply.Messages = append(reply.Messages, transport.OutgoingMessage{
		Text:   fmt.Sprintf("*Cost: $%.4f | Turns: %d*", res.CostUSD, res.Turns),
		Silent: true,
	})
	return reply, nil
}

// ResetSession discards the thread's session and returns the new token.
func (a *Assistant) ResetSession(threadID string) string {
	return a.sessions.Reset(threadID)
}

// Sessions exposes the underlying store.
func (a *Assistant) Sessions() *session.Store {
	return a.sessions
}
