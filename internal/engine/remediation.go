package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

var ErrEmptyAction = errors.New("remediation action is empty")

// IncidentSource looks up incident snapshots.
type IncidentSource interface {
	Get(id string) (models.Incident, bool)
}

// RemediationRequest asks for an operator-initiated fix.
type RemediationRequest struct {
	Action      string
	RequestedBy string
	// SkipApproval executes without waiting; the requester is recorded as approver.
	SkipApproval bool
	IncidentID   string
}

// RemediationOutcome reports every step of a remediation attempt.
type RemediationOutcome struct {
	Analysis  executor.Result
	Request   approval.Request
	Decision  approval.Decision
	Execution *executor.Result
	CostUSD   float64
	Messages  []transport.OutgoingMessage
}

// Executed reports whether the fix ran and succeeded.
func (o RemediationOutcome) Executed() bool {
	return o.Execution != nil && o.Execution.Success
}

// Remediator runs analyse, approve, execute for manual remediation requests.
type Remediator struct {
	logger    *slog.Logger
	cfg       config.Config
	engine    Engine
	approvals Approvals
	costs     *ledger.Ledger
	incidents IncidentSource
	notifier  transport.Notifier
}

// NewRemediator wires the manual remediation flow. incidents and notifier may be nil.
func NewRemediator(logger *slog.Logger, cfg config.Config, eng Engine, approvals Approvals, costs *ledger.Ledger, incidents IncidentSource, notifier transport.Notifier) *Remediator {
	if logger == nil {
		logger = slog.Default()
	}
	if costs == nil {
		costs = ledger.New(nil)
	}
	if notifier == nil {
		notifier = transport.NewLogNotifier(logger)
	}
	return &Remediator{
		logger:    logger,
		cfg:       cfg,
		engine:    eng,
		approvals: approvals,
		costs:     costs,
		incidents: incidents,
		notifier:  notifier,
	}
}

// Remediate blocks until the request has been executed, denied or has expired.
func (r *Remediator) Remediate(ctx context.Context, req RemediationRequest) (RemediationOutcome, error) {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return RemediationOutcome{}, ErrEmptyAction
	}

	var related *models.Incident
	if req.IncidentID != "" {
		if r.incidents == nil {
			return RemediationOutcome{}, fmt.Errorf("%w: %s", ErrUnknownIncident, req.IncidentID)
		}
		inc, ok := r.incidents.Get(req.IncidentID)
		if !ok {
			return RemediationOutcome{}, fmt.Errorf("%w: %s", ErrUnknownIncident, req.IncidentID)
		}
		related = &inc
	}
	thread := req.IncidentID
	if thread == "" {
		thread = "remediation"
	}

	var out RemediationOutcome
	out.Analysis = r.engine.Run(ctx, executor.Invocation{
		Prompt:          remediationAnalysisPrompt(action, related),
		DeniedTools:     executor.EditTools,
		BudgetUSD:       r.cfg.Budgets.RemediationAnalysis,
		Timeout:         r.cfg.Timeouts.RemediationAnalysis,
		SkipPermissions: true,
	})
	r.charge(&out, req, out.Analysis.CostUSD)
	if !out.Analysis.Success {
		out.Messages = append(out.Messages, failureMessage("Analysis failed", out.Analysis.Error))
		return out, nil
	}

	spec := approval.Spec{
		Description:    action,
		ProposedAction: out.Analysis.Output,
		RequestedBy:    req.RequestedBy,
		Timeout:        r.cfg.Approval.Timeout,
	}
	if req.SkipApproval {
		spec.PreApprovedBy = req.RequestedBy
	}
	pending := r.approvals.Open(spec)
	out.Request = pending.Snapshot()
	if !req.SkipApproval {
		msg := approvalMessage(out.Request.ID, action, out.Analysis.Output, out.Request.Deadline, r.cfg.Transport.EmbedLimit)
		if err := r.notifier.Notify(ctx, thread, msg); err != nil {
			r.logger.Warn("approval notification failed", slog.String("request_id", out.Request.ID), slog.Any("error", err))
		}
	}

	out.Decision = pending.Wait(ctx)
	out.Request = pending.Snapshot()
	r.logger.Info("remediation decision",
		slog.String("request_id", out.Request.ID),
		slog.String("outcome", string(out.Decision.Outcome)),
		slog.String("reason", string(out.Decision.Reason)),
		slog.String("decided_by", out.Decision.DecidedBy),
	)
	if !out.Decision.Approved() {
		text := "🚫 Remediation denied."
		if out.Decision.Reason == approval.ReasonExpired {
			text = "⏰ Approval timed out. Remediation cancelled."
		}
		out.Messages = append(out.Messages, transport.Text(text))
		return out, nil
	}

	exec := r.engine.Run(ctx, executor.Invocation{
		Prompt:          remediationExecutionPrompt(action, out.Analysis.Output),
		BudgetUSD:       r.cfg.Budgets.RemediationExecution,
		Timeout:         r.cfg.Timeouts.RemediationExecution,
		SkipPermissions: true,
	})
	out.Execution = &exec
	r.charge(&out, req, exec.CostUSD)

	if !exec.Success {
		out.Messages = append(out.Messages, failureMessage("Remediation failed", exec.Error))
		return out, nil
	}
	out.Messages = append(out.Messages, transport.OutgoingMessage{Summary: &transport.Summary{
		Title:       "✅ Remediation Complete",
		Description: transport.Excerpt(exec.Output, r.cfg.Transport.EmbedLimit),
		Tone:        transport.ToneSuccess,
		Footer:      fmt.Sprintf("Approved by %s | Cost: $%.4f", out.Decision.DecidedBy, out.CostUSD),
	}})
	return out, nil
}

func (r *Remediator) charge(out *RemediationOutcome, req RemediationRequest, amount float64) {
	if amount > 0 {
		out.CostUSD += amount
	}
	if req.IncidentID != "" {
		r.costs.Add(ledger.ScopeIncident, req.IncidentID, amount)
		return
	}
	r.costs.Add(ledger.ScopeTask, "remediation", amount)
}
