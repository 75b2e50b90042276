package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/models"
)

type staticIncidents map[string]models.Incident

func (s staticIncidents) Get(id string) (models.Incident, bool) {
	inc, ok := s[id]
	return inc, ok
}

func remediationEngine() *fakeEngine {
	return &fakeEngine{respond: scripted(map[string]executor.Result{
		"analysis":  {Success: true, Output: "restart the harbor-core container", CostUSD: 0.03},
		"execution": {Success: true, Output: "harbor-core restarted", CostUSD: 0.07},
	})}
}

func waitForPending(t *testing.T, gate *approval.Gate) approval.Request {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if pending := gate.Pending(); len(pending) > 0 {
			return pending[0]
		}
		if time.Now().After(deadline) {
			t.Fatalf("approval request never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRemediateSkipApprovalExecutes(t *testing.T) {
	eng := remediationEngine()
	gate := approval.NewGate()
	r := NewRemediator(testLogger(), testConfig(), eng, gate, nil, nil, newRecordingNotifier())

	out, err := r.Remediate(context.Background(), RemediationRequest{Action: "fix harbor", RequestedBy: "admin", SkipApproval: true})
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if !out.Executed() {
		t.Fatalf("expected execution to succeed")
	}
	if out.Decision.Reason != approval.ReasonBypass || out.Decision.DecidedBy != "admin" {
		t.Fatalf("unexpected decision %+v", out.Decision)
	}
	if math.Abs(out.CostUSD-0.10) > 1e-9 {
		t.Fatalf("expected total cost 0.10, got %f", out.CostUSD)
	}

	calls := eng.invocations()
	if len(calls) != 2 {
		t.Fatalf("expected analysis and execution, got %d calls", len(calls))
	}
	analysis := calls[0]
	if !analysis.SkipPermissions || analysis.BudgetUSD != 0.05 || analysis.Timeout != 120*time.Second {
		t.Fatalf("unexpected analysis invocation %+v", analysis)
	}
	if !strings.Contains(strings.Join(analysis.DeniedTools, ","), "Write") {
		t.Fatalf("analysis must deny edit tools, got %v", analysis.DeniedTools)
	}
	if calls[1].BudgetUSD != 0.10 || calls[1].Timeout != 300*time.Second {
		t.Fatalf("unexpected execution invocation %+v", calls[1])
	}
}

func TestRemediateDeniedDoesNotExecute(t *testing.T) {
	eng := remediationEngine()
	gate := approval.NewGate()
	notifier := newRecordingNotifier()
	r := NewRemediator(testLogger(), testConfig(), eng, gate, nil, nil, notifier)

	go func() {
		req := waitForPending(t, gate)
		_, _ = gate.Decide(req.ID, false, "oncall")
	}()

	out, err := r.Remediate(context.Background(), RemediationRequest{Action: "fix harbor", RequestedBy: "admin"})
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if out.Execution != nil || out.Decision.Approved() {
		t.Fatalf("denied remediation must not execute")
	}
	if len(eng.invocations()) != 1 {
		t.Fatalf("expected only the analysis call")
	}
	if titles := notifier.titles("remediation"); len(titles) != 1 {
		t.Fatalf("expected one approval notification, got %v", titles)
	}
}

func TestRemediateExpiresToDenial(t *testing.T) {
	mock := clock.NewMock()
	eng := remediationEngine()
	gate := approval.NewGate(approval.WithClock(mock))
	cfg := testConfig()
	r := NewRemediator(testLogger(), cfg, eng, gate, nil, nil, nil)

	go func() {
		waitForPending(t, gate)
		mock.Add(cfg.Approval.Timeout)
	}()

	out, err := r.Remediate(context.Background(), RemediationRequest{Action: "fix harbor", RequestedBy: "admin"})
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if out.Decision.Outcome != approval.OutcomeDenied || out.Decision.Reason != approval.ReasonExpired {
		t.Fatalf("expected expiry denial, got %+v", out.Decision)
	}
	if out.Execution != nil {
		t.Fatalf("expired remediation must not execute")
	}
}

func TestRemediateAnalysisFailureStops(t *testing.T) {
	eng := &fakeEngine{respond: scripted(map[string]executor.Result{
		"analysis": {Success: false, Error: "not found"},
	})}
	gate := approval.NewGate()
	r := NewRemediator(testLogger(), testConfig(), eng, gate, nil, nil, nil)

	out, err := r.Remediate(context.Background(), RemediationRequest{Action: "fix", RequestedBy: "admin"})
	if err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if out.Request.ID != "" || len(gate.Pending()) != 0 {
		t.Fatalf("no approval should be opened after failed analysis")
	}
	if len(out.Messages) != 1 || !strings.HasPrefix(out.Messages[0].Text, "❌ Analysis failed") {
		t.Fatalf("unexpected messages %+v", out.Messages)
	}
}

func TestRemediateIncidentContext(t *testing.T) {
	eng := remediationEngine()
	incidents := staticIncidents{"INC-1": {
		ID:    "INC-1",
		Alert: diskFull(),
		Phases: []models.PhaseRecord{
			{Phase: models.PhaseDiagnose, Success: true, Output: "docker images use 80GB"},
		},
	}}
	r := NewRemediator(testLogger(), testConfig(), eng, approval.NewGate(), nil, incidents, nil)

	if _, err := r.Remediate(context.Background(), RemediationRequest{Action: "prune", RequestedBy: "admin", SkipApproval: true, IncidentID: "INC-1"}); err != nil {
		t.Fatalf("remediate: %v", err)
	}
	if prompt := eng.invocations()[0].Prompt; !strings.Contains(prompt, "docker images use 80GB") || !strings.Contains(prompt, "Disk full") {
		t.Fatalf("analysis prompt missing incident context: %q", prompt)
	}

	_, err := r.Remediate(context.Background(), RemediationRequest{Action: "prune", IncidentID: "INC-404"})
	if !errors.Is(err, ErrUnknownIncident) {
		t.Fatalf("expected ErrUnknownIncident, got %v", err)
	}
}
