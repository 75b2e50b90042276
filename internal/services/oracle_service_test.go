package services

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/cache"
	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/engine"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/extractors"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/session"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

type echoEngine struct{}

func (echoEngine) Run(ctx context.Context, inv executor.Invocation) executor.Result {
	return executor.Result{Success: true, Output: "done", CostUSD: 0.01, Turns: 1}
}

type fixture struct {
	svc         *OracleService
	coordinator *engine.Coordinator
	clock       *clock.Mock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Behavior.AutoRespond = false
	cfg.Access.Admins = []string{"admin"}
	cfg.Intake.RatePerMinute = 60
	cfg.Intake.Burst = 2
	cfg.Intake.DedupeWindow = time.Minute

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := clock.NewMock()
	costs := ledger.New(nil)
	notifier := transport.NewLogNotifier(logger)
	gate := approval.NewGate()
	coordinator := engine.NewCoordinator(logger, cfg, echoEngine{}, costs, notifier, nil, gate)
	assistant := engine.NewAssistant(logger, cfg, echoEngine{}, session.NewStore(cfg.Sessions.Timeout), costs)
	remediator := engine.NewRemediator(logger, cfg, echoEngine{}, gate, costs, coordinator, notifier)

	svc, err := NewOracleService(logger, cfg, Deps{
		Coordinator: coordinator,
		Assistant:   assistant,
		Remediator:  remediator,
		Gate:        gate,
		Dedupe:      cache.NewMemoryProvider(mock),
		Clock:       mock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{svc: svc, coordinator: coordinator, clock: mock}
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func alert(title string) *api.SubmitAlertRequest {
	return &api.SubmitAlertRequest{Alert: models.AlertEvent{Title: title, Level: models.LevelCritical, SourceChannel: "alerts"}}
}

func TestSubmitAlertValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitAlert(context.Background(), &api.SubmitAlertRequest{Alert: models.AlertEvent{Level: models.LevelInfo}})
	wantCode(t, err, codes.InvalidArgument)

	_, err = f.svc.SubmitAlert(context.Background(), &api.SubmitAlertRequest{Alert: models.AlertEvent{Title: "x", Level: "urgent"}})
	wantCode(t, err, codes.InvalidArgument)
}

func TestSubmitAlertSuppressesDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitAlert(ctx, alert("Disk full"))
	mustOK(t, err)
	if first.Incident.State != models.StateInvestigating {
		t.Fatalf("unexpected state %s", first.Incident.State)
	}

	_, err = f.svc.SubmitAlert(ctx, alert("Disk full"))
	wantCode(t, err, codes.AlreadyExists)

	f.clock.Add(2 * time.Minute)
	second, err := f.svc.SubmitAlert(ctx, alert("Disk full"))
	mustOK(t, err)
	if second.Incident.ID == first.Incident.ID {
		t.Fatalf("expected a new incident after the window, got %s again", first.Incident.ID)
	}
}

func TestSubmitAlertRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitAlert(ctx, alert("one"))
	mustOK(t, err)
	_, err = f.svc.SubmitAlert(ctx, alert("two"))
	mustOK(t, err)
	_, err = f.svc.SubmitAlert(ctx, alert("three"))
	wantCode(t, err, codes.ResourceExhausted)

	// A rejected alert does not count as seen.
	f.clock.Add(2 * time.Second)
	_, err = f.svc.SubmitAlert(ctx, alert("three"))
	mustOK(t, err)
}

func TestIngestMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.IngestMessage(ctx, &api.IngestMessageRequest{Message: models.ChatMessage{Channel: "general", Content: "lunch?"}})
	mustOK(t, err)
	if resp.IsAlert {
		t.Fatalf("chatter classified as an alert")
	}

	resp, err = f.svc.IngestMessage(ctx, &api.IngestMessageRequest{Message: models.ChatMessage{
		Channel: "alerts",
		Embeds:  []models.Embed{{Title: "Harbor down", Color: extractors.ColorRed}},
	}})
	mustOK(t, err)
	if !resp.IsAlert {
		t.Fatalf("red embed not classified as an alert")
	}
	if resp.Incident.Alert.Level != models.LevelCritical {
		t.Fatalf("unexpected level %s", resp.Incident.Alert.Level)
	}

	_, err = f.svc.IngestMessage(ctx, &api.IngestMessageRequest{Message: models.ChatMessage{Content: "🚨"}})
	wantCode(t, err, codes.InvalidArgument)
}

func TestInvestigateStartsIncident(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Investigate(ctx, &api.IncidentRequest{IncidentID: "INC-missing"})
	wantCode(t, err, codes.NotFound)

	opened, err := f.svc.SubmitAlert(ctx, alert("Disk full"))
	mustOK(t, err)
	_, err = f.svc.Investigate(ctx, &api.IncidentRequest{IncidentID: opened.Incident.ID})
	mustOK(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	final, err := f.coordinator.Wait(waitCtx, opened.Incident.ID)
	mustOK(t, err)
	if final.State != models.StateNeedsAction {
		t.Fatalf("unexpected final state %s", final.State)
	}

	_, err = f.svc.Investigate(ctx, &api.IncidentRequest{IncidentID: opened.Incident.ID})
	wantCode(t, err, codes.FailedPrecondition)

	listed, err := f.svc.ListIncidents(ctx, &api.ListIncidentsRequest{Limit: 5})
	mustOK(t, err)
	if len(listed.Incidents) != 1 {
		t.Fatalf("expected one incident, got %d", len(listed.Incidents))
	}
	if got := listed.Incidents[0].CostUSD; math.Abs(got-0.02) > 1e-9 {
		t.Fatalf("unexpected incident cost %.4f", got)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RunTask(ctx, &api.RunTaskRequest{Task: "restart", User: "guest"})
	wantCode(t, err, codes.PermissionDenied)

	_, err = f.svc.Command(ctx, &api.CommandRequest{Name: "toggle-auto", Args: map[string]string{"feature": "respond"}, User: "guest"})
	wantCode(t, err, codes.PermissionDenied)

	_, err = f.svc.Decide(ctx, &api.DecideRequest{RequestID: "nope", User: "guest"})
	wantCode(t, err, codes.PermissionDenied)

	_, err = f.svc.Decide(ctx, &api.DecideRequest{RequestID: "nope", User: "admin"})
	wantCode(t, err, codes.NotFound)

	reply, err := f.svc.RunTask(ctx, &api.RunTaskRequest{Task: "restart", User: "admin"})
	mustOK(t, err)
	if !reply.Success {
		t.Fatalf("admin task failed: %+v", reply)
	}
}

func TestToggleAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Toggle(ctx, &api.ToggleRequest{Feature: "respond", User: "admin"})
	mustOK(t, err)
	if !st.AutoRespond || st.AutoRemediate {
		t.Fatalf("unexpected toggles after flip %+v", st)
	}

	off := false
	st, err = f.svc.Toggle(ctx, &api.ToggleRequest{Feature: "respond", Enabled: &off, User: "admin"})
	mustOK(t, err)
	if st.AutoRespond {
		t.Fatalf("explicit off not applied")
	}

	_, err = f.svc.Toggle(ctx, &api.ToggleRequest{Feature: "everything", User: "admin"})
	wantCode(t, err, codes.InvalidArgument)

	f.clock.Add(90 * time.Second)
	st, err = f.svc.Status(ctx, &api.StatusRequest{})
	mustOK(t, err)
	if st.Uptime != "0:01:30" || st.Environment != "dev" || !st.EditTools {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCommandRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Command(ctx, &api.CommandRequest{Name: "reboot-everything", User: "admin"})
	wantCode(t, err, codes.InvalidArgument)

	reply, err := f.svc.Command(ctx, &api.CommandRequest{Name: "/oracle-status", User: "guest"})
	mustOK(t, err)
	if len(reply.Messages) != 1 || reply.Messages[0].Summary.Title != "🤖 Oracle Status" {
		t.Fatalf("unexpected status reply %+v", reply.Messages)
	}

	reply, err = f.svc.Command(ctx, &api.CommandRequest{Name: "session-info", ThreadID: "t1"})
	mustOK(t, err)
	if reply.Messages[0].Text != "No active session in this thread." {
		t.Fatalf("unexpected reply %q", reply.Messages[0].Text)
	}

	_, err = f.svc.Converse(ctx, &api.ConverseRequest{ThreadID: "t1", User: "alice", Message: "status?"})
	mustOK(t, err)
	reply, err = f.svc.Command(ctx, &api.CommandRequest{Name: "session-info", ThreadID: "t1"})
	mustOK(t, err)
	if reply.Messages[0].Summary == nil || reply.Messages[0].Summary.Title != "💬 Session Info" {
		t.Fatalf("unexpected session info reply %+v", reply.Messages[0])
	}

	reply, err = f.svc.Command(ctx, &api.CommandRequest{Name: "new-session", ThreadID: "t1"})
	mustOK(t, err)
	if !strings.Contains(reply.Messages[0].Text, "New session started") {
		t.Fatalf("unexpected reply %q", reply.Messages[0].Text)
	}

	info, err := f.svc.SessionInfo(ctx, &api.SessionRequest{ThreadID: "t1"})
	mustOK(t, err)
	if info.Session.MessageCount != 1 {
		t.Fatalf("a fresh session starts at one message, got %d", info.Session.MessageCount)
	}
}

func TestRemediateSkipApprovalViaService(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Remediate(context.Background(), &api.RemediateRequest{Action: "restart harbor", User: "admin", SkipApproval: true})
	mustOK(t, err)
	if !resp.Executed || resp.Decision.Reason != approval.ReasonBypass {
		t.Fatalf("unexpected remediation %+v", resp)
	}
	if math.Abs(resp.CostUSD-0.02) > 1e-9 {
		t.Fatalf("unexpected cost %.4f", resp.CostUSD)
	}
}
