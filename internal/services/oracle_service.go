package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/cache"
	"github.com/miradorstack/mirador-oracle/internal/commands"
	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/engine"
	"github.com/miradorstack/mirador-oracle/internal/extractors"
	"github.com/miradorstack/mirador-oracle/internal/metrics"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

// LatencyReporter exposes engine invocation latency.
type LatencyReporter interface {
	LatencyP95() time.Duration
}

// Deps bundles the collaborators of OracleService.
type Deps struct {
	Coordinator *engine.Coordinator
	Assistant   *engine.Assistant
	Remediator  *engine.Remediator
	Gate        *approval.Gate
	Runbooks    *engine.Runbooks
	Latency     LatencyReporter
	// Dedupe remembers recent alert fingerprints. Nil disables duplicate suppression.
	Dedupe cache.Provider
	Clock  clock.Clock
}

// OracleService implements the gRPC Oracle service.
type OracleService struct {
	api.UnimplementedOracleServer

	logger      *slog.Logger
	cfg         config.Config
	coordinator *engine.Coordinator
	assistant   *engine.Assistant
	remediator  *engine.Remediator
	gate        *approval.Gate
	runbooks    *engine.Runbooks
	latency     LatencyReporter
	dedupe      cache.Provider
	clock       clock.Clock
	started     time.Time

	extractor *extractors.AlertExtractor
	validate  *validator.Validate
	limiter   *rate.Limiter
	router    *commands.Router
}

// NewOracleService constructs the service facade.
func NewOracleService(logger *slog.Logger, cfg config.Config, deps Deps) (*OracleService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Coordinator == nil || deps.Assistant == nil || deps.Remediator == nil || deps.Gate == nil {
		return nil, errors.New("coordinator, assistant, remediator and gate are required")
	}
	if deps.Dedupe == nil {
		deps.Dedupe = cache.NoopProvider{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	limit := rate.Inf
	if cfg.Intake.RatePerMinute > 0 {
		limit = rate.Limit(cfg.Intake.RatePerMinute / 60)
	}
	burst := cfg.Intake.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &OracleService{
		logger:      logger,
		cfg:         cfg,
		coordinator: deps.Coordinator,
		assistant:   deps.Assistant,
		remediator:  deps.Remediator,
		gate:        deps.Gate,
		runbooks:    deps.Runbooks,
		latency:     deps.Latency,
		dedupe:      deps.Dedupe,
		clock:       deps.Clock,
		started:     deps.Clock.Now(),
		extractor:   extractors.NewAlertExtractor(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		limiter:     rate.NewLimiter(limit, burst),
	}

	router, err := commands.NewRouter(s.commandHandlers())
	if err != nil {
		return nil, err
	}
	s.router = router
	return s, nil
}

// SubmitAlert validates an alert and opens an incident for it.
func (s *OracleService) SubmitAlert(ctx context.Context, req *api.SubmitAlertRequest) (*api.IncidentResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	inc, err := s.openIncident(ctx, req.Alert)
	if err != nil {
		return nil, err
	}
	return &api.IncidentResponse{Incident: inc}, nil
}

// IngestMessage opens an incident when a chat message looks like an alert.
func (s *OracleService) IngestMessage(ctx context.Context, req *api.IngestMessageRequest) (*api.IngestMessageResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := s.validate.Struct(req.Message); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	alert, ok := s.extractor.Extract(req.Message)
	if !ok {
		s.logger.Debug("message ignored", slog.String("channel", req.Message.Channel))
		return &api.IngestMessageResponse{}, nil
	}
	inc, err := s.openIncident(ctx, alert)
	if err != nil {
		return nil, err
	}
	return &api.IngestMessageResponse{IsAlert: true, Incident: &inc}, nil
}

func (s *OracleService) openIncident(ctx context.Context, alert models.AlertEvent) (models.Incident, error) {
	if alert.Level == "" {
		alert.Level = models.LevelWarning
	}
	if err := s.validate.Struct(alert); err != nil {
		metrics.AlertRejected("invalid")
		return models.Incident{}, status.Error(codes.InvalidArgument, err.Error())
	}

	key := "alert:" + alert.Fingerprint()
	if s.cfg.Intake.DedupeWindow > 0 {
		fresh, err := s.dedupe.SetNX(ctx, key, []byte(alert.Title), s.cfg.Intake.DedupeWindow)
		if err != nil {
			s.logger.Warn("dedupe lookup failed", slog.Any("error", err))
		} else if !fresh {
			metrics.AlertRejected("duplicate")
			return models.Incident{}, status.Errorf(codes.AlreadyExists, "duplicate alert %q within %s", alert.Title, s.cfg.Intake.DedupeWindow)
		}
	}

	if !s.limiter.AllowN(s.clock.Now(), 1) {
		metrics.AlertRejected("rate_limited")
		_ = s.dedupe.Del(ctx, key)
		return models.Incident{}, status.Error(codes.ResourceExhausted, "alert intake rate exceeded")
	}

	inc, err := s.coordinator.Open(ctx, alert)
	if err != nil {
		_ = s.dedupe.Del(ctx, key)
		return models.Incident{}, toStatus(err)
	}
	return inc, nil
}

// Investigate starts an incident opened while auto-respond was off.
func (s *OracleService) Investigate(ctx context.Context, req *api.IncidentRequest) (*api.IncidentResponse, error) {
	if req == nil || req.IncidentID == "" {
		return nil, status.Error(codes.InvalidArgument, "incident_id is required")
	}
	if err := s.coordinator.Investigate(req.IncidentID); err != nil {
		return nil, toStatus(err)
	}
	inc, _ := s.coordinator.Get(req.IncidentID)
	return &api.IncidentResponse{Incident: inc}, nil
}

// GetIncident returns an incident snapshot.
func (s *OracleService) GetIncident(ctx context.Context, req *api.IncidentRequest) (*api.IncidentResponse, error) {
	if req == nil || req.IncidentID == "" {
		return nil, status.Error(codes.InvalidArgument, "incident_id is required")
	}
	inc, ok := s.coordinator.Get(req.IncidentID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "incident %s not found", req.IncidentID)
	}
	return &api.IncidentResponse{Incident: inc}, nil
}

// ListIncidents returns recent incidents.
func (s *OracleService) ListIncidents(ctx context.Context, req *api.ListIncidentsRequest) (*api.ListIncidentsResponse, error) {
	limit := 0
	if req != nil {
		limit = req.Limit
	}
	return &api.ListIncidentsResponse{Incidents: s.coordinator.List(limit)}, nil
}

// Converse continues the thread's conversation.
func (s *OracleService) Converse(ctx context.Context, req *api.ConverseRequest) (*api.ReplyResponse, error) {
	if req == nil || req.ThreadID == "" {
		return nil, status.Error(codes.InvalidArgument, "thread_id is required")
	}
	reply, err := s.assistant.Converse(ctx, engine.Turn{ThreadID: req.ThreadID, User: req.User, Message: req.Message})
	if err != nil {
		return nil, toStatus(err)
	}
	return toReplyResponse(reply), nil
}

// Ask answers a single question.
func (s *OracleService) Ask(ctx context.Context, req *api.AskRequest) (*api.ReplyResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	reply, err := s.assistant.Ask(ctx, req.Question)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReplyResponse(reply), nil
}

// RunTask executes an administrative task.
func (s *OracleService) RunTask(ctx context.Context, req *api.RunTaskRequest) (*api.ReplyResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := s.requireAdmin(req.User); err != nil {
		return nil, err
	}
	reply, err := s.assistant.RunTask(ctx, engine.Task{Text: req.Task, User: req.User})
	if err != nil {
		return nil, toStatus(err)
	}
	return toReplyResponse(reply), nil
}

// Remediate runs analyse, approve, execute. The call blocks until the
// approval is decided.
func (s *OracleService) Remediate(ctx context.Context, req *api.RemediateRequest) (*api.RemediateResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := s.requireAdmin(req.User); err != nil {
		return nil, err
	}
	out, err := s.remediator.Remediate(ctx, engine.RemediationRequest{
		Action:       req.Action,
		RequestedBy:  req.User,
		SkipApproval: req.SkipApproval,
		IncidentID:   req.IncidentID,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &api.RemediateResponse{
		Analysis: out.Analysis.Output,
		Request:  out.Request,
		Decision: out.Decision,
		Executed: out.Executed(),
		CostUSD:  out.CostUSD,
		Messages: out.Messages,
	}
	if out.Execution != nil {
		resp.Output = out.Execution.Output
	}
	return resp, nil
}

// Decide approves or denies a pending request.
func (s *OracleService) Decide(ctx context.Context, req *api.DecideRequest) (*api.DecideResponse, error) {
	if req == nil || req.RequestID == "" {
		return nil, status.Error(codes.InvalidArgument, "request_id is required")
	}
	if err := s.requireAdmin(req.User); err != nil {
		return nil, err
	}
	accepted, err := s.gate.Decide(req.RequestID, req.Approve, req.User)
	if err != nil {
		return nil, toStatus(err)
	}
	snapshot, _ := s.gate.Get(req.RequestID)
	s.logger.Info("approval decided",
		slog.String("request_id", req.RequestID),
		slog.Bool("approve", req.Approve),
		slog.String("user", req.User),
		slog.Bool("accepted", accepted),
	)
	return &api.DecideResponse{Accepted: accepted, Request: snapshot}, nil
}

// PendingApprovals lists unresolved approvals.
func (s *OracleService) PendingApprovals(ctx context.Context, req *api.PendingApprovalsRequest) (*api.PendingApprovalsResponse, error) {
	return &api.PendingApprovalsResponse{Requests: s.gate.Pending()}, nil
}

// ResetSession discards the thread's session.
func (s *OracleService) ResetSession(ctx context.Context, req *api.SessionRequest) (*api.SessionResponse, error) {
	if req == nil || req.ThreadID == "" {
		return nil, status.Error(codes.InvalidArgument, "thread_id is required")
	}
	s.assistant.ResetSession(req.ThreadID)
	info, ok := s.assistant.Sessions().Describe(req.ThreadID)
	return &api.SessionResponse{Session: info, Found: ok}, nil
}

// SessionInfo describes the thread's session.
func (s *OracleService) SessionInfo(ctx context.Context, req *api.SessionRequest) (*api.SessionResponse, error) {
	if req == nil || req.ThreadID == "" {
		return nil, status.Error(codes.InvalidArgument, "thread_id is required")
	}
	info, ok := s.assistant.Sessions().Describe(req.ThreadID)
	return &api.SessionResponse{Session: info, Found: ok}, nil
}

// Status summarises the running service.
func (s *OracleService) Status(ctx context.Context, req *api.StatusRequest) (*api.StatusResponse, error) {
	return s.status(), nil
}

func (s *OracleService) status() *api.StatusResponse {
	stats := s.coordinator.Stats()
	var p95 time.Duration
	if s.latency != nil {
		p95 = s.latency.LatencyP95()
	}
	return &api.StatusResponse{
		Environment:      s.cfg.Engine.Environment,
		EditTools:        s.cfg.Engine.AllowEditTools(),
		AutoRespond:      s.coordinator.AutoRespond(),
		AutoRemediate:    s.coordinator.AutoRemediate(),
		ActiveIncidents:  stats.Active,
		TotalIncidents:   stats.Total,
		ActiveSessions:   s.assistant.Sessions().Active(),
		PendingApprovals: len(s.gate.Pending()),
		Runbooks:         s.runbooks.Len(),
		TotalCostUSD:     s.coordinator.Ledger().Total(),
		Uptime:           utils.Elapsed(s.clock.Since(s.started)),
		CodebasePath:     s.cfg.Engine.CodebasePath,
		EngineP95:        p95.Round(time.Millisecond).String(),
	}
}

// Toggle flips auto-respond or auto-remediate.
func (s *OracleService) Toggle(ctx context.Context, req *api.ToggleRequest) (*api.StatusResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if err := s.requireAdmin(req.User); err != nil {
		return nil, err
	}
	if _, err := s.toggle(req.Feature, req.Enabled, req.User); err != nil {
		return nil, toStatus(err)
	}
	return s.status(), nil
}

func (s *OracleService) toggle(name string, enabled *bool, user string) (bool, error) {
	feature, err := commands.ParseFeature(name)
	if err != nil {
		return false, err
	}
	var value bool
	switch feature {
	case commands.FeatureRespond:
		value = lo.FromPtrOr(enabled, !s.coordinator.AutoRespond())
		s.coordinator.SetAutoRespond(value)
	case commands.FeatureRemediate:
		value = lo.FromPtrOr(enabled, !s.coordinator.AutoRemediate())
		s.coordinator.SetAutoRemediate(value)
	}
	s.logger.Info("feature toggled", slog.String("feature", string(feature)), slog.Bool("enabled", value), slog.String("user", user))
	return value, nil
}

// Command routes a named operator command.
func (s *OracleService) Command(ctx context.Context, req *api.CommandRequest) (*api.ReplyResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	reply, err := s.router.Dispatch(ctx, req.Name, commands.Invocation{
		Args:     req.Args,
		User:     req.User,
		ThreadID: req.ThreadID,
		Admin:    s.cfg.Access.IsAdmin(req.User),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ReplyResponse{Messages: reply.Messages, Success: true}, nil
}

func (s *OracleService) requireAdmin(user string) error {
	if s.cfg.Access.IsAdmin(user) {
		return nil
	}
	s.logger.Warn("admin operation refused", slog.String("user", user))
	return status.Error(codes.PermissionDenied, commands.ErrForbidden.Error())
}

func toReplyResponse(reply engine.Reply) *api.ReplyResponse {
	return &api.ReplyResponse{
		Messages:  reply.Messages,
		Success:   reply.Result.Success,
		CostUSD:   reply.Result.CostUSD,
		SessionID: reply.SessionID,
		Resumed:   reply.Resumed,
	}
}

func toStatus(err error) error {
	var unknown *commands.UnknownCommandError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrUnknownIncident), errors.Is(err, approval.ErrUnknownRequest):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, engine.ErrAlreadyRunning), errors.Is(err, engine.ErrIncidentClosed), errors.Is(err, engine.ErrNotStarted):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, engine.ErrShuttingDown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, engine.ErrEmptyMessage), errors.Is(err, engine.ErrEmptyAction),
		errors.Is(err, commands.ErrUnknownFeature), errors.As(err, &unknown):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, commands.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, fmt.Sprintf("request failed: %v", err))
}
