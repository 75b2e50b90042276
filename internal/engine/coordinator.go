package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/config"
	"github.com/miradorstack/mirador-oracle/internal/executor"
	"github.com/miradorstack/mirador-oracle/internal/ledger"
	"github.com/miradorstack/mirador-oracle/internal/metrics"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

var (
	ErrUnknownIncident = errors.New("unknown incident")
	ErrAlreadyRunning  = errors.New("investigation already running")
	ErrIncidentClosed  = errors.New("incident already closed")
	ErrNotStarted      = errors.New("investigation not started")
	ErrShuttingDown    = errors.New("coordinator is shutting down")
)

// Engine runs one reasoning-engine invocation.
type Engine interface {
	Run(ctx context.Context, inv executor.Invocation) executor.Result
}

// Approvals opens approval requests.
type Approvals interface {
	Open(spec approval.Spec) *approval.Pending
}

type incident struct {
	mu      sync.Mutex
	snap    models.Incident
	started bool
	done    chan struct{}
}

func (i *incident) snapshot() models.Incident {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.snap
	out.Phases = append([]models.PhaseRecord(nil), i.snap.Phases...)
	return out
}

// Coordinator drives each incident through investigation, diagnosis and
// remediation. Every incident runs in its own tracked goroutine.
type Coordinator struct {
	logger    *slog.Logger
	cfg       config.Config
	engine    Engine
	costs     *ledger.Ledger
	notifier  transport.Notifier
	runbooks  *Runbooks
	approvals Approvals
	clock     clock.Clock

	autoRespond   atomic.Bool
	autoRemediate atomic.Bool
	seq           atomic.Uint64

	mu        sync.RWMutex
	incidents map[string]*incident
	order     []string
	closing   bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for timestamps and IDs.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// NewCoordinator wires the incident state machine.
func NewCoordinator(
	logger *slog.Logger,
	cfg config.Config,
	eng Engine,
	costs *ledger.Ledger,
	notifier transport.Notifier,
	runbooks *Runbooks,
	approvals Approvals,
	opts ...Option,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if costs == nil {
		costs = ledger.New(nil)
	}
	if notifier == nil {
		notifier = transport.NewLogNotifier(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		logger:    logger,
		cfg:       cfg,
		engine:    eng,
		costs:     costs,
		notifier:  notifier,
		runbooks:  runbooks,
		approvals: approvals,
		clock:     clock.New(),
		incidents: make(map[string]*incident),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.autoRespond.Store(cfg.Behavior.AutoRespond)
	c.autoRemediate.Store(cfg.Behavior.AutoRemediate)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AutoRespond reports whether new incidents are investigated immediately.
func (c *Coordinator) AutoRespond() bool { return c.autoRespond.Load() }

// AutoRemediate reports whether remediation runs without an operator.
func (c *Coordinator) AutoRemediate() bool { return c.autoRemediate.Load() }

// SetAutoRespond flips the auto-respond toggle.
func (c *Coordinator) SetAutoRespond(v bool) { c.autoRespond.Store(v) }

// SetAutoRemediate flips the auto-remediate toggle.
func (c *Coordinator) SetAutoRemediate(v bool) { c.autoRemediate.Store(v) }

// Open creates an incident for alert and, when auto-respond is on, starts
// its investigation.
func (c *Coordinator) Open(ctx context.Context, alert models.AlertEvent) (models.Incident, error) {
	now := c.clock.Now().UTC()
	if alert.Timestamp.IsZero() {
		alert.Timestamp = now
	}
	inc := &incident{
		snap: models.Incident{
			ID:        c.nextID(),
			Alert:     alert,
			State:     models.StateInvestigating,
			StartedAt: now,
		},
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return models.Incident{}, ErrShuttingDown
	}
	c.incidents[inc.snap.ID] = inc
	c.order = append(c.order, inc.snap.ID)
	c.mu.Unlock()

	autoRespond := c.autoRespond.Load()
	c.logger.Info("incident opened",
		slog.String("incident_id", inc.snap.ID),
		slog.String("title", alert.Title),
		slog.String("level", string(alert.Level)),
		slog.Bool("auto_respond", autoRespond),
	)
	c.quietly(inc.snap.ID, "opened notification", func() {
		c.notify(ctx, inc.snap.ID, openedMessage(inc.snap, autoRespond)...)
	})

	if autoRespond {
		if err := c.start(inc); err != nil {
			// Shutdown began after registration; the task never ran.
			c.finish(inc, models.StateError, "not started: "+err.Error())
			close(inc.done)
			return inc.snapshot(), err
		}
	}
	return inc.snapshot(), nil
}

// Investigate starts the investigation of an incident opened while
// auto-respond was off.
func (c *Coordinator) Investigate(id string) error {
	inc, ok := c.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIncident, id)
	}
	return c.start(inc)
}

// Get returns a snapshot of the incident.
func (c *Coordinator) Get(id string) (models.Incident, bool) {
	inc, ok := c.lookup(id)
	if !ok {
		return models.Incident{}, false
	}
	return inc.snapshot(), true
}

// List returns up to limit incidents, most recent first. limit <= 0 returns all.
func (c *Coordinator) List(limit int) []models.Incident {
	c.mu.RLock()
	ids := append([]string(nil), c.order...)
	c.mu.RUnlock()

	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]models.Incident, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		if inc, ok := c.lookup(ids[i]); ok {
			out = append(out, inc.snapshot())
		}
	}
	return out
}

// Stats summarises incident counts.
type Stats struct {
	Total   int
	Active  int
	ByState map[models.PhaseState]int
}

// Stats returns counts across every known incident.
func (c *Coordinator) Stats() Stats {
	all := c.List(0)
	st := Stats{Total: len(all), ByState: make(map[models.PhaseState]int)}
	for _, inc := range all {
		st.ByState[inc.State]++
		if !inc.State.Terminal() {
			st.Active++
		}
	}
	return st
}

// Wait blocks until the incident's investigation task has finished.
func (c *Coordinator) Wait(ctx context.Context, id string) (models.Incident, error) {
	inc, ok := c.lookup(id)
	if !ok {
		return models.Incident{}, fmt.Errorf("%w: %s", ErrUnknownIncident, id)
	}
	inc.mu.Lock()
	started := inc.started
	inc.mu.Unlock()
	if !started {
		return inc.snapshot(), ErrNotStarted
	}
	select {
	case <-inc.done:
		return inc.snapshot(), nil
	case <-ctx.Done():
		return inc.snapshot(), ctx.Err()
	}
}

// Shutdown refuses new incidents and waits for running ones. When ctx
// expires first, running tasks are cancelled and awaited.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

func (c *Coordinator) nextID() string {
	return fmt.Sprintf("INC-%s-%04d", c.clock.Now().UTC().Format("20060102150405"), c.seq.Add(1))
}

func (c *Coordinator) lookup(id string) (*incident, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inc, ok := c.incidents[strings.TrimSpace(id)]
	return inc, ok
}

// start spawns the incident task. c.mu is held across the closing check and
// wg.Add so Shutdown never waits on a group that can still grow.
func (c *Coordinator) start(inc *incident) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closing {
		return ErrShuttingDown
	}

	inc.mu.Lock()
	defer inc.mu.Unlock()
	if inc.started {
		return ErrAlreadyRunning
	}
	if inc.snap.State.Terminal() {
		return ErrIncidentClosed
	}
	inc.started = true
	inc.snap.Running = true

	c.wg.Add(1)
	metrics.IncidentStarted()
	go c.run(inc)
	return nil
}

func (c *Coordinator) run(inc *incident) {
	defer c.wg.Done()
	defer close(inc.done)

	ctx := c.ctx
	id := inc.snap.ID
	c.guard(ctx, inc)

	final := inc.snapshot()
	metrics.IncidentFinished(string(final.State))
	c.logger.Info("incident finished",
		slog.String("incident_id", id),
		slog.String("state", string(final.State)),
		slog.Float64("cost_usd", final.CostUSD),
	)
	c.quietly(id, "summary", func() {
		c.notify(ctx, id, summaryMessage(final, c.costs.Total()))
	})
}

// guard drives the incident. A panic outside a phase invocation moves an
// unfinished incident to the error state.
func (c *Coordinator) guard(ctx context.Context, inc *incident) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, inc, utils.NewAppError("engine.incident", "incident fault", fmt.Errorf("%v", r)))
		}
	}()
	c.drive(ctx, inc)
}

// quietly runs fn and logs a panic instead of propagating it.
func (c *Coordinator) quietly(id, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("incident "+what+" panicked", slog.String("incident_id", id), slog.Any("panic", r))
		}
	}()
	fn()
}

func (c *Coordinator) drive(ctx context.Context, inc *incident) {
	alert := inc.snapshot().Alert
	id := inc.snap.ID
	limit := c.cfg.Transport.EmbedLimit
	hints := c.runbooks.Hints(alert)

	investigation, err := c.runPhase(ctx, inc, models.PhaseInvestigate, func() executor.Invocation {
		return executor.Invocation{
			Prompt:    investigationPrompt(alert, hints),
			BudgetUSD: c.cfg.Budgets.Phase,
			Timeout:   c.cfg.Timeouts.Investigation,
		}
	})
	if err != nil {
		c.fault(ctx, inc, err)
		return
	}
	if !investigation.Success {
		c.finish(inc, models.StateError, "investigation failed: "+investigation.Error)
		c.notify(ctx, id, failureMessage("Investigation failed", investigation.Error))
		return
	}
	c.notify(ctx, id, phaseMessage("🔍 Investigation Results", transport.ToneInfo, investigation.Output, c.lastRecord(inc), limit))

	c.advance(inc, models.StateDiagnosing)
	diagnostics, err := c.runPhase(ctx, inc, models.PhaseDiagnose, func() executor.Invocation {
		return executor.Invocation{
			Prompt:       diagnosticsPrompt(alert, investigation.Output, hints),
			AllowedTools: executor.ReadOnlyTools,
			BudgetUSD:    c.cfg.Budgets.Phase,
			Timeout:      c.cfg.Timeouts.Diagnostics,
		}
	})
	if err != nil {
		c.fault(ctx, inc, err)
		return
	}
	if diagnostics.Success {
		c.notify(ctx, id, phaseMessage("🔬 Diagnostic Results", transport.ToneInfo, diagnostics.Output, c.lastRecord(inc), limit))
	} else {
		c.logger.Warn("diagnostics failed", slog.String("incident_id", id), slog.String("error", utils.Truncate(diagnostics.Error, causeLimit)))
		c.notify(ctx, id, failureMessage("Diagnostics failed", diagnostics.Error))
	}

	if !c.autoRemediate.Load() {
		c.advance(inc, models.StateAwaitingManualAction)
		c.notify(ctx, id, manualActionMessage(id))
		c.finish(inc, models.StateNeedsAction, "")
		return
	}

	c.advance(inc, models.StateRemediating)
	findings := diagnostics.Output
	if strings.TrimSpace(findings) == "" {
		findings = investigation.Output
	}

	if c.cfg.Approval.ApproveAuto {
		if d := c.awaitApproval(ctx, inc, findings); !d.Approved() {
			c.finish(inc, models.StateNeedsAction, "remediation not approved ("+string(d.Reason)+")")
			return
		}
	}

	remediation, err := c.runPhase(ctx, inc, models.PhaseRemediate, func() executor.Invocation {
		return executor.Invocation{
			Prompt:       remediationPrompt(alert, findings),
			AllowedTools: executor.ReadOnlyTools,
			BudgetUSD:    c.cfg.Budgets.Phase,
			Timeout:      c.cfg.Timeouts.Remediation,
		}
	})
	if err != nil {
		c.fault(ctx, inc, err)
		return
	}
	if remediation.Success {
		c.notify(ctx, id, phaseMessage("✅ Remediation Complete", transport.ToneSuccess, remediation.Output, c.lastRecord(inc), limit))
		c.finish(inc, models.StateResolved, "")
		return
	}
	c.notify(ctx, id, failureMessage("Remediation failed", remediation.Error))
	c.finish(inc, models.StateNeedsReview, "remediation failed: "+remediation.Error)
}

// runPhase builds and executes one phase invocation. A panic anywhere in the
// phase is returned as an error.
func (c *Coordinator) runPhase(ctx context.Context, inc *incident, phase models.Phase, build func() executor.Invocation) (res executor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = utils.NewAppError("engine."+string(phase), "phase fault", fmt.Errorf("%v", r))
		}
	}()

	started := c.clock.Now()
	res = c.engine.Run(ctx, build())
	rec := models.PhaseRecord{
		Phase:    phase,
		Success:  res.Success,
		CostUSD:  res.CostUSD,
		Output:   utils.Truncate(res.Output, carryOverLimit),
		Error:    res.Error,
		Turns:    res.Turns,
		Started:  started,
		Duration: res.Duration,
	}

	inc.mu.Lock()
	inc.snap.Phases = append(inc.snap.Phases, rec)
	if res.CostUSD > 0 {
		inc.snap.CostUSD += res.CostUSD
	}
	id := inc.snap.ID
	inc.mu.Unlock()

	c.costs.Add(ledger.ScopeIncident, id, res.CostUSD)
	c.logger.Info("phase finished",
		slog.String("incident_id", id),
		slog.String("phase", string(phase)),
		slog.Bool("success", res.Success),
		slog.Float64("cost_usd", res.CostUSD),
	)
	return res, nil
}

func (c *Coordinator) awaitApproval(ctx context.Context, inc *incident, findings string) approval.Decision {
	id := inc.snap.ID
	if c.approvals == nil {
		c.logger.Warn("approval required but no gate configured", slog.String("incident_id", id))
		return approval.Decision{Outcome: approval.OutcomeDenied}
	}
	pending := c.approvals.Open(approval.Spec{
		Description:    fmt.Sprintf("Automatic remediation of %s: %s", id, inc.snap.Alert.Title),
		ProposedAction: utils.Truncate(findings, carryOverLimit),
		RequestedBy:    "oracle",
		Timeout:        c.cfg.Approval.Timeout,
	})
	req := pending.Snapshot()
	c.notify(ctx, id, approvalMessage(req.ID, req.Description, findings, req.Deadline, c.cfg.Transport.EmbedLimit))

	d := pending.Wait(ctx)
	switch {
	case d.Approved():
		c.notify(ctx, id, transport.Text(fmt.Sprintf("✅ Approved by %s. Remediating...", d.DecidedBy)))
	case d.Reason == approval.ReasonExpired:
		c.notify(ctx, id, transport.Text("⏰ Approval timed out. Remediation cancelled."))
	default:
		c.notify(ctx, id, transport.Text("🚫 Remediation denied."))
	}
	return d
}

func (c *Coordinator) lastRecord(inc *incident) models.PhaseRecord {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	if n := len(inc.snap.Phases); n > 0 {
		return inc.snap.Phases[n-1]
	}
	return models.PhaseRecord{}
}

func (c *Coordinator) advance(inc *incident, next models.PhaseState) {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	if !inc.snap.State.CanAdvanceTo(next) {
		c.logger.Error("illegal incident transition",
			slog.String("incident_id", inc.snap.ID),
			slog.String("from", string(inc.snap.State)),
			slog.String("to", string(next)),
		)
		return
	}
	inc.snap.State = next
}

func (c *Coordinator) finish(inc *incident, state models.PhaseState, reason string) {
	c.advance(inc, state)
	inc.mu.Lock()
	inc.snap.FinishedAt = c.clock.Now().UTC()
	inc.snap.Running = false
	if reason != "" {
		inc.snap.Error = reason
	}
	inc.mu.Unlock()
}

func (c *Coordinator) fault(ctx context.Context, inc *incident, err error) {
	id := inc.snap.ID
	c.logger.Error("incident fault", slog.String("incident_id", id), slog.Any("error", err))

	inc.mu.Lock()
	terminal := inc.snap.State.Terminal()
	inc.mu.Unlock()
	if terminal {
		return
	}
	c.finish(inc, models.StateError, err.Error())
	c.quietly(id, "fault notification", func() {
		c.notify(ctx, id, failureMessage("Investigation error", err.Error()))
	})
}

func (c *Coordinator) notify(ctx context.Context, thread string, msgs ...transport.OutgoingMessage) {
	if err := c.notifier.Notify(ctx, thread, msgs...); err != nil {
		c.logger.Warn("notification failed", slog.String("thread", thread), slog.Any("error", err))
	}
}

// Ledger exposes the cost ledger shared with other components.
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.costs
}
