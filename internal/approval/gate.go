// Package approval suspends destructive actions until a human approves or
// denies them, or until the request's deadline passes.
package approval

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid/v2"
)

// ErrUnknownRequest is returned when deciding a request that was never opened.
var ErrUnknownRequest = errors.New("unknown approval request")

// Outcome is the resolution of a request.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeDenied   Outcome = "denied"
)

// Reason records how a request was resolved.
type Reason string

const (
	ReasonExplicit  Reason = "explicit"
	ReasonExpired   Reason = "expired"
	ReasonBypass    Reason = "bypass"
	ReasonCancelled Reason = "cancelled"
)

// Decision is the final, immutable answer to a request.
type Decision struct {
	Outcome   Outcome   `json:"outcome"`
	DecidedBy string    `json:"decided_by,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at,omitempty"`
}

// Approved reports whether the action may proceed.
func (d Decision) Approved() bool {
	return d.Outcome == OutcomeApproved
}

// Spec describes the action awaiting approval.
type Spec struct {
	Description    string
	ProposedAction string
	RequestedBy    string
	Timeout        time.Duration
	// PreApprovedBy skips waiting; the request is approved on behalf of this identity.
	PreApprovedBy string
}

// Request is a snapshot of an approval request.
type Request struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	ProposedAction string    `json:"proposed_action"`
	RequestedBy    string    `json:"requested_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Deadline       time.Time `json:"deadline"`
	Decision       Decision  `json:"decision"`
}

type request struct {
	Request
	done chan struct{}
}

// Gate tracks every request opened during the process lifetime.
type Gate struct {
	mu         sync.Mutex
	clock      clock.Clock
	entropy    *ulid.MonotonicEntropy
	requests   map[string]*request
	onDecision func(Request)
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// OnDecision registers a hook invoked once per resolved request.
func OnDecision(fn func(Request)) Option {
	return func(g *Gate) { g.onDecision = fn }
}

// NewGate returns an empty gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		clock:    clock.New(),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		requests: make(map[string]*request),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Pending is a handle on an opened request.
type Pending struct {
	gate  *Gate
	req   *request
	timer *clock.Timer
}

// ID identifies the request for Decide.
func (p *Pending) ID() string {
	return p.req.ID
}

// Snapshot returns the request's current state.
func (p *Pending) Snapshot() Request {
	p.gate.mu.Lock()
	defer p.gate.mu.Unlock()
	return p.req.Request
}

// Open registers a request and starts its deadline.
func (g *Gate) Open(spec Spec) *Pending {
	g.mu.Lock()
	now := g.clock.Now()
	r := &request{
		Request: Request{
			ID:             ulid.MustNew(ulid.Timestamp(now), g.entropy).String(),
			Description:    spec.Description,
			ProposedAction: spec.ProposedAction,
			RequestedBy:    spec.RequestedBy,
			CreatedAt:      now,
			Deadline:       now.Add(spec.Timeout),
			Decision:       Decision{Outcome: OutcomePending},
		},
		done: make(chan struct{}),
	}
	g.requests[r.ID] = r
	g.mu.Unlock()

	p := &Pending{gate: g, req: r}
	if spec.PreApprovedBy != "" {
		g.resolve(r, Decision{Outcome: OutcomeApproved, DecidedBy: spec.PreApprovedBy, Reason: ReasonBypass})
		return p
	}
	p.timer = g.clock.AfterFunc(spec.Timeout, func() {
		g.resolve(r, Decision{Outcome: OutcomeDenied, Reason: ReasonExpired})
	})
	return p
}

// Wait blocks until the request is resolved. Cancelling ctx denies it.
func (p *Pending) Wait(ctx context.Context) Decision {
	select {
	case <-p.req.done:
	case <-ctx.Done():
		p.gate.resolve(p.req, Decision{Outcome: OutcomeDenied, Reason: ReasonCancelled})
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.Snapshot().Decision
}

// Request opens a request and waits for its decision.
func (g *Gate) Request(ctx context.Context, spec Spec) (Request, Decision) {
	p := g.Open(spec)
	d := p.Wait(ctx)
	return p.Snapshot(), d
}

// Decide records an explicit decision. Only the first decision counts; later
// attempts report accepted=false and change nothing.
func (g *Gate) Decide(id string, approve bool, by string) (bool, error) {
	g.mu.Lock()
	r, ok := g.requests[id]
	g.mu.Unlock()
	if !ok {
		return false, ErrUnknownRequest
	}
	outcome := OutcomeDenied
	if approve {
		outcome = OutcomeApproved
	}
	return g.resolve(r, Decision{Outcome: outcome, DecidedBy: by, Reason: ReasonExplicit}), nil
}

// Get returns a snapshot of the request with id.
func (g *Gate) Get(id string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.requests[id]
	if !ok {
		return Request{}, false
	}
	return r.Request, true
}

// Pending lists unresolved requests, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, 0)
	for _, r := range g.requests {
		if r.Decision.Outcome == OutcomePending {
			out = append(out, r.Request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Gate) resolve(r *request, d Decision) bool {
	g.mu.Lock()
	if r.Decision.Outcome != OutcomePending {
		g.mu.Unlock()
		return false
	}
	d.DecidedAt = g.clock.Now()
	r.Decision = d
	snapshot := r.Request
	close(r.done)
	g.mu.Unlock()

	if g.onDecision != nil {
		g.onDecision(snapshot)
	}
	return true
}
