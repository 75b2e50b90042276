package models

import "time"

// PhaseState is the lifecycle state of an incident.
type PhaseState string

const (
	StateInvestigating        PhaseState = "investigating"
	StateDiagnosing           PhaseState = "diagnosing"
	StateRemediating          PhaseState = "remediating"
	StateAwaitingManualAction PhaseState = "awaiting_manual_action"
	StateResolved             PhaseState = "resolved"
	StateNeedsReview          PhaseState = "needs_review"
	StateNeedsAction          PhaseState = "needs_action"
	StateError                PhaseState = "error"
)

// Terminal reports whether no further transitions may occur.
func (s PhaseState) Terminal() bool {
	switch s {
	case StateResolved, StateNeedsReview, StateNeedsAction, StateError:
		return true
	}
	return false
}

func (s PhaseState) rank() int {
	switch s {
	case StateInvestigating:
		return 0
	case StateDiagnosing:
		return 1
	case StateRemediating, StateAwaitingManualAction:
		return 2
	default:
		return 3
	}
}

// CanAdvanceTo reports whether next is a legal forward transition from s.
func (s PhaseState) CanAdvanceTo(next PhaseState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateError {
		return true
	}
	return next.rank() > s.rank()
}

// Phase names one step of the investigation.
type Phase string

const (
	PhaseInvestigate Phase = "investigate"
	PhaseDiagnose    Phase = "diagnose"
	PhaseRemediate   Phase = "remediate"
)

// PhaseRecord captures the outcome of one executed phase.
type PhaseRecord struct {
	Phase    Phase         `json:"phase"`
	Success  bool          `json:"success"`
	CostUSD  float64       `json:"cost_usd"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Turns    int           `json:"turns,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Incident is a read-only snapshot of an incident's state.
type Incident struct {
	ID         string        `json:"id"`
	Alert      AlertEvent    `json:"alert"`
	State      PhaseState    `json:"state"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	CostUSD    float64       `json:"cost_usd"`
	Phases     []PhaseRecord `json:"phases,omitempty"`
	Running    bool          `json:"running"`
	Error      string        `json:"error,omitempty"`
}

// Phase returns the record for p, if that phase ran.
func (i Incident) Phase(p Phase) (PhaseRecord, bool) {
	for _, rec := range i.Phases {
		if rec.Phase == p {
			return rec, true
		}
	}
	return PhaseRecord{}, false
}
