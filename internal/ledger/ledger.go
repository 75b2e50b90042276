// Package ledger accumulates engine spend at session, incident and process scope.
package ledger

import (
	"math"
	"sync"
)

// Scope partitions recorded cost.
type Scope string

const (
	ScopeSession  Scope = "session"
	ScopeIncident Scope = "incident"
	ScopeTask     Scope = "task"
)

// Observer is notified of every accepted charge.
type Observer func(scope Scope, amount float64)

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	total    float64
	byScope  map[Scope]map[string]float64
	observer Observer
}

// New returns an empty ledger. observer may be nil.
func New(observer Observer) *Ledger {
	return &Ledger{
		byScope:  make(map[Scope]map[string]float64),
		observer: observer,
	}
}

// Add charges amount to key within scope and to the process total.
// Negative and non-finite amounts are ignored.
func (l *Ledger) Add(scope Scope, key string, amount float64) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return
	}
	l.mu.Lock()
	keys, ok := l.byScope[scope]
	if !ok {
		keys = make(map[string]float64)
		l.byScope[scope] = keys
	}
	keys[key] += amount
	l.total += amount
	l.mu.Unlock()

	if l.observer != nil {
		l.observer(scope, amount)
	}
}

// Total returns the process-wide spend.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// ScopeTotal returns the spend recorded for key within scope.
func (l *Ledger) ScopeTotal(scope Scope, key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byScope[scope][key]
}

// Snapshot summarises spend per scope.
type Snapshot struct {
	Total   float64
	ByScope map[Scope]float64
}

// Snapshot returns aggregate spend per scope.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := Snapshot{Total: l.total, ByScope: make(map[Scope]float64, len(l.byScope))}
	for scope, keys := range l.byScope {
		for _, v := range keys {
			snap.ByScope[scope] += v
		}
	}
	return snap
}
