// Package commands defines the closed set of operator commands and routes
// them to handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/transport"
)

// Kind identifies a recognised command.
type Kind int

const (
	Investigate Kind = iota + 1
	AskOracle
	OracleStatus
	ToggleAuto
	RunTask
	Incidents
	Remediate
	NewSession
	SessionInfo
)

var kindNames = map[Kind]string{
	Investigate:  "investigate",
	AskOracle:    "ask-oracle",
	OracleStatus: "oracle-status",
	ToggleAuto:   "toggle-auto",
	RunTask:      "run-task",
	Incidents:    "incidents",
	Remediate:    "remediate",
	NewSession:   "new-session",
	SessionInfo:  "session-info",
}

// All returns every recognised kind in declaration order.
func All() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AdminOnly reports whether the command requires administrator rights.
func (k Kind) AdminOnly() bool {
	switch k {
	case ToggleAuto, RunTask, Remediate:
		return true
	}
	return false
}

// UnknownCommandError is returned for names outside the recognised set.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// ErrForbidden is returned when a non-administrator invokes an admin command.
var ErrForbidden = errors.New("command requires administrator permissions")

// Parse resolves a command name, tolerating a leading slash and any case.
func Parse(name string) (Kind, error) {
	cleaned := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	for k, n := range kindNames {
		if n == cleaned {
			return k, nil
		}
	}
	return 0, &UnknownCommandError{Name: name}
}

// Feature is a runtime toggle.
type Feature string

const (
	FeatureRespond   Feature = "respond"
	FeatureRemediate Feature = "remediate"
)

// ErrUnknownFeature is returned for toggles outside the recognised set.
var ErrUnknownFeature = errors.New("unknown feature")

// ParseFeature resolves a toggle name.
func ParseFeature(name string) (Feature, error) {
	switch Feature(strings.ToLower(strings.TrimSpace(name))) {
	case FeatureRespond:
		return FeatureRespond, nil
	case FeatureRemediate:
		return FeatureRemediate, nil
	}
	return "", fmt.Errorf("%w %q: use respond or remediate", ErrUnknownFeature, name)
}

// Invocation is one command call from an operator.
type Invocation struct {
	Kind     Kind
	Args     map[string]string
	User     string
	ThreadID string
	Admin    bool
}

// Arg returns a trimmed argument value.
func (i Invocation) Arg(name string) string {
	return strings.TrimSpace(i.Args[name])
}

// Reply is what a handler sends back to the operator.
type Reply struct {
	Messages []transport.OutgoingMessage
}

// Handler executes one command kind.
type Handler func(ctx context.Context, inv Invocation) (Reply, error)

// Router maps every kind to its handler.
type Router struct {
	handlers map[Kind]Handler
}

// NewRouter fails unless every recognised kind has a handler.
func NewRouter(handlers map[Kind]Handler) (*Router, error) {
	var missing []string
	for _, k := range All() {
		if handlers[k] == nil {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no handler for: %s", strings.Join(missing, ", "))
	}
	copied := make(map[Kind]Handler, len(handlers))
	for k, h := range handlers {
		copied[k] = h
	}
	return &Router{handlers: copied}, nil
}

// Dispatch parses name and runs the matching handler.
func (r *Router) Dispatch(ctx context.Context, name string, inv Invocation) (Reply, error) {
	kind, err := Parse(name)
	if err != nil {
		return Reply{}, err
	}
	if kind.AdminOnly() && !inv.Admin {
		return Reply{}, ErrForbidden
	}
	inv.Kind = kind
	return r.handlers[kind](ctx, inv)
}
