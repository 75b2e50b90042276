package models

import "testing"

func TestPhaseStateForwardOnly(t *testing.T) {
	cases := []struct {
		from, to PhaseState
		ok       bool
	}{
		{StateInvestigating, StateDiagnosing, true},
		{StateInvestigating, StateError, true},
		{StateDiagnosing, StateRemediating, true},
		{StateDiagnosing, StateAwaitingManualAction, true},
		{StateRemediating, StateResolved, true},
		{StateRemediating, StateNeedsReview, true},
		{StateAwaitingManualAction, StateNeedsAction, true},
		{StateDiagnosing, StateInvestigating, false},
		{StateRemediating, StateAwaitingManualAction, false},
		{StateError, StateResolved, false},
		{StateResolved, StateError, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestParseLevelDefaultsToWarning(t *testing.T) {
	if ParseLevel("CRITICAL") != LevelCritical {
		t.Fatalf("expected critical")
	}
	if ParseLevel("bogus") != LevelWarning {
		t.Fatalf("expected warning fallback")
	}
}
