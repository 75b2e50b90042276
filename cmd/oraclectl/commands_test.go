package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

func TestParseArgs(t *testing.T) {
	parsed, err := parseArgs([]string{"incident=INC-1", "action=restart harbor=core"})
	if err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if parsed["incident"] != "INC-1" || parsed["action"] != "restart harbor=core" {
		t.Fatalf("unexpected args %v", parsed)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseArgs([]string{bad}); err == nil {
			t.Fatalf("expected an error for %q", bad)
		}
	}
}

func TestParseSwitch(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "OFF": false, "true": true, "0": false} {
		got, err := parseSwitch(in)
		if err != nil || got != want {
			t.Fatalf("parseSwitch(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseSwitch("maybe"); err == nil {
		t.Fatalf("expected an error for maybe")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"alert", "investigate", "incidents", "chat", "remediate", "approve", "deny", "session", "toggle", "command"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("find %s: %v", name, err)
		}
	}
}

func TestPrintIncidents(t *testing.T) {
	var buf bytes.Buffer
	err := printResponse(&buf, &api.ListIncidentsResponse{Incidents: []models.Incident{{
		ID:      "INC-20250101000000-0001",
		Alert:   models.AlertEvent{Title: "Disk full", Level: models.LevelCritical},
		State:   models.StateNeedsAction,
		CostUSD: 0.5,
	}}}, false)
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "ID") || !strings.Contains(out, "needs_action") || !strings.Contains(out, "$0.5000") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestPrintReplyJSON(t *testing.T) {
	var buf bytes.Buffer
	err := printResponse(&buf, &api.ReplyResponse{Messages: []transport.OutgoingMessage{transport.Text("hi")}, Success: true}, true)
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), `"text": "hi"`) {
		t.Fatalf("unexpected json %s", buf.String())
	}
}
