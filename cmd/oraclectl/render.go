package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

func printResponse(w io.Writer, resp any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	switch r := resp.(type) {
	case *api.IncidentResponse:
		printIncident(w, r.Incident)
	case *api.ListIncidentsResponse:
		printIncidents(w, r.Incidents)
	case *api.ReplyResponse:
		printMessages(w, r.Messages)
		if r.SessionID != "" {
			fmt.Fprintf(w, "\nsession %s (resumed=%v)\n", models.Session{ID: r.SessionID}.ShortID(), r.Resumed)
		}
	case *api.RemediateResponse:
		printMessages(w, r.Messages)
		fmt.Fprintf(w, "\nrequest %s: %s (%s) cost $%.4f\n", r.Request.ID, r.Decision.Outcome, r.Decision.Reason, r.CostUSD)
	case *api.DecideResponse:
		if !r.Accepted {
			fmt.Fprintf(w, "request %s was already %s\n", r.Request.ID, r.Request.Decision.Outcome)
			return nil
		}
		fmt.Fprintf(w, "request %s %s\n", r.Request.ID, r.Request.Decision.Outcome)
	case *api.PendingApprovalsResponse:
		printApprovals(w, r.Requests)
	case *api.SessionResponse:
		if !r.Found {
			fmt.Fprintln(w, "no session")
			return nil
		}
		s := r.Session
		fmt.Fprintf(w, "session %s thread=%s messages=%d cost=$%.4f live=%v\n", s.ShortID(), s.ThreadID, s.MessageCount, s.CostUSD, s.Live)
	case *api.StatusResponse:
		printStatus(w, r)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return nil
}

func printIncident(w io.Writer, inc models.Incident) {
	fmt.Fprintf(w, "%s  %s  [%s]\n", inc.ID, inc.Alert.Title, inc.Alert.Level)
	fmt.Fprintf(w, "state: %s  running: %v  cost: $%.4f\n", inc.State, inc.Running, inc.CostUSD)
	if inc.Error != "" {
		fmt.Fprintf(w, "error: %s\n", inc.Error)
	}
	for _, p := range inc.Phases {
		mark := "ok"
		if !p.Success {
			mark = "failed"
		}
		fmt.Fprintf(w, "- %s %s $%.4f %s\n", p.Phase, mark, p.CostUSD, p.Duration.Round(time.Second))
	}
}

func printIncidents(w io.Writer, incidents []models.Incident) {
	if len(incidents) == 0 {
		fmt.Fprintln(w, "no incidents")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tLEVEL\tCOST\tTITLE")
	for _, inc := range incidents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t$%.4f\t%s\n", inc.ID, inc.State, inc.Alert.Level, inc.CostUSD, inc.Alert.Title)
	}
	_ = tw.Flush()
}

func printApprovals(w io.Writer, reqs []approval.Request) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "no pending approvals")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREQUESTED BY\tDEADLINE\tDESCRIPTION")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.RequestedBy, r.Deadline.Format(time.RFC3339), r.Description)
	}
	_ = tw.Flush()
}

func printStatus(w io.Writer, st *api.StatusResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"environment", st.Environment},
		{"edit tools", fmt.Sprint(st.EditTools)},
		{"auto-respond", fmt.Sprint(st.AutoRespond)},
		{"auto-remediate", fmt.Sprint(st.AutoRemediate)},
		{"incidents", fmt.Sprintf("%d active / %d total", st.ActiveIncidents, st.TotalIncidents)},
		{"sessions", fmt.Sprint(st.ActiveSessions)},
		{"pending approvals", fmt.Sprint(st.PendingApprovals)},
		{"runbook rules", fmt.Sprint(st.Runbooks)},
		{"total cost", fmt.Sprintf("$%.4f", st.TotalCostUSD)},
		{"uptime", st.Uptime},
		{"engine p95", st.EngineP95},
		{"codebase", st.CodebasePath},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	_ = tw.Flush()
}

func printMessages(w io.Writer, msgs []transport.OutgoingMessage) {
	for _, m := range msgs {
		if m.Summary == nil {
			fmt.Fprintln(w, m.Text)
			continue
		}
		fmt.Fprintf(w, "== %s ==\n", m.Summary.Title)
		if m.Summary.Description != "" {
			fmt.Fprintln(w, m.Summary.Description)
		}
		for _, f := range m.Summary.Fields {
			fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
		}
		if m.Summary.Footer != "" {
			fmt.Fprintln(w, strings.TrimSpace(m.Summary.Footer))
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
