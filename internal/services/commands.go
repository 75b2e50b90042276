package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/commands"
	"github.com/miradorstack/mirador-oracle/internal/engine"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

const defaultIncidentListLimit = 10

func (s *OracleService) commandHandlers() map[commands.Kind]commands.Handler {
	return map[commands.Kind]commands.Handler{
		commands.Investigate:  s.cmdInvestigate,
		commands.AskOracle:    s.cmdAsk,
		commands.OracleStatus: s.cmdStatus,
		commands.ToggleAuto:   s.cmdToggle,
		commands.RunTask:      s.cmdRunTask,
		commands.Incidents:    s.cmdIncidents,
		commands.Remediate:    s.cmdRemediate,
		commands.NewSession:   s.cmdNewSession,
		commands.SessionInfo:  s.cmdSessionInfo,
	}
}

func textReply(format string, args ...any) commands.Reply {
	return commands.Reply{Messages: []transport.OutgoingMessage{transport.Text(fmt.Sprintf(format, args...))}}
}

func (s *OracleService) cmdInvestigate(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	id := inv.Arg("incident")
	if id == "" {
		return textReply("❌ Usage: investigate incident=<id>"), nil
	}
	if err := s.coordinator.Investigate(id); err != nil {
		return commands.Reply{}, err
	}
	return textReply("🔍 Investigation started for `%s`.", id), nil
}

func (s *OracleService) cmdAsk(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	reply, err := s.assistant.Ask(ctx, inv.Arg("question"))
	if err != nil {
		return commands.Reply{}, err
	}
	return commands.Reply{Messages: reply.Messages}, nil
}

func (s *OracleService) cmdStatus(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	st := s.status()
	onOff := func(v bool) string {
		if v {
			return "✅ ON"
		}
		return "❌ OFF"
	}
	editTools := "🔒 Disabled"
	if st.EditTools {
		editTools = "✏️ Enabled"
	}
	return commands.Reply{Messages: []transport.OutgoingMessage{{Summary: &transport.Summary{
		Title: "🤖 Oracle Status",
		Tone:  transport.ToneInfo,
		Fields: []transport.Field{
			{Name: "Environment", Value: strings.ToUpper(st.Environment), Inline: true},
			{Name: "Edit Tools", Value: editTools, Inline: true},
			{Name: "Auto-Respond", Value: onOff(st.AutoRespond), Inline: true},
			{Name: "Auto-Remediate", Value: onOff(st.AutoRemediate), Inline: true},
			{Name: "Active Incidents", Value: strconv.Itoa(st.ActiveIncidents), Inline: true},
			{Name: "Pending Approvals", Value: strconv.Itoa(st.PendingApprovals), Inline: true},
			{Name: "Total Cost", Value: fmt.Sprintf("$%.4f", st.TotalCostUSD), Inline: true},
			{Name: "Uptime", Value: st.Uptime, Inline: true},
			{Name: "Engine p95", Value: st.EngineP95, Inline: true},
			{Name: "Codebase", Value: "`" + st.CodebasePath + "`"},
		},
	}}}}, nil
}

func (s *OracleService) cmdToggle(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	var enabled *bool
	if raw := inv.Arg("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return textReply("❌ enabled must be true or false"), nil
		}
		enabled = &v
	}
	value, err := s.toggle(inv.Arg("feature"), enabled, inv.User)
	if err != nil {
		return commands.Reply{}, err
	}
	state := "disabled"
	if value {
		state = "enabled"
	}
	return textReply("🔧 Auto-%s %s.", strings.ToLower(inv.Arg("feature")), state), nil
}

func (s *OracleService) cmdRunTask(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	reply, err := s.assistant.RunTask(ctx, engine.Task{Text: inv.Arg("task"), User: inv.User})
	if err != nil {
		return commands.Reply{}, err
	}
	return commands.Reply{Messages: reply.Messages}, nil
}

func (s *OracleService) cmdIncidents(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	limit := defaultIncidentListLimit
	if raw := inv.Arg("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	incidents := s.coordinator.List(limit)
	if len(incidents) == 0 {
		return textReply("No incidents recorded."), nil
	}
	fields := make([]transport.Field, 0, len(incidents))
	for _, inc := range incidents {
		fields = append(fields, transport.Field{
			Name:  inc.ID,
			Value: incidentLine(inc),
		})
	}
	return commands.Reply{Messages: []transport.OutgoingMessage{{Summary: &transport.Summary{
		Title:  "📋 Recent Incidents",
		Tone:   transport.ToneInfo,
		Fields: fields,
	}}}}, nil
}

func incidentLine(inc models.Incident) string {
	return fmt.Sprintf("%s | %s | %s | $%.4f",
		utils.Truncate(inc.Alert.Title, 60),
		inc.Alert.Level,
		strings.ToUpper(strings.ReplaceAll(string(inc.State), "_", " ")),
		inc.CostUSD,
	)
}

func (s *OracleService) cmdRemediate(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	skip, _ := strconv.ParseBool(inv.Arg("skip_approval"))
	out, err := s.remediator.Remediate(ctx, engine.RemediationRequest{
		Action:       inv.Arg("action"),
		RequestedBy:  inv.User,
		SkipApproval: skip,
		IncidentID:   inv.Arg("incident"),
	})
	if err != nil {
		return commands.Reply{}, err
	}
	return commands.Reply{Messages: out.Messages}, nil
}

func (s *OracleService) cmdNewSession(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	if inv.ThreadID == "" {
		return textReply("❌ new-session must be run inside a thread"), nil
	}
	token := s.assistant.ResetSession(inv.ThreadID)
	info := models.Session{ID: token}
	return textReply("🔄 New session started (`%s`). Previous context has been cleared.", info.ShortID()), nil
}

func (s *OracleService) cmdSessionInfo(ctx context.Context, inv commands.Invocation) (commands.Reply, error) {
	info, ok := s.assistant.Sessions().Describe(inv.ThreadID)
	if !ok {
		return textReply("No active session in this thread."), nil
	}
	state := "🟢 Active"
	if !info.Live {
		state = "⚪ Expired"
	}
	return commands.Reply{Messages: []transport.OutgoingMessage{{Summary: &transport.Summary{
		Title: "💬 Session Info",
		Tone:  transport.ToneInfo,
		Fields: []transport.Field{
			{Name: "Session", Value: "`" + info.ShortID() + "`", Inline: true},
			{Name: "Status", Value: state, Inline: true},
			{Name: "Messages", Value: strconv.Itoa(info.MessageCount), Inline: true},
			{Name: "Cost", Value: fmt.Sprintf("$%.4f", info.CostUSD), Inline: true},
			{Name: "Idle Timeout", Value: s.assistant.Sessions().Timeout().String(), Inline: true},
		},
	}}}}, nil
}
