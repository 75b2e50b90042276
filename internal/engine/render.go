package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

const causeLimit = 200

func openedMessage(inc models.Incident, autoRespond bool) []transport.OutgoingMessage {
	desc := fmt.Sprintf("**Incident ID:** `%s`\n\nAnalyzing this alert and searching the codebase for relevant information.", inc.ID)
	msgs := []transport.OutgoingMessage{{Summary: &transport.Summary{
		Title:       "🤖 Oracle Investigating",
		Description: desc,
		Tone:        transport.ToneProgress,
		Fields: []transport.Field{
			{Name: "Alert", Value: inc.Alert.Title},
			{Name: "Level", Value: string(inc.Alert.Level), Inline: true},
		},
	}}}
	if !autoRespond {
		msgs[0].Summary.Title = "⏸️ Incident Opened"
		msgs[0].Summary.Description = fmt.Sprintf("**Incident ID:** `%s`", inc.ID)
		msgs = append(msgs, transport.Text("⏸️ Auto-respond is disabled. Use `investigate` to start the investigation."))
	}
	return msgs
}

func phaseMessage(title string, tone transport.Tone, output string, rec models.PhaseRecord, limit int) transport.OutgoingMessage {
	return transport.OutgoingMessage{Summary: &transport.Summary{
		Title:       title,
		Description: transport.Excerpt(output, limit),
		Tone:        tone,
		Footer:      fmt.Sprintf("Cost: $%.4f | Turns: %d", rec.CostUSD, rec.Turns),
	}}
}

func failureMessage(what, cause string) transport.OutgoingMessage {
	return transport.Text(utils.UserFacing(what, cause, causeLimit))
}

func manualActionMessage(id string) transport.OutgoingMessage {
	return transport.OutgoingMessage{Summary: &transport.Summary{
		Title:       "🛠️ Manual Action Required",
		Description: fmt.Sprintf("Auto-remediation is disabled. Review the findings above and run `remediate` for `%s` if a fix is needed.", id),
		Tone:        transport.ToneWarning,
	}}
}

func approvalMessage(id, description, proposed string, deadline time.Time, limit int) transport.OutgoingMessage {
	return transport.OutgoingMessage{Summary: &transport.Summary{
		Title:       "⚠️ Remediation Approval Required",
		Description: fmt.Sprintf("**Requested Action:**\n%s\n\n**Oracle's Analysis:**\n%s", description, transport.Excerpt(proposed, limit)),
		Tone:        transport.ToneWarning,
		Fields: []transport.Field{
			{Name: "Request ID", Value: id},
			{Name: "Expires", Value: deadline.UTC().Format(time.RFC3339), Inline: true},
		},
		Footer: "Approve or deny with the request ID",
	}}
}

func summaryMessage(inc models.Incident, processTotal float64) transport.OutgoingMessage {
	tone := transport.ToneInfo
	switch inc.State {
	case models.StateResolved:
		tone = transport.ToneSuccess
	case models.StateNeedsReview, models.StateNeedsAction:
		tone = transport.ToneWarning
	case models.StateError:
		tone = transport.ToneCritical
	}
	finished := inc.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	fields := []transport.Field{
		{Name: "Status", Value: stateLabel(inc.State), Inline: true},
		{Name: "Duration", Value: utils.Elapsed(finished.Sub(inc.StartedAt)), Inline: true},
		{Name: "Cost", Value: fmt.Sprintf("$%.4f", inc.CostUSD), Inline: true},
		{Name: "Total Spend", Value: fmt.Sprintf("$%.4f", processTotal), Inline: true},
	}
	if inc.Error != "" {
		fields = append(fields, transport.Field{Name: "Error", Value: utils.Truncate(inc.Error, causeLimit)})
	}
	return transport.OutgoingMessage{Summary: &transport.Summary{
		Title:  "📋 Investigation Summary",
		Tone:   tone,
		Fields: fields,
	}}
}

func stateLabel(s models.PhaseState) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}
