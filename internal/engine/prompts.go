package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/utils"
)

// Phase 2 and 3 prompts carry at most this much of the previous phase's output.
const carryOverLimit = 3000

func investigationPrompt(alert models.AlertEvent, hints []string) string {
	var b strings.Builder
	b.WriteString("You are investigating an infrastructure alert.\n\n")
	writeAlert(&b, alert, true)
	writeHints(&b, hints)
	b.WriteString(`
## Your Tasks
1. Search the codebase for documentation, playbooks and configuration related to this alert
2. Analyze the likely cause from the alert details and codebase context
3. Identify the affected service(s) and their configuration
4. Suggest diagnostic commands that would gather more information
5. Propose remediation steps if applicable

## Output Format
- Summary of findings
- Likely root cause(s)
- Relevant files found in the codebase
- Recommended diagnostic commands
- Proposed remediation steps, with a risk assessment for each
`)
	return b.String()
}

func diagnosticsPrompt(alert models.AlertEvent, analysis string, hints []string) string {
	var b strings.Builder
	b.WriteString("Based on the following alert and analysis, run diagnostic commands to gather more information.\n\n")
	writeAlert(&b, alert, false)
	b.WriteString("\n## Previous Analysis\n")
	b.WriteString(utils.Truncate(analysis, carryOverLimit))
	b.WriteString("\n")
	writeHints(&b, hints)
	b.WriteString(`
## Your Tasks
1. Run appropriate read-only diagnostic commands (container status, logs, service status, health checks)
2. Analyze the output of each command
3. Correlate the findings with the alert
4. Provide an updated assessment

## Safety Notes
- Only run read-only commands
- Do not restart services or change anything yet
`)
	return b.String()
}

func remediationPrompt(alert models.AlertEvent, findings string) string {
	var b strings.Builder
	b.WriteString("Based on the diagnostics, attempt to remediate the issue.\n\n")
	fmt.Fprintf(&b, "## Alert\n- **Title:** %s\n- **Level:** %s\n", alert.Title, alert.Level)
	b.WriteString("\n## Diagnostic Findings\n")
	b.WriteString(utils.Truncate(findings, carryOverLimit))
	b.WriteString(`

## Your Tasks
1. Determine the most appropriate remediation action
2. Execute it
3. Verify the fix
4. Document what was done

## Safety Rules
- Prefer restarting or starting containers over any other change
- Never delete data or configuration
- Never modify files in the codebase
- Verify service health after every change
- If unsure, stop and recommend manual intervention
`)
	return b.String()
}

func conversationPrompt(user, message string, allowEdits bool) string {
	access := "You have READ-ONLY access to the codebase. You cannot modify files."
	capability := "Suggest changes (but cannot modify files directly)"
	if allowEdits {
		access = "You have WRITE and EDIT access to the codebase in this development environment."
		capability = "Create, edit and modify files in the codebase"
	}

	var b strings.Builder
	b.WriteString("A user is asking you a question in chat.\n")
	b.WriteString(access)
	fmt.Fprintf(&b, "\n\n## User Message\n**User:** %s\n**Message:** %s\n", user, message)
	b.WriteString("\n## Your Capabilities\n")
	b.WriteString("- Search and read the infrastructure codebase\n")
	b.WriteString("- Run diagnostic commands\n")
	b.WriteString("- " + capability + "\n")
	b.WriteString(`
## Accuracy Requirements
1. For status questions, run live diagnostic commands first
2. For configuration questions, search the codebase and check the infrastructure map
3. Never guess service locations
4. If unsure, run a command to check

Respond directly and accurately to the user's question.
`)
	return b.String()
}

func askPrompt(question string) string {
	return fmt.Sprintf("Answer this question about the infrastructure concisely:\n\n%s", question)
}

func taskPrompt(task string, allowEdits bool) string {
	mode := "Do not modify files in the codebase."
	if allowEdits {
		mode = "You may modify files in the codebase if the task requires it."
	}
	return fmt.Sprintf("Execute the following task and report the outcome briefly.\n%s\n\n## Task\n%s\n", mode, task)
}

func remediationAnalysisPrompt(action string, incident *models.Incident) string {
	var b strings.Builder
	b.WriteString("Analyze this remediation request and propose a solution:\n\n")
	fmt.Fprintf(&b, "**Request:** %s\n", action)
	if incident != nil {
		fmt.Fprintf(&b, "\n## Related Incident %s\n", incident.ID)
		writeAlert(&b, incident.Alert, false)
		if rec, ok := latestFindings(*incident); ok {
			b.WriteString("\n## Latest Findings\n")
			b.WriteString(utils.Truncate(rec, carryOverLimit))
			b.WriteString("\n")
		}
	}
	b.WriteString(`
## Instructions
1. Check the current state on the affected host
2. Propose a specific fix with the exact commands
3. Keep it brief: state what you found and what to do
`)
	return b.String()
}

func remediationExecutionPrompt(action, analysis string) string {
	var b strings.Builder
	b.WriteString("Execute this approved remediation now:\n\n")
	fmt.Fprintf(&b, "**Request:** %s\n", action)
	b.WriteString("\n## Approved Plan\n")
	b.WriteString(utils.Truncate(analysis, carryOverLimit))
	b.WriteString("\n\nExecute the fix and report the result briefly.\n")
	return b.String()
}

func writeAlert(b *strings.Builder, alert models.AlertEvent, full bool) {
	b.WriteString("## Alert Details\n")
	fmt.Fprintf(b, "- **Title:** %s\n", alert.Title)
	fmt.Fprintf(b, "- **Level:** %s\n", alert.Level)
	fmt.Fprintf(b, "- **Description:** %s\n", utils.FirstNonEmpty(alert.Description, "No description"))
	if !full {
		return
	}
	fmt.Fprintf(b, "- **Source Channel:** %s\n", utils.FirstNonEmpty(alert.SourceChannel, "unknown"))
	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(b, "- **Timestamp:** %s\n", alert.Timestamp.UTC().Format(time.RFC3339))
	}
	if len(alert.Fields) > 0 {
		b.WriteString("- **Additional Fields:**\n")
		for _, f := range alert.Fields {
			fmt.Fprintf(b, "  - %s: %s\n", f.Name, f.Value)
		}
	}
}

func writeHints(b *strings.Builder, hints []string) {
	if len(hints) == 0 {
		return
	}
	b.WriteString("\n## Runbook Hints\n")
	for _, h := range hints {
		fmt.Fprintf(b, "- %s\n", h)
	}
}

// latestFindings returns the most useful prior output of an incident.
func latestFindings(inc models.Incident) (string, bool) {
	for _, p := range []models.Phase{models.PhaseRemediate, models.PhaseDiagnose, models.PhaseInvestigate} {
		if rec, ok := inc.Phase(p); ok && strings.TrimSpace(rec.Output) != "" {
			return rec.Output, true
		}
	}
	return "", false
}
