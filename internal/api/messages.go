package api

import (
	"github.com/miradorstack/mirador-oracle/internal/approval"
	"github.com/miradorstack/mirador-oracle/internal/models"
	"github.com/miradorstack/mirador-oracle/internal/transport"
)

// SubmitAlertRequest opens an incident for an already structured alert.
type SubmitAlertRequest struct {
	Alert models.AlertEvent `json:"alert"`
}

// IngestMessageRequest hands a raw chat message to alert extraction.
type IngestMessageRequest struct {
	Message models.ChatMessage `json:"message"`
}

// IngestMessageResponse reports whether the message opened an incident.
type IngestMessageResponse struct {
	IsAlert  bool             `json:"is_alert"`
	Incident *models.Incident `json:"incident,omitempty"`
}

// IncidentRequest addresses a single incident.
type IncidentRequest struct {
	IncidentID string `json:"incident_id"`
	User       string `json:"user,omitempty"`
}

// IncidentResponse carries an incident snapshot.
type IncidentResponse struct {
	Incident models.Incident `json:"incident"`
}

// ListIncidentsRequest pages through recent incidents.
type ListIncidentsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ListIncidentsResponse lists incidents, most recent first.
type ListIncidentsResponse struct {
	Incidents []models.Incident `json:"incidents"`
}

// ConverseRequest is one conversational turn.
type ConverseRequest struct {
	ThreadID string `json:"thread_id"`
	User     string `json:"user"`
	Message  string `json:"message"`
}

// AskRequest is a one-shot question.
type AskRequest struct {
	Question string `json:"question"`
	User     string `json:"user,omitempty"`
}

// RunTaskRequest is an administrative instruction.
type RunTaskRequest struct {
	Task string `json:"task"`
	User string `json:"user"`
}

// ReplyResponse carries chat-ready messages.
type ReplyResponse struct {
	Messages  []transport.OutgoingMessage `json:"messages"`
	Success   bool                        `json:"success"`
	CostUSD   float64                     `json:"cost_usd"`
	SessionID string                      `json:"session_id,omitempty"`
	Resumed   bool                        `json:"resumed,omitempty"`
}

// RemediateRequest asks for an operator-initiated fix.
type RemediateRequest struct {
	Action       string `json:"action"`
	User         string `json:"user"`
	SkipApproval bool   `json:"skip_approval,omitempty"`
	IncidentID   string `json:"incident_id,omitempty"`
}

// RemediateResponse reports every step of a remediation.
type RemediateResponse struct {
	Analysis string                      `json:"analysis,omitempty"`
	Request  approval.Request            `json:"request"`
	Decision approval.Decision           `json:"decision"`
	Executed bool                        `json:"executed"`
	Output   string                      `json:"output,omitempty"`
	CostUSD  float64                     `json:"cost_usd"`
	Messages []transport.OutgoingMessage `json:"messages"`
}

// DecideRequest approves or denies a pending request.
type DecideRequest struct {
	RequestID string `json:"request_id"`
	Approve   bool   `json:"approve"`
	User      string `json:"user"`
}

// DecideResponse reports whether the decision was the first one recorded.
type DecideResponse struct {
	Accepted bool             `json:"accepted"`
	Request  approval.Request `json:"request"`
}

// PendingApprovalsRequest lists unresolved approvals.
type PendingApprovalsRequest struct{}

// PendingApprovalsResponse lists unresolved approvals, oldest first.
type PendingApprovalsResponse struct {
	Requests []approval.Request `json:"requests"`
}

// SessionRequest addresses the session of a thread.
type SessionRequest struct {
	ThreadID string `json:"thread_id"`
}

// SessionResponse describes a thread's session.
type SessionResponse struct {
	Session models.Session `json:"session"`
	Found   bool           `json:"found"`
}

// StatusRequest asks for the service status.
type StatusRequest struct{}

// StatusResponse summarises the running service.
type StatusResponse struct {
	Environment      string  `json:"environment"`
	EditTools        bool    `json:"edit_tools"`
	AutoRespond      bool    `json:"auto_respond"`
	AutoRemediate    bool    `json:"auto_remediate"`
	ActiveIncidents  int     `json:"active_incidents"`
	TotalIncidents   int     `json:"total_incidents"`
	ActiveSessions   int     `json:"active_sessions"`
	PendingApprovals int     `json:"pending_approvals"`
	Runbooks         int     `json:"runbooks"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	Uptime           string  `json:"uptime"`
	CodebasePath     string  `json:"codebase_path"`
	EngineP95        string  `json:"engine_p95"`
}

// ToggleRequest flips one automation feature. A nil Enabled inverts it.
type ToggleRequest struct {
	Feature string `json:"feature"`
	Enabled *bool  `json:"enabled,omitempty"`
	User    string `json:"user"`
}

// CommandRequest runs a named operator command.
type CommandRequest struct {
	Name     string            `json:"name"`
	Args     map[string]string `json:"args,omitempty"`
	User     string            `json:"user"`
	ThreadID string            `json:"thread_id,omitempty"`
}
