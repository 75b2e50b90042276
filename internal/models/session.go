package models

import "time"

// Session is a snapshot of a conversation session bound to a thread.
type Session struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at"`
	MessageCount int       `json:"message_count"`
	CostUSD      float64   `json:"cost_usd"`
	Live         bool      `json:"live"`
}

// ShortID returns the trailing characters of the session token for display.
func (s Session) ShortID() string {
	if len(s.ID) <= 8 {
		return s.ID
	}
	return s.ID[len(s.ID)-8:]
}
