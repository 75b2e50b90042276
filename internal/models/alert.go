package models

import (
	"strings"
	"time"
)

// Level classifies alert urgency.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// ParseLevel maps free-form input onto a Level, defaulting to warning.
func ParseLevel(v string) Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "info":
		return LevelInfo
	case "critical":
		return LevelCritical
	default:
		return LevelWarning
	}
}

// AlertField is a single name/value pair attached to an alert.
type AlertField struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// AlertEvent is an inbound alert as received from the monitoring surface.
type AlertEvent struct {
	Title         string       `json:"title" validate:"required,max=256"`
	Level         Level        `json:"level" validate:"required,oneof=info warning critical"`
	Description   string       `json:"description,omitempty"`
	Fields        []AlertField `json:"fields,omitempty" validate:"dive"`
	SourceChannel string       `json:"source_channel,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	MessageID     string       `json:"message_id,omitempty"`
}

// Field returns the value of the named field, matched case-insensitively.
func (a AlertEvent) Field(name string) (string, bool) {
	for _, f := range a.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Fingerprint identifies alerts that should be treated as duplicates.
func (a AlertEvent) Fingerprint() string {
	return strings.ToLower(strings.Join([]string{string(a.Level), a.SourceChannel, strings.TrimSpace(a.Title)}, "|"))
}
