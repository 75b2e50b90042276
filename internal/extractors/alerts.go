package extractors

import (
	"strings"
	"unicode/utf8"

	"github.com/miradorstack/mirador-oracle/internal/models"
)

// Embed colours used by the monitoring bots.
const (
	ColorRed    = 0xE74C3C
	ColorOrange = 0xE67E22
)

const plainTitleLimit = 100

var alertIndicators = []string{"🚨", "⚠️", "🔴", "CRITICAL", "WARNING", "ERROR", "ALERT", "DOWN"}

// AlertExtractor turns chat messages posted by monitoring bots into alerts.
type AlertExtractor struct{}

// NewAlertExtractor constructs an extractor.
func NewAlertExtractor() *AlertExtractor {
	return &AlertExtractor{}
}

// IsAlert reports whether msg looks like an alert: it carries an embed or
// mentions one of the alert indicators.
func (e *AlertExtractor) IsAlert(msg models.ChatMessage) bool {
	if len(msg.Embeds) > 0 {
		return true
	}
	upper := strings.ToUpper(msg.Content)
	for _, indicator := range alertIndicators {
		if strings.Contains(upper, indicator) || strings.Contains(msg.Content, indicator) {
			return true
		}
	}
	return false
}

// Extract builds an AlertEvent from msg. The second return value is false
// when msg is not an alert.
func (e *AlertExtractor) Extract(msg models.ChatMessage) (models.AlertEvent, bool) {
	if !e.IsAlert(msg) {
		return models.AlertEvent{}, false
	}
	alert := models.AlertEvent{
		SourceChannel: msg.Channel,
		Timestamp:     msg.Timestamp,
		MessageID:     msg.ID,
	}

	if len(msg.Embeds) > 0 {
		embed := msg.Embeds[0]
		alert.Title = embed.Title
		if strings.TrimSpace(alert.Title) == "" {
			alert.Title = "Unknown Alert"
		}
		alert.Description = embed.Description
		alert.Fields = append([]models.AlertField(nil), embed.Fields...)
		alert.Level = InferLevel(embed)
		return alert, true
	}

	alert.Title = firstRunes(msg.Content, plainTitleLimit)
	if strings.TrimSpace(alert.Title) == "" {
		alert.Title = "Unknown Alert"
	}
	alert.Description = msg.Content
	alert.Level = models.LevelWarning
	return alert, true
}

// InferLevel classifies an embed by colour first, then by title markers.
func InferLevel(embed models.Embed) models.Level {
	switch embed.Color {
	case ColorRed:
		return models.LevelCritical
	case ColorOrange:
		return models.LevelWarning
	}

	upper := strings.ToUpper(embed.Title)
	switch {
	case strings.Contains(upper, "CRITICAL") || strings.Contains(embed.Title, "🚨"):
		return models.LevelCritical
	case strings.Contains(upper, "WARNING") || strings.Contains(embed.Title, "⚠️"):
		return models.LevelWarning
	}
	return models.LevelInfo
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
