// Package transport renders outgoing chat messages and delivers them to the
// chat surface.
package transport

import (
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/utils"
)

// TruncationMarker closes a chunk sequence that was cut short.
const TruncationMarker = "... (response truncated)"

// Tone colours a structured summary.
type Tone string

const (
	ToneInfo     Tone = "info"
	ToneProgress Tone = "progress"
	ToneSuccess  Tone = "success"
	ToneWarning  Tone = "warning"
	ToneCritical Tone = "critical"
)

// Color maps a tone to the chat surface's embed colour.
func (t Tone) Color() int {
	switch t {
	case ToneProgress:
		return 0x3498DB
	case ToneSuccess:
		return 0x2ECC71
	case ToneWarning:
		return 0xE67E22
	case ToneCritical:
		return 0xE74C3C
	default:
		return 0x95A5A6
	}
}

// Field is a labelled value in a summary.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Summary is a structured message with a title and fields.
type Summary struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Tone        Tone    `json:"tone,omitempty"`
	Footer      string  `json:"footer,omitempty"`
}

// OutgoingMessage carries either plain text or a summary.
type OutgoingMessage struct {
	Text    string   `json:"text,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	Silent  bool     `json:"silent,omitempty"`
}

// Text builds a plain message.
func Text(s string) OutgoingMessage {
	return OutgoingMessage{Text: s}
}

// Chunk splits text into at most maxChunks pieces of at most limit runes.
// When text does not fit, the returned slice has maxChunks pieces followed by
// TruncationMarker.
func Chunk(text string, limit, maxChunks int) []string {
	if limit <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}
	var chunks []string
	for start := 0; start < len(runes); start += limit {
		if maxChunks > 0 && len(chunks) == maxChunks {
			return append(chunks, TruncationMarker)
		}
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

const truncatedMarker = "\n\n... (truncated)"

// Excerpt bounds text to limit runes, marker included, so an excerpt passes
// through a later cap of the same limit unchanged.
func Excerpt(text string, limit int) string {
	if len([]rune(text)) <= limit {
		return text
	}
	keep := limit - len([]rune(truncatedMarker))
	if keep <= 0 {
		return utils.Truncate(text, limit)
	}
	return utils.Truncate(text, keep) + truncatedMarker
}

// ChunkMessages wraps Chunk output as plain messages.
func ChunkMessages(text string, limit, maxChunks int) []OutgoingMessage {
	parts := Chunk(text, limit, maxChunks)
	out := make([]OutgoingMessage, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" && len(parts) > 1 {
			continue
		}
		out = append(out, Text(p))
	}
	return out
}
