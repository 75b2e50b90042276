package transport

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestChunkWithinLimit(t *testing.T) {
	chunks := Chunk(strings.Repeat("a", 2000), 1900, 5)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len([]rune(chunks[0])) != 1900 || len([]rune(chunks[1])) != 100 {
		t.Fatalf("unexpected chunk sizes: %d/%d", len(chunks[0]), len(chunks[1]))
	}
}

func TestChunkTruncatesAfterMax(t *testing.T) {
	chunks := Chunk(strings.Repeat("b", 20000), 1900, 5)
	if len(chunks) != 6 {
		t.Fatalf("expected 5 chunks plus marker, got %d", len(chunks))
	}
	if chunks[5] != TruncationMarker {
		t.Fatalf("expected truncation marker, got %q", chunks[5])
	}
}

func TestChunkExactMultipleHasNoMarker(t *testing.T) {
	chunks := Chunk(strings.Repeat("c", 3*1900), 1900, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c == TruncationMarker {
			t.Fatalf("unexpected truncation marker")
		}
	}
}

func TestChunkSplitsOnRunes(t *testing.T) {
	chunks := Chunk("🚨🚨🚨", 2, 0)
	if len(chunks) != 2 || chunks[0] != "🚨🚨" || chunks[1] != "🚨" {
		t.Fatalf("unexpected rune chunks: %q", chunks)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 10); got != "short" {
		t.Fatalf("unexpected excerpt %q", got)
	}
	got := Excerpt(strings.Repeat("x", 100), 40)
	if !strings.HasPrefix(got, strings.Repeat("x", 23)+"\n\n") || !strings.HasSuffix(got, "(truncated)") {
		t.Fatalf("unexpected excerpt %q", got)
	}
	if n := len([]rune(got)); n != 40 {
		t.Fatalf("excerpt exceeds limit: %d runes", n)
	}
	if again := Excerpt(got, 40); again != got {
		t.Fatalf("excerpt is not stable: %q", again)
	}
}

func TestWebhookNotifierPostsEmbeds(t *testing.T) {
	capture := &captureTransport{}
	n := NewWebhookNotifier("https://chat.example.com/api/webhooks/1/abc", time.Second, 100)
	n.httpClient = &http.Client{Transport: capture}

	err := n.Notify(context.Background(), "1234",
		Text("hello"),
		OutgoingMessage{Summary: &Summary{
			Title:       "🚨 Incident INC-1",
			Description: Excerpt(strings.Repeat("d", 300), 100),
			Tone:        ToneCritical,
			Fields:      []Field{{Name: "State", Value: ""}},
		}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payloads := capture.payloads(t)
	if len(payloads) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(payloads))
	}
	if !strings.Contains(capture.urls[0], "thread_id=1234") {
		t.Fatalf("expected thread routing, got %s", capture.urls[0])
	}
	if payloads[0].Content != "hello" {
		t.Fatalf("unexpected content %q", payloads[0].Content)
	}
	embed := payloads[1].Embeds[0]
	if embed.Color != ToneCritical.Color() {
		t.Fatalf("unexpected color %x", embed.Color)
	}
	if !strings.HasSuffix(embed.Description, "(truncated)") {
		t.Fatalf("expected bounded description")
	}
	if n := strings.Count(embed.Description, "(truncated)"); n != 1 {
		t.Fatalf("expected a single truncation marker, got %d", n)
	}
	if embed.Fields[0].Value != "-" {
		t.Fatalf("expected placeholder for empty field, got %q", embed.Fields[0].Value)
	}
}

func TestWebhookNotifierLabelsNamedThreads(t *testing.T) {
	capture := &captureTransport{}
	n := NewWebhookNotifier("https://chat.example.com/hook", time.Second, 0)
	n.httpClient = &http.Client{Transport: capture}
	if err := n.Notify(context.Background(), "INC-7", Text("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := capture.payloads(t)[0].Username; got != "Oracle | INC-7" {
		t.Fatalf("unexpected username %q", got)
	}
}

func TestWebhookNotifierStopsOnFailedDelivery(t *testing.T) {
	capture := &captureTransport{respond: func(int) int { return http.StatusTooManyRequests }}
	n := NewWebhookNotifier("https://chat.example.com/hook", time.Second, 0)
	n.httpClient = &http.Client{Transport: capture}
	err := n.Notify(context.Background(), "", Text("x"), Text("y"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
	if len(capture.requests()) != 1 {
		t.Fatalf("expected delivery to stop after the first failure, got %d posts", len(capture.requests()))
	}
}

func TestWebhookNotifierKeepsEngineExcerptIntact(t *testing.T) {
	capture := &captureTransport{}
	n := NewWebhookNotifier("https://chat.example.com/hook", time.Second, 3500)
	n.httpClient = &http.Client{Transport: capture}

	desc := Excerpt(strings.Repeat("y", 5000), 3500)
	if err := n.Notify(context.Background(), "", OutgoingMessage{Summary: &Summary{Title: "🔍 Investigation Results", Description: desc}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := capture.payloads(t)[0].Embeds[0].Description
	if got != desc {
		t.Fatalf("webhook re-cut an excerpted description (%d runes)", len([]rune(got)))
	}
	if strings.Count(got, "(truncated)") != 1 || !strings.HasSuffix(got, "... (truncated)") {
		t.Fatalf("expected one trailing marker, got suffix %q", got[len(got)-30:])
	}

	capture = &captureTransport{}
	n.httpClient = &http.Client{Transport: capture}
	raw := strings.Repeat("z", 4000)
	if err := n.Notify(context.Background(), "", OutgoingMessage{Summary: &Summary{Title: "t", Description: raw}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = capture.payloads(t)[0].Embeds[0].Description
	if len([]rune(got)) != 3500 || strings.Contains(got, "truncated") {
		t.Fatalf("expected a plain hard cap, got %d runes", len([]rune(got)))
	}
}
