// Command mock-engine stands in for the reasoning engine CLI during local
// development. It accepts the same flags and prints a canned JSON result.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type result struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	SessionID    string  `json:"session_id"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMs   int64   `json:"duration_ms"`
}

func main() {
	logger := log.New(os.Stderr, "engine-mock ", log.LstdFlags|log.Lmicroseconds)

	fs := flag.NewFlagSet("mock-engine", flag.ContinueOnError)
	fs.Bool("print", false, "")
	fs.String("output-format", "json", "")
	resume := fs.Bool("resume", false, "")
	sessionID := fs.String("session-id", "", "")
	fs.Bool("dangerously-skip-permissions", false, "")
	fs.Int("max-turns", 15, "")
	model := fs.String("model", "", "")
	allowed := fs.String("allowedTools", "", "")
	denied := fs.String("disallowedTools", "", "")
	budget := fs.Float64("max-budget-usd", 1, "")
	fs.String("system-prompt-file", "", "")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	prompt := strings.Join(fs.Args(), " ")

	if v := os.Getenv("MOCK_ENGINE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			time.Sleep(d)
		}
	}
	if msg := os.Getenv("MOCK_ENGINE_FAIL"); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}

	sid := *sessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	firstLine, _, _ := strings.Cut(prompt, "\n")
	logger.Printf("model=%s resume=%v allowed=%q denied=%q budget=%.2f prompt=%q", *model, *resume, *allowed, *denied, *budget, firstLine)

	cost := 0.0123
	if cost > *budget {
		cost = *budget
	}
	out := result{
		Type:         "result",
		Subtype:      "success",
		Result:       fmt.Sprintf("Mock analysis for: %s\n\nNo real engine is attached; this is a canned response.", firstLine),
		SessionID:    sid,
		NumTurns:     3,
		TotalCostUSD: cost,
		DurationMs:   42,
	}
	if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
		logger.Fatalf("encode error: %v", err)
	}
}
