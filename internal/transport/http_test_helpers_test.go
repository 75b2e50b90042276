package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// captureTransport records request bodies and answers every request with
// the status returned by respond.
type captureTransport struct {
	mu      sync.Mutex
	urls    []string
	bodies  []string
	respond func(n int) int
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.urls = append(c.urls, req.URL.String())
	c.bodies = append(c.bodies, string(body))
	n := len(c.bodies)
	c.mu.Unlock()

	code := http.StatusNoContent
	if c.respond != nil {
		code = c.respond(n)
	}
	return &http.Response{
		StatusCode: code,
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func (c *captureTransport) payloads(t *testing.T) []webhookPayload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]webhookPayload, 0, len(c.bodies))
	for _, b := range c.bodies {
		var p webhookPayload
		if err := json.Unmarshal([]byte(b), &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func (c *captureTransport) requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}
