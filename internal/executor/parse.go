package executor

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/miradorstack/mirador-oracle/internal/utils"
)

// decodeOutput turns the engine's captured streams into a Result. Non-JSON
// stdout is not an error: the raw text becomes the output.
func decodeOutput(stdout, stderr string, exitCode int) Result {
	res := Result{Success: exitCode == 0, ExitCode: exitCode}
	if !res.Success {
		res.Failure = FailureExit
	}

	payload, ok := decodePayload(stdout)
	if ok {
		res.Raw = payload
		res.Output = stdout
		if text, ok := payload["result"].(string); ok {
			res.Output = text
		}
		res.CostUSD = numberField(payload, "cost_usd", "total_cost_usd")
		if sid, ok := payload["session_id"].(string); ok {
			res.SessionToken = sid
		}
		res.Turns = int(numberField(payload, "num_turns"))
		if !res.Success {
			res.Error = utils.FirstNonEmpty(strings.TrimSpace(stderr), fmt.Sprintf("engine exited with code %d", exitCode))
		}
		return res
	}

	res.Output = stdout
	switch {
	case strings.TrimSpace(stderr) != "":
		res.Error = strings.TrimSpace(stderr)
	case exitCode != 0 && stdout != "":
		res.Error = fmt.Sprintf("command failed (exit code %d). Output: %s", exitCode, utils.Truncate(stdout, 500))
	case exitCode != 0:
		res.Error = fmt.Sprintf("command failed with exit code %d", exitCode)
	}
	return res
}

func decodePayload(stdout string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// numberField returns the first finite, non-negative number among keys.
func numberField(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := payload[key].(float64)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < 0 {
			return 0
		}
		return v
	}
	return 0
}
