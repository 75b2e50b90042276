package executor

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Tools the engine must never use: it runs non-interactively.
var alwaysDenied = []string{"AskUserQuestion"}

// EditTools mutate files and are denied outside the dev environment.
var EditTools = []string{"Write", "Edit", "MultiEdit"}

// ReadOnlyTools is the allow-list used by diagnostic phases.
var ReadOnlyTools = []string{"Read", "Glob", "Grep", "Bash"}

// Settings holds the invocation-independent parts of the argument list.
type Settings struct {
	Model          string
	MaxTurns       int
	AllowEditTools bool
}

// DeniedTools returns the environment-derived deny list merged with extra.
func (s Settings) DeniedTools(extra ...string) []string {
	denied := append([]string{}, alwaysDenied...)
	if !s.AllowEditTools {
		denied = append(denied, EditTools...)
	}
	denied = append(denied, extra...)
	return lo.Uniq(lo.Compact(denied))
}

// BuildArgs renders the flat argument list for one invocation. The prompt is
// always the final argument.
func BuildArgs(s Settings, inv Invocation, contextFile string) []string {
	args := []string{"--print", "--output-format", "json"}

	if inv.Session != nil && inv.Session.Token != "" {
		if inv.Session.Resume {
			args = append(args, "--resume")
		}
		args = append(args, "--session-id", inv.Session.Token)
	}
	if inv.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	args = append(args,
		"--max-turns", strconv.Itoa(s.MaxTurns),
		"--model", s.Model,
	)

	if allowed := lo.Compact(inv.AllowedTools); len(allowed) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowed, ","))
	}
	args = append(args, "--disallowedTools", strings.Join(s.DeniedTools(inv.DeniedTools...), ","))
	args = append(args, "--max-budget-usd", strconv.FormatFloat(inv.BudgetUSD, 'f', -1, 64))

	if contextFile != "" {
		args = append(args, "--system-prompt-file", contextFile)
	}
	return append(args, inv.Prompt)
}
