package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-oracle/internal/api"
	"github.com/miradorstack/mirador-oracle/internal/models"
)

type cliOptions struct {
	address string
	user    string
	timeout time.Duration
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "oraclectl",
		Short:         "Talk to a running mirador-oracle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.address, "address", envOr("ORACLE_ADDRESS", "127.0.0.1:50061"), "oracle gRPC address")
	root.PersistentFlags().StringVar(&opts.user, "user", envOr("ORACLE_USER", os.Getenv("USER")), "identity recorded for the request")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "request deadline")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		alertCmd(opts),
		investigateCmd(opts),
		incidentsCmd(opts),
		incidentCmd(opts),
		chatCmd(opts),
		askCmd(opts),
		taskCmd(opts),
		remediateCmd(opts),
		decideCmd(opts, "approve", true),
		decideCmd(opts, "deny", false),
		approvalsCmd(opts),
		sessionCmd(opts),
		statusCmd(opts),
		toggleCmd(opts),
		commandCmd(opts),
	)
	return root
}

// withClient dials the service and runs fn under the request deadline.
func withClient(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, c *api.Client) (any, error)) error {
	client, err := api.Dial(opts.address)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()
	resp, err := fn(ctx, client)
	if err != nil {
		return err
	}
	return printResponse(cmd.OutOrStdout(), resp, opts.json)
}

func alertCmd(opts *cliOptions) *cobra.Command {
	var (
		level       string
		description string
		channel     string
		fields      []string
	)
	cmd := &cobra.Command{
		Use:   "alert <title>",
		Short: "Submit an alert and open an incident",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseArgs(fields)
			if err != nil {
				return err
			}
			alert := models.AlertEvent{
				Title:         strings.Join(args, " "),
				Level:         models.ParseLevel(level),
				Description:   description,
				SourceChannel: channel,
				Timestamp:     time.Now().UTC(),
			}
			for _, name := range sortedKeys(parsed) {
				alert.Fields = append(alert.Fields, models.AlertField{Name: name, Value: parsed[name]})
			}
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.SubmitAlert(ctx, &api.SubmitAlertRequest{Alert: alert})
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", "warning", "info, warning or critical")
	cmd.Flags().StringVar(&description, "description", "", "alert description")
	cmd.Flags().StringVar(&channel, "channel", "cli", "source channel")
	cmd.Flags().StringSliceVar(&fields, "field", nil, "additional name=value field (repeatable)")
	return cmd
}

func investigateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "investigate <incident-id>",
		Short: "Start the investigation of an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Investigate(ctx, &api.IncidentRequest{IncidentID: args[0], User: opts.user})
			})
		},
	}
}

func incidentsCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List recent incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.ListIncidents(ctx, &api.ListIncidentsRequest{Limit: limit})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum incidents to list")
	return cmd
}

func incidentCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "incident <incident-id>",
		Short: "Show one incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.GetIncident(ctx, &api.IncidentRequest{IncidentID: args[0]})
			})
		},
	}
}

func chatCmd(opts *cliOptions) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a conversational turn within a thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Converse(ctx, &api.ConverseRequest{ThreadID: thread, User: opts.user, Message: strings.Join(args, " ")})
			})
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "cli", "conversation thread")
	return cmd
}

func askCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a one-shot question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Ask(ctx, &api.AskRequest{Question: strings.Join(args, " "), User: opts.user})
			})
		},
	}
}

func taskCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "task <instruction>",
		Short: "Run an administrative task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.RunTask(ctx, &api.RunTaskRequest{Task: strings.Join(args, " "), User: opts.user})
			})
		},
	}
}

func remediateCmd(opts *cliOptions) *cobra.Command {
	var (
		incident string
		skip     bool
	)
	cmd := &cobra.Command{
		Use:   "remediate <action>",
		Short: "Analyse, approve and execute a fix",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Remediate(ctx, &api.RemediateRequest{
					Action:       strings.Join(args, " "),
					User:         opts.user,
					SkipApproval: skip,
					IncidentID:   incident,
				})
			})
		},
	}
	cmd.Flags().StringVar(&incident, "incident", "", "related incident ID")
	cmd.Flags().BoolVar(&skip, "skip-approval", false, "execute without waiting for approval")
	return cmd
}

func decideCmd(opts *cliOptions, use string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a pending remediation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Decide(ctx, &api.DecideRequest{RequestID: args[0], Approve: approve, User: opts.user})
			})
		},
	}
}

func approvalsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approvals",
		Short: "List pending approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.PendingApprovals(ctx, &api.PendingApprovalsRequest{})
			})
		},
	}
}

func sessionCmd(opts *cliOptions) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset a conversation session",
	}
	cmd.PersistentFlags().StringVar(&thread, "thread", "cli", "conversation thread")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Describe the thread's session",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
					return c.SessionInfo(ctx, &api.SessionRequest{ThreadID: thread})
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Start a fresh session in the thread",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
					return c.ResetSession(ctx, &api.SessionRequest{ThreadID: thread})
				})
			},
		},
	)
	return cmd
}

func statusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Status(ctx, &api.StatusRequest{})
			})
		},
	}
}

func toggleCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "toggle <respond|remediate> [on|off]",
		Short:     "Flip an automation feature",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"respond", "remediate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.ToggleRequest{Feature: args[0], User: opts.user}
			if len(args) == 2 {
				v, err := parseSwitch(args[1])
				if err != nil {
					return err
				}
				req.Enabled = &v
			}
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Toggle(ctx, req)
			})
		},
	}
}

func commandCmd(opts *cliOptions) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "command <name> [key=value...]",
		Short: "Run an operator command by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *api.Client) (any, error) {
				return c.Command(ctx, &api.CommandRequest{Name: args[0], Args: parsed, User: opts.user, ThreadID: thread})
			})
		},
	}
	cmd.Flags().StringVar(&thread, "thread", "cli", "thread the command runs in")
	return cmd
}

func parseArgs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q must be key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func parseSwitch(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", v)
	}
	return b, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
