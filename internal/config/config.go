package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentDev is the only environment in which the engine may edit files.
const EnvironmentDev = "dev"

// Config captures every setting required to boot the oracle service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Engine    EngineConfig    `yaml:"engine"`
	Behavior  BehaviorConfig  `yaml:"behavior"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Budgets   BudgetsConfig   `yaml:"budgets"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Runbooks  RunbooksConfig  `yaml:"runbooks"`
	Intake    IntakeConfig    `yaml:"intake"`
	Notify    NotifyConfig    `yaml:"notify"`
	Transport TransportConfig `yaml:"transport"`
	Access    AccessConfig    `yaml:"access"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig describes how the reasoning engine CLI is invoked.
type EngineConfig struct {
	Binary       string `yaml:"binary"`
	Model        string `yaml:"model"`
	MaxTurns     int    `yaml:"maxTurns"`
	CodebasePath string `yaml:"codebasePath"`
	Environment  string `yaml:"environment"`
	// ContextPath points at a markdown document describing the infrastructure.
	ContextPath string `yaml:"contextPath"`
}

// AllowEditTools reports whether file-mutating tools stay enabled.
func (e EngineConfig) AllowEditTools() bool {
	return strings.EqualFold(e.Environment, EnvironmentDev)
}

// BehaviorConfig holds the runtime toggles' initial values.
type BehaviorConfig struct {
	AutoRespond   bool `yaml:"autoRespond"`
	AutoRemediate bool `yaml:"autoRemediate"`
}

// SessionsConfig controls conversation session expiry.
type SessionsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// BudgetsConfig caps spend per invocation kind, in USD.
type BudgetsConfig struct {
	Phase                float64 `yaml:"phase"`
	Conversation         float64 `yaml:"conversation"`
	Task                 float64 `yaml:"task"`
	RemediationAnalysis  float64 `yaml:"remediationAnalysis"`
	RemediationExecution float64 `yaml:"remediationExecution"`
}

// TimeoutsConfig bounds each invocation kind.
type TimeoutsConfig struct {
	Investigation        time.Duration `yaml:"investigation"`
	Diagnostics          time.Duration `yaml:"diagnostics"`
	Remediation          time.Duration `yaml:"remediation"`
	Conversation         time.Duration `yaml:"conversation"`
	Task                 time.Duration `yaml:"task"`
	RemediationAnalysis  time.Duration `yaml:"remediationAnalysis"`
	RemediationExecution time.Duration `yaml:"remediationExecution"`
}

// ApprovalConfig controls the human approval gate.
type ApprovalConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	ApproveAuto bool          `yaml:"approveAuto"`
}

// RunbooksConfig controls runbook hint loading.
type RunbooksConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// IntakeConfig guards incident creation.
type IntakeConfig struct {
	RatePerMinute float64       `yaml:"ratePerMinute"`
	Burst         int           `yaml:"burst"`
	DedupeWindow  time.Duration `yaml:"dedupeWindow"`
	// Valkey shares duplicate suppression between replicas. Empty Addr keeps
	// fingerprints in process memory.
	Valkey ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr     string        `yaml:"addr"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TLS      bool          `yaml:"tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotifyConfig configures outbound chat notifications.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// TransportConfig holds chat rendering limits.
type TransportConfig struct {
	MessageLimit          int `yaml:"messageLimit"`
	EmbedLimit            int `yaml:"embedLimit"`
	ConversationMaxChunks int `yaml:"conversationMaxChunks"`
	TaskMaxChunks         int `yaml:"taskMaxChunks"`
}

// AccessConfig lists the identities allowed to run administrative commands.
type AccessConfig struct {
	Admins []string `yaml:"admins"`
}

// IsAdmin reports whether user may run administrative commands.
func (a AccessConfig) IsAdmin(user string) bool {
	user = strings.TrimSpace(user)
	if user == "" {
		return false
	}
	for _, admin := range a.Admins {
		if strings.EqualFold(strings.TrimSpace(admin), user) {
			return true
		}
	}
	return false
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ORACLE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Engine: EngineConfig{
			Binary:       "claude",
			Model:        "claude-opus-4-5-20250514",
			MaxTurns:     15,
			CodebasePath: "/app/codebase",
			Environment:  EnvironmentDev,
		},
		Behavior: BehaviorConfig{AutoRespond: true, AutoRemediate: false},
		Sessions: SessionsConfig{Timeout: 30 * time.Minute},
		Budgets: BudgetsConfig{
			Phase:                1.00,
			Conversation:         1.00,
			Task:                 1.00,
			RemediationAnalysis:  0.05,
			RemediationExecution: 0.10,
		},
		Timeouts: TimeoutsConfig{
			Investigation:        180 * time.Second,
			Diagnostics:          120 * time.Second,
			Remediation:          120 * time.Second,
			Conversation:         180 * time.Second,
			Task:                 600 * time.Second,
			RemediationAnalysis:  120 * time.Second,
			RemediationExecution: 300 * time.Second,
		},
		Approval: ApprovalConfig{Timeout: 5 * time.Minute},
		Runbooks: RunbooksConfig{Path: "configs/runbooks/default.yaml", Watch: true},
		Intake: IntakeConfig{
			RatePerMinute: 30,
			Burst:         10,
			DedupeWindow:  time.Minute,
			Valkey:        ValkeyConfig{Timeout: 500 * time.Millisecond},
		},
		Notify: NotifyConfig{Timeout: 10 * time.Second},
		Transport: TransportConfig{
			MessageLimit:          1900,
			EmbedLimit:            3500,
			ConversationMaxChunks: 5,
			TaskMaxChunks:         3,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Engine.Binary) == "" {
		errs = append(errs, errors.New("engine.binary is required"))
	}
	if c.Engine.MaxTurns <= 0 {
		errs = append(errs, errors.New("engine.maxTurns must be positive"))
	}
	if c.Sessions.Timeout <= 0 {
		errs = append(errs, errors.New("sessions.timeout must be positive"))
	}
	if c.Approval.Timeout <= 0 {
		errs = append(errs, errors.New("approval.timeout must be positive"))
	}
	budgets := map[string]float64{
		"budgets.phase":                c.Budgets.Phase,
		"budgets.conversation":         c.Budgets.Conversation,
		"budgets.task":                 c.Budgets.Task,
		"budgets.remediationAnalysis":  c.Budgets.RemediationAnalysis,
		"budgets.remediationExecution": c.Budgets.RemediationExecution,
	}
	for name, v := range budgets {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	timeouts := map[string]time.Duration{
		"timeouts.investigation":        c.Timeouts.Investigation,
		"timeouts.diagnostics":          c.Timeouts.Diagnostics,
		"timeouts.remediation":          c.Timeouts.Remediation,
		"timeouts.conversation":         c.Timeouts.Conversation,
		"timeouts.task":                 c.Timeouts.Task,
		"timeouts.remediationAnalysis":  c.Timeouts.RemediationAnalysis,
		"timeouts.remediationExecution": c.Timeouts.RemediationExecution,
	}
	for name, v := range timeouts {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Transport.MessageLimit <= 0 {
		errs = append(errs, errors.New("transport.messageLimit must be positive"))
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORACLE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ORACLE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ORACLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ORACLE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("ORACLE_ENGINE_BINARY"); v != "" {
		cfg.Engine.Binary = v
	}
	if v := os.Getenv("ORACLE_ENGINE_MODEL"); v != "" {
		cfg.Engine.Model = v
	}
	if v := os.Getenv("ORACLE_ENGINE_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxTurns = n
		}
	}
	if v := os.Getenv("ORACLE_CONTEXT_PATH"); v != "" {
		cfg.Engine.ContextPath = v
	}
	if v := firstEnv("ORACLE_ENVIRONMENT", "ENVIRONMENT"); v != "" {
		cfg.Engine.Environment = strings.ToLower(v)
	}
	if v := firstEnv("ORACLE_CODEBASE_PATH", "CODEBASE_PATH"); v != "" {
		cfg.Engine.CodebasePath = v
	}
	if v := firstEnv("ORACLE_AUTO_RESPOND", "AUTO_RESPOND"); v != "" {
		cfg.Behavior.AutoRespond = parseBool(v)
	}
	if v := firstEnv("ORACLE_AUTO_REMEDIATE", "AUTO_REMEDIATE"); v != "" {
		cfg.Behavior.AutoRemediate = parseBool(v)
	}
	if v := firstEnv("ORACLE_SESSION_TIMEOUT", "SESSION_TIMEOUT_MINUTES"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sessions.Timeout = d
		} else if minutes, err := strconv.Atoi(v); err == nil {
			cfg.Sessions.Timeout = time.Duration(minutes) * time.Minute
		}
	}
	if v := os.Getenv("ORACLE_APPROVAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Approval.Timeout = d
		}
	}
	if v := os.Getenv("ORACLE_APPROVE_AUTO"); v != "" {
		cfg.Approval.ApproveAuto = parseBool(v)
	}
	if v := os.Getenv("ORACLE_RUNBOOKS_PATH"); v != "" {
		cfg.Runbooks.Path = v
	}
	if v := os.Getenv("ORACLE_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("ORACLE_INTAKE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Intake.RatePerMinute = rate
		}
	}
	if v := os.Getenv("ORACLE_ADMINS"); v != "" {
		cfg.Access.Admins = strings.Split(v, ",")
	}
	if v := os.Getenv("ORACLE_VALKEY_ADDR"); v != "" {
		cfg.Intake.Valkey.Addr = v
	}
	if v := os.Getenv("ORACLE_VALKEY_PASSWORD"); v != "" {
		cfg.Intake.Valkey.Password = v
	}
	if v := os.Getenv("ORACLE_DEDUPE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Intake.DedupeWindow = d
		}
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
