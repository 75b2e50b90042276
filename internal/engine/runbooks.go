package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-oracle/internal/models"
)

// Runbooks supplies operator-written hints for alerts that match known patterns.
type Runbooks struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	rules []Rule
}

// Rule attaches hints to alerts matching every populated criterion.
type Rule struct {
	ID    string    `yaml:"id"`
	Match RuleMatch `yaml:"match"`
	Hints []string  `yaml:"hints"`
}

// RuleMatch defines optional attributes for rule matching.
type RuleMatch struct {
	Level         string   `yaml:"level"`
	TitleContains []string `yaml:"title_contains"`
	SourceChannel string   `yaml:"source_channel"`
	Field         string   `yaml:"field"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRunbooks loads rules from path. An empty path yields a nil *Runbooks; a
// missing file yields an empty rule set that is filled once the file appears.
func NewRunbooks(path string, logger *slog.Logger) (*Runbooks, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runbooks{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the rule file.
func (r *Runbooks) Reload() error {
	if r == nil {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.swap(nil)
			return nil
		}
		return err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	r.swap(cfg.Rules)
	return nil
}

func (r *Runbooks) swap(rules []Rule) {
	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()
}

// Len returns the number of loaded rules.
func (r *Runbooks) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Hints returns the de-duplicated hints of every rule matching alert.
func (r *Runbooks) Hints(alert models.AlertEvent) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]string, 0)
	for _, rule := range r.rules {
		if rule.Match.Level != "" && !strings.EqualFold(rule.Match.Level, string(alert.Level)) {
			continue
		}
		if rule.Match.SourceChannel != "" && !strings.EqualFold(rule.Match.SourceChannel, alert.SourceChannel) {
			continue
		}
		if rule.Match.Field != "" {
			if _, ok := alert.Field(rule.Match.Field); !ok {
				continue
			}
		}
		if len(rule.Match.TitleContains) > 0 && !titleContains(alert.Title, rule.Match.TitleContains) {
			continue
		}
		matched = appendUnique(matched, rule.Hints...)
	}
	return matched
}

// Watch reloads the rules whenever the file changes, until ctx is done.
func (r *Runbooks) Watch(ctx context.Context) error {
	if r == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("runbook reload failed", slog.String("path", r.path), slog.Any("error", err))
				continue
			}
			r.logger.Info("runbooks reloaded", slog.String("path", r.path), slog.Int("rules", r.Len()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("runbook watcher error", slog.Any("error", err))
		}
	}
}

func titleContains(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
