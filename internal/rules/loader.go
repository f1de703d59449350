package rules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads detection rules from a directory of YAML files and keeps an
// in-memory snapshot, optionally hot-reloading when files change. It also
// serves as the engine's rule store: ListActive returns the active rules
// already sorted by priority descending.
type Loader struct {
	rulesDir   string
	hotReload  bool
	debounceMs int
	logger     *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	watchers []chan struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a rule loader for the given directory.
func NewLoader(rulesDir string, hotReload bool, debounceMs int, logger *slog.Logger) *Loader {
	return &Loader{
		rulesDir:   rulesDir,
		hotReload:  hotReload,
		debounceMs: debounceMs,
		logger:     logger,
	}
}

// LoadSnapshot loads all rule files, skipping inactive and invalid rules,
// and replaces the current snapshot.
func (l *Loader) LoadSnapshot() (*Snapshot, error) {
	l.logger.Info("loading rules snapshot", "rules_dir", l.rulesDir)

	files, err := l.ruleFiles()
	if err != nil {
		return nil, fmt.Errorf("read rules directory: %w", err)
	}

	ruleMap := make(map[string]Rule)
	for _, file := range files {
		fileRules, err := loadRulesFromFile(file)
		if err != nil {
			l.logger.Warn("failed to load rules file", "file", file, "error", err)
			continue
		}
		for _, rule := range fileRules {
			if !rule.IsActive {
				l.logger.Debug("skipping inactive rule", "rule_id", rule.ID, "file", file)
				continue
			}
			if err := rule.Validate(); err != nil {
				l.logger.Warn("invalid rule skipped", "rule_id", rule.ID, "file", file, "error", err)
				continue
			}
			if prev, exists := ruleMap[rule.ID]; exists {
				l.logger.Info("rule ID conflict, later file wins",
					"rule_id", rule.ID, "new_file", file, "old_file", prev.SourceFile)
			}
			rule.SourceFile = file
			ruleMap[rule.ID] = rule
		}
	}

	all := make([]Rule, 0, len(ruleMap))
	for _, rule := range ruleMap {
		all = append(all, rule)
	}
	// Evaluation order: priority descending, ID as a stable tie-breaker.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].ID < all[j].ID
	})

	snapshot := &Snapshot{Rules: all, Version: time.Now().UnixNano()}

	l.mu.Lock()
	l.snapshot = snapshot
	l.mu.Unlock()

	l.logger.Info("rules snapshot loaded", "active_rules", len(all), "version", snapshot.Version)
	l.notifyWatchers()
	return snapshot, nil
}

// GetSnapshot returns a copy of the current snapshot.
func (l *Loader) GetSnapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshot == nil {
		return &Snapshot{Rules: []Rule{}}
	}
	out := make([]Rule, len(l.snapshot.Rules))
	copy(out, l.snapshot.Rules)
	return &Snapshot{Rules: out, Version: l.snapshot.Version}
}

// ListActive returns the active rules in evaluation order. It satisfies
// the scoring pipeline's rule store dependency.
func (l *Loader) ListActive(ctx context.Context) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshot == nil {
		return nil, fmt.Errorf("rules snapshot not loaded")
	}
	out := make([]Rule, len(l.snapshot.Rules))
	copy(out, l.snapshot.Rules)
	return out, nil
}

// Subscribe returns a channel that receives a tick whenever the snapshot
// is replaced.
func (l *Loader) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()
	return ch
}

// WatchForChanges starts the fsnotify watcher over the rules directory,
// reloading with debounce. No-op when hot reload is disabled.
func (l *Loader) WatchForChanges() error {
	if !l.hotReload {
		l.logger.Info("rules hot reload disabled")
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	if err := w.Add(l.rulesDir); err != nil {
		w.Close()
		return fmt.Errorf("rules watcher add %s: %w", l.rulesDir, err)
	}
	l.watcher = w
	l.done = make(chan struct{})

	go l.watchLoop()
	l.logger.Info("watching rules directory", "rules_dir", l.rulesDir, "debounce_ms", l.debounceMs)
	return nil
}

// Close stops the file watcher, if one is running.
func (l *Loader) Close() error {
	if l.done != nil {
		close(l.done)
		l.done = nil
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *Loader) watchLoop() {
	var timer *time.Timer
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isRuleFile(ev.Name) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(time.Duration(l.debounceMs)*time.Millisecond, func() {
				l.logger.Info("rules directory changed, reloading")
				if _, err := l.LoadSnapshot(); err != nil {
					l.logger.Error("failed to reload rules", "error", err)
				}
			})
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("rules watcher error", "error", err)
		case <-l.done:
			return
		}
	}
}

func (l *Loader) notifyWatchers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ruleFiles returns the YAML files under the rules directory, sorted by
// name for deterministic conflict resolution.
func (l *Loader) ruleFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.rulesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isRuleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadRulesFromFile parses one YAML file holding either a single rule or
// a list of rules.
func loadRulesFromFile(filename string) ([]Rule, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var single Rule
	if err := yaml.Unmarshal(data, &single); err == nil && single.ID != "" {
		return []Rule{single}, nil
	}

	var list []Rule
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return list, nil
}
