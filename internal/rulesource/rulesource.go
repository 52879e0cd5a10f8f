// Package rulesource loads fingerprinting rules from files selected by glob
// patterns and reloads them when the files change.
package rulesource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
	"github.com/crimson-sun/grouping/internal/metrics"
)

// settleDelay coalesces the burst of events a single save produces.
const settleDelay = 100 * time.Millisecond

// Source is a set of rule file patterns, e.g. "rules/**/*.txt".
type Source struct {
	patterns []string
	compile  func(text string) (*fingerprinting.Rules, error)
}

// Option configures a Source.
type Option func(*Source)

// WithCompiler replaces fingerprinting.Parse, e.g. with a rulecache.Cache
// Get so that saving unchanged files does not recompile them.
func WithCompiler(compile func(text string) (*fingerprinting.Rules, error)) Option {
	return func(s *Source) {
		s.compile = compile
	}
}

// New creates a Source for the given doublestar patterns.
func New(patterns []string, opts ...Option) *Source {
	s := &Source{patterns: patterns, compile: fingerprinting.Parse}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load is New(patterns).Load().
func Load(patterns []string) (*fingerprinting.Rules, error) {
	return New(patterns).Load()
}

// Files returns the matching files in lexical order.
func (s *Source) Files() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range s.patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every matching file, joins them in lexical order and compiles
// the result. Compile failures keep their *fingerprinting.InvalidConfigError.
func (s *Source) Load() (*fingerprinting.Rules, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no rule files match %s", strings.Join(s.patterns, ", "))
	}

	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read rules: %w", err)
		}
		b.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
	}

	rs, err := s.compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", strings.Join(files, ", "), err)
	}
	return rs, nil
}

// Watch reloads the rules whenever a matching file is written, created,
// removed or renamed, and passes each successfully compiled set to onReload.
// A failed reload is logged and the caller keeps its previous rules.
// Watch blocks until ctx is cancelled.
func (s *Source) Watch(ctx context.Context, onReload func(*fingerprinting.Rules)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rulesource: %w", err)
	}
	defer fsw.Close()

	for _, dir := range s.watchDirs() {
		if err := fsw.Add(dir); err != nil {
			slog.Warn("cannot watch rules directory", "dir", dir, "error", err)
		}
	}

	timer := time.NewTimer(settleDelay)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) || !s.matches(ev.Name) {
				continue
			}
			timer.Reset(settleDelay)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rules watcher error", "error", err)
		case <-timer.C:
			s.reload(onReload)
		}
	}
}

func (s *Source) reload(onReload func(*fingerprinting.Rules)) {
	rs, err := s.Load()
	if err != nil {
		metrics.RuleReloads.WithLabelValues(metrics.ReloadFailure).Inc()
		slog.Error("rule reload failed, keeping previous rules", "error", err)
		return
	}
	metrics.RuleReloads.WithLabelValues(metrics.ReloadSuccess).Inc()
	slog.Info("rules reloaded", "rules", len(rs.Rules))
	onReload(rs)
}

func relevant(ev fsnotify.Event) bool {
	return ev.Op&fsnotify.Write != 0 ||
		ev.Op&fsnotify.Create != 0 ||
		ev.Op&fsnotify.Remove != 0 ||
		ev.Op&fsnotify.Rename != 0
}

// matches reports whether path is selected by one of the patterns.
func (s *Source) matches(path string) bool {
	for _, pattern := range s.patterns {
		if ok, _ := doublestar.PathMatch(filepath.Clean(pattern), filepath.Clean(path)); ok {
			return true
		}
	}
	return false
}

// watchDirs returns the static base of every pattern, plus every directory
// below it for recursive patterns.
func (s *Source) watchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(d string) {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	for _, pattern := range s.patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
		base = filepath.FromSlash(base)
		add(base)
		if !strings.Contains(rest, "/") {
			continue
		}
		subdirs, err := doublestar.Glob(os.DirFS(base), "**")
		if err != nil {
			continue
		}
		for _, sub := range subdirs {
			if fi, err := os.Stat(filepath.Join(base, sub)); err == nil && fi.IsDir() {
				add(filepath.Join(base, sub))
			}
		}
	}
	return dirs
}
