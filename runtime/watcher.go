// Package runtime runs the agent unattended over an inbox directory of
// flyer images.
package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aschepis/flyercal/agent"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// imageExts lists the inbox files picked up by the watcher.
var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// Runner processes one image. *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, image string, maxSteps int, force bool) (*agent.Result, error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Dir string
	// OutDir receives <name>.ics files. Defaults to Dir.
	OutDir   string
	Schedule string
	MaxSteps int
	Force    bool
	// RunTimeout bounds a single flyer. Zero means no limit.
	RunTimeout time.Duration
}

// Watcher scans an inbox on a schedule and writes a calendar next to every
// new flyer.
type Watcher struct {
	runner   Runner
	cfg      WatcherConfig
	schedule Schedule
	logger   zerolog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // path -> mod time already handled
}

// NewWatcher validates cfg and creates a Watcher.
func NewWatcher(runner Runner, cfg WatcherConfig, logger zerolog.Logger) (*Watcher, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is not set")
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	cfg.OutDir = lo.CoalesceOrEmpty(cfg.OutDir, cfg.Dir)
	return &Watcher{
		runner:   runner,
		cfg:      cfg,
		schedule: sched,
		logger:   logger.With().Str("component", "watcher").Logger(),
		seen:     make(map[string]time.Time),
	}, nil
}

// Start scans immediately and then on every activation of the schedule
// until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info().Str("dir", w.cfg.Dir).Str("out_dir", w.cfg.OutDir).Str("schedule", w.cfg.Schedule).Msg("Starting watcher")
	if err := os.MkdirAll(w.cfg.OutDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for {
		if _, err := w.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("Watcher stopped: context cancelled")
				return nil
			}
			w.logger.Error().Err(err).Msg("Scan failed")
		}

		now := time.Now()
		wait := w.schedule.Next(now).Sub(now)
		w.logger.Debug().Dur("wait", wait).Msg("Waiting for next scan")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info().Msg("Watcher stopped: context cancelled")
			return nil
		case <-timer.C:
		}
	}
}

// Scan processes every pending flyer once and returns how many calendars
// were written. A flyer is pending when it has no .ics yet and has not been
// handled at its current modification time. A flyer whose run timed out stays
// pending. Errors on single flyers are logged; only a failure to read the
// inbox or a cancelled ctx is returned.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	pending, err := w.pending()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.Info().Int("flyers", len(pending)).Msg("Found new flyers")

	written := 0
	for _, f := range pending {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		ok, err := w.process(ctx, f.path)
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			if agent.IsRecoverable(err) {
				w.logger.Warn().Err(err).Str("image", f.path).Msg("Flyer timed out, retrying on next scan")
				continue
			}
			w.logger.Error().Err(err).Str("image", f.path).Msg("Failed to process flyer")
		}
		if ok {
			written++
		}
		w.mu.Lock()
		w.seen[f.path] = f.modTime
		w.mu.Unlock()
	}
	return written, nil
}

type flyer struct {
	path    string
	modTime time.Time
}

func (w *Watcher) pending() ([]flyer, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.cfg.Dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []flyer
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if seen, ok := w.seen[path]; ok && seen.Equal(info.ModTime()) {
			continue
		}
		if _, err := os.Stat(w.OutputPath(path)); err == nil {
			continue
		}
		out = append(out, flyer{path: path, modTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

func (w *Watcher) process(ctx context.Context, path string) (bool, error) {
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	log := w.logger.With().Str("image", path).Logger()
	log.Info().Msg("Processing flyer")

	result, err := w.runner.Run(ctx, path, w.cfg.MaxSteps, w.cfg.Force)
	if err != nil {
		return false, err
	}
	if !result.HasCalendar() {
		log.Info().Str("outcome", string(result.Outcome)).Str("event", result.Event).Msg("No calendar produced")
		return false, nil
	}

	out := w.OutputPath(path)
	if err := os.WriteFile(out, []byte(result.Calendar), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", out, err)
	}
	log.Info().Str("calendar", out).Str("event", result.Event).Bool("cached", result.Cached).Msg("Calendar written")
	return true, nil
}

// OutputPath is where the calendar for image is written.
func (w *Watcher) OutputPath(image string) string {
	base := filepath.Base(image)
	return filepath.Join(w.cfg.OutDir, strings.TrimSuffix(base, filepath.Ext(base))+".ics")
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return lo.Contains(imageExts, strings.ToLower(filepath.Ext(name)))
}
