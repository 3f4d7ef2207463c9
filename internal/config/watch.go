package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path whenever it changes and hands the
// result to onChange. It runs until ctx is cancelled.
//
// The parent directory is watched so that editors which save by renaming a
// temp file over path keep being followed. A reload that fails to parse or
// validate is logged and dropped. A reload that changes nothing the running
// process reads live is not passed on; restart-only changes are logged.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	// A nil current config means the next valid load is always applied.
	current, _ := Load(path)
	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload rejected, plan unchanged", "path", path, "err", err)
				continue
			}

			live, restart := Changes(current, next)
			if len(restart) > 0 {
				slog.Warn("config: fields need a restart to take effect", "fields", restart)
			}
			current = next
			if len(live) == 0 {
				slog.Debug("config: reload changed no live fields", "path", path)
				continue
			}
			slog.Info("config: reloaded", "changed", live, "symbols", next.Catalog.Symbols())
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// Changes lists the fields that differ between prev and next, split into
// those applied on reload and those read only at startup. A nil prev counts
// every live field as changed.
func Changes(prev, next *Config) (live, restart []string) {
	if prev == nil {
		return []string{"catalog", "layout", "schedule", "source", "log"}, nil
	}

	if !slices.Equal(prev.Catalog, next.Catalog) {
		live = append(live, "catalog")
	}
	if prev.Layout != next.Layout {
		live = append(live, "layout")
	}

	ps, ns := prev.Schedule, next.Schedule
	if ps.Timezone != ns.Timezone || ps.BusinessDayInterval != ns.BusinessDayInterval || ps.WeekendInterval != ns.WeekendInterval {
		live = append(live, "schedule")
	}
	if ps.Backoff() != ns.Backoff() {
		restart = append(restart, "schedule.backoff")
	}
	if ps.WarmupDelay != ns.WarmupDelay {
		restart = append(restart, "schedule.warmup_delay")
	}
	if ps.CycleTimeout != ns.CycleTimeout {
		restart = append(restart, "schedule.cycle_timeout")
	}
	if ps.ShutdownGrace != ns.ShutdownGrace {
		restart = append(restart, "schedule.shutdown_grace")
	}

	pr, nr := prev.Source, next.Source
	if pr.URL != nr.URL || pr.ReadySelector != nr.ReadySelector || pr.NavigationTimeout != nr.NavigationTimeout ||
		pr.ReadyTimeout != nr.ReadyTimeout || pr.SettleDelay != nr.SettleDelay {
		live = append(live, "source")
	}
	if pr.Driver != nr.Driver {
		restart = append(restart, "source.driver")
	}
	if pr.UserAgent != nr.UserAgent || pr.BlockResources != nr.BlockResources || pr.Headless != nr.Headless || pr.ExecPath != nr.ExecPath {
		restart = append(restart, "source.session")
	}
	if pr.RecycleAt != nr.RecycleAt {
		restart = append(restart, "source.recycle_at")
	}

	if prev.Log != next.Log {
		live = append(live, "log")
	}
	if prev.Server != next.Server {
		restart = append(restart, "server")
	}
	return live, restart
}
