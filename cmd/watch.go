package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/corpeningc/catsync/internal/ui"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show status live as catalog files change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		w := newCatalogWatcher(app.Repo().WorkDir, app.Registry().Paths(), watchInterval)
		w.Start(ctx)
		defer w.Stop()

		load := func() (ui.Snapshot, error) {
			st, err := app.GetStatus(ctx)
			if err != nil {
				return ui.Snapshot{}, err
			}
			s, err := app.GetConflictDetails(ctx)
			if err != nil {
				return ui.Snapshot{}, err
			}
			return ui.Snapshot{Status: st, Conflict: s}, nil
		}

		if interactive() {
			return ui.RunStatusWatch(load, w.Events())
		}

		// plain mode: print a fresh status after every change
		show := func() error {
			s, err := load()
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), s, func() string {
				out := ui.RenderStatus(s.Status)
				if s.Conflict != nil {
					out += "\n" + ui.RenderConflicts(s.Conflict, time.Now())
				}
				return out
			})
		}
		if err := show(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n-- %s changed at %s --\n", ev.Path, time.Now().Format("15:04:05"))
				if err := show(); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "poll", 2*time.Second, "poll interval when file events are unavailable")
}

// catalogWatcher reports changes to catalog files. It falls back to polling
// modification times when fsnotify cannot watch the directories.
type catalogWatcher struct {
	files        map[string]string // absolute path -> catalog path
	watcher      *fsnotify.Watcher
	pollingMode  bool
	pollInterval time.Duration
	events       chan ui.FileEventMsg
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	lastModTimes map[string]time.Time
}

func newCatalogWatcher(dir string, paths []string, pollInterval time.Duration) *catalogWatcher {
	w := &catalogWatcher{
		files:        make(map[string]string, len(paths)),
		pollInterval: pollInterval,
		events:       make(chan ui.FileEventMsg, 1),
		lastModTimes: make(map[string]time.Time),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs := filepath.Join(dir, filepath.FromSlash(p))
		w.files[abs] = p
		dirs[filepath.Dir(abs)] = true
		if stat, err := os.Stat(abs); err == nil {
			w.lastModTimes[abs] = stat.ModTime()
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.pollingMode = true
		return w
	}
	// directories, not files: the store replaces files by rename
	watchedAny := false
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			logger.Debug("cannot watch directory", slog.String("dir", d), slog.String("error", err.Error()))
			continue
		}
		watchedAny = true
	}
	if !watchedAny {
		_ = watcher.Close()
		w.pollingMode = true
		return w
	}
	w.watcher = watcher
	return w
}

func (w *catalogWatcher) Events() <-chan ui.FileEventMsg {
	return w.events
}

func (w *catalogWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	if w.pollingMode {
		go w.poll(ctx)
	} else {
		go w.watch(ctx)
	}
}

func (w *catalogWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *catalogWatcher) notify(path string) {
	select {
	case w.events <- ui.FileEventMsg{Path: path}:
	default:
		// an event is already pending
	}
}

func (w *catalogWatcher) watch(ctx context.Context) {
	defer w.wg.Done()

	// Debounce: editors and the store touch a file several times per save
	var lastEvent time.Time
	debounceWindow := 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			path, ok := w.files[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			now := time.Now()
			if now.Sub(lastEvent) < debounceWindow {
				continue
			}
			lastEvent = now
			w.notify(path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Debug("watch error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return
		}
	}
}

func (w *catalogWatcher) poll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for abs, path := range w.files {
				var mod time.Time
				if stat, err := os.Stat(abs); err == nil {
					mod = stat.ModTime()
				}
				if !mod.Equal(w.lastModTimes[abs]) {
					w.lastModTimes[abs] = mod
					w.notify(path)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
