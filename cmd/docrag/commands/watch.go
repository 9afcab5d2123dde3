// ABOUTME: CLI command that re-ingests the corpus whenever its files change
// ABOUTME: Debounces fsnotify events and runs ingestion on a single background worker
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/harper/docrag/internal/core"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/rag"
	"github.com/harper/docrag/internal/worker"
)

var (
	watchDebounce time.Duration
	watchPrune    bool
)

// NewWatchCmd creates watch command
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-ingest the corpus when files change",
		Long: `Ingest a directory, then watch it and ingest again whenever a
.md or .txt file is created, written, renamed or removed.

Bursts of changes are collapsed with --debounce. Unchanged documents
keep their cached embeddings, so only edited files are re-embedded.

Examples:
  docrag watch
  docrag watch ./docs --debounce 2s --prune`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "Quiet period before re-ingesting")
	cmd.Flags().BoolVar(&watchPrune, "prune", false, "Remove cached documents deleted from the directory")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchDebounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", watchDebounce)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, logger, err := openService(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	dir := svc.Config().CorpusDir
	if len(args) == 1 {
		dir = args[0]
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &corpusWatcher{
		service:  svc,
		dir:      dir,
		opts:     rag.IngestOptions{Prune: watchPrune || svc.Config().PruneMissing},
		debounce: watchDebounce,
		out:      cmd.OutOrStdout(),
		logger:   logging.Component(logger, "watch"),
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", dir)
	}
	return w.run(ctx, watcher.Events, watcher.Errors)
}

// corpusWatcher turns file events into debounced ingestion runs. At most one
// run is in flight; changes seen during a run schedule exactly one more.
type corpusWatcher struct {
	service  *rag.Service
	dir      string
	opts     rag.IngestOptions
	debounce time.Duration
	out      io.Writer
	logger   *log.Logger
}

func (w *corpusWatcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	pool := worker.NewPool(1, w.logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = pool.Shutdown(shutdownCtx)
	}()

	var (
		pending *worker.Future[*rag.IngestReport]
		timer   *time.Timer
		fire    <-chan time.Time
		again   bool
	)
	start := func() {
		pending = worker.Submit(pool, ctx, func(ctx context.Context) (*rag.IngestReport, error) {
			return w.service.IngestWithOptions(ctx, w.dir, w.opts)
		})
	}
	done := func() <-chan struct{} {
		if pending == nil {
			return nil
		}
		return pending.Done()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !core.IsCorpusFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("change detected", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if pending != nil {
				again = true
				continue
			}
			start()

		case <-done():
			report, err := pending.Wait(ctx)
			pending = nil
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("ingest failed", "err", err)
			} else {
				w.report(report)
			}
			if again {
				again = false
				start()
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *corpusWatcher) report(report *rag.IngestReport) {
	if jsonOutput() {
		_ = writeJSON(w.out, report)
		return
	}
	if quiet {
		return
	}
	fmt.Fprintf(w.out, "[%s] %d document(s), %d embedded, %d cached, %d indexed\n",
		report.StartedAt.Format("15:04:05"), report.Documents, report.Fresh, report.Cached, report.Indexed)
}
