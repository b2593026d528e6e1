package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/activesave/internal/autosave"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/pubsub"
	"github.com/zjrosen/activesave/internal/watcher"
)

var (
	watchDebounce time.Duration
	watchUnload   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Autosave a document's forms into the cache as the file changes",
	Long: `Track the forms in FILE and push their values into the cache every time
the file settles after a change. The forms loaded at startup are the clean
baseline. With --unload, interrupting the watch persists dirty forms and
clears their namespaces once the server confirms.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watcher.DefaultDebounce, "quiet period before a change is pushed")
	watchCmd.Flags().BoolVar(&watchUnload, "unload", false, "persist and unload tracked forms on exit")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := trackDocument(ctx, rt.session, doc, autosave.TrackOptions{SkipAppend: true}, nil)
	if err != nil {
		return err
	}

	w, err := watcher.New(watcher.Config{Path: path, Debounce: watchDebounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	changes, err := w.Start()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	go reportEvents(ctx, out, rt.session)
	fmt.Fprintf(out, "watching %s (%d forms), press Ctrl+C to stop\n", path, len(ids))
	for {
		select {
		case <-changes:
			if err := syncDocument(ctx, out, rt.session, path); err != nil {
				log.ErrorErr(log.CatWatcher, "sync failed", err, "path", path)
				fmt.Fprintf(cmd.ErrOrStderr(), "sync failed: %v\n", err)
			}
		case <-ctx.Done():
			if !watchUnload {
				return nil
			}
			// the signal context is done; unload on a fresh one
			unloadCtx := context.WithoutCancel(ctx)
			subs := rt.session.Unload(unloadCtx)
			waitCtx, cancel := context.WithTimeout(unloadCtx, cfg.Submit.Timeout+time.Second)
			defer cancel()
			if err := rt.session.Wait(waitCtx); err != nil {
				return fmt.Errorf("waiting for submissions: %w", err)
			}
			return reportSubmissions(out, subs)
		}
	}
}

// syncDocument re-reads path and writes each tracked form's new values into
// the tracked form, then pushes. The baseline from startup is kept, so forms
// that differ from it become dirty.
func syncDocument(ctx context.Context, out io.Writer, s *autosave.Session, path string) error {
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	tracked := s.Tracked()
	for _, id := range tracked {
		f, ok := doc.Form(id)
		if !ok {
			continue
		}
		for name, value := range f.Snapshot() {
			if err := s.SetField(ctx, id, name, value); err != nil {
				return err
			}
		}
	}
	s.Push(ctx, tracked...)
	for _, id := range tracked {
		state, err := s.State(id)
		if err != nil {
			return err
		}
		status := "clean"
		if state.Dirty {
			status = "dirty"
		}
		fmt.Fprintf(out, "pushed %s -> %s (%s)\n", id, state.Key, status)
	}
	return nil
}

// reportEvents prints confirmed saves and late async-select restores until
// ctx ends.
func reportEvents(ctx context.Context, out io.Writer, s *autosave.Session) {
	l := pubsub.NewContinuousListener[autosave.Signal](ctx, s, pubsub.PersistedEvent, pubsub.AppendCompletedAsyncEvent)
	for {
		ev, ok := l.Next()
		if !ok {
			return
		}
		switch ev.Type {
		case pubsub.PersistedEvent:
			fmt.Fprintf(out, "saved %s\n", ev.Payload.FormID)
		case pubsub.AppendCompletedAsyncEvent:
			fmt.Fprintf(out, "restored %s#%s\n", ev.Payload.FormID, ev.Payload.ControlID)
		}
	}
}
