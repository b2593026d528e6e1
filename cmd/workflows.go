package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/activesave/internal/autosave"
)

var (
	restoreOut     string
	restoreInPlace bool
	targetForms    []string
)

var restoreCmd = &cobra.Command{
	Use:   "restore FILE",
	Short: "Fill a document's forms from the cache",
	Long: `Track every form in FILE, apply its cached values and snapshot the result
back into the cache. The restored document is written to stdout unless
--output or --in-place is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

var pushCmd = &cobra.Command{
	Use:   "push FILE",
	Short: "Snapshot a document's forms into the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

var persistCmd = &cobra.Command{
	Use:   "persist FILE",
	Short: "Push and submit a document's forms",
	Long: `Snapshot the forms in FILE into the cache and submit each to its action
endpoint. The document is treated as holding unsaved edits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubmissions(cmd, args[0], func(ctx context.Context, s *autosave.Session, ids []string) []*autosave.Submission {
			return s.Persist(ctx, ids...)
		})
	},
}

var unloadCmd = &cobra.Command{
	Use:   "unload FILE",
	Short: "Persist a document's forms and clear their cache on success",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubmissions(cmd, args[0], func(ctx context.Context, s *autosave.Session, ids []string) []*autosave.Submission {
			return s.Unload(ctx, ids...)
		})
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreOut, "output", "o", "-", `write the restored document here ("-" for stdout)`)
	restoreCmd.Flags().BoolVarP(&restoreInPlace, "in-place", "i", false, "overwrite FILE with the restored document")
	for _, c := range []*cobra.Command{pushCmd, persistCmd, unloadCmd} {
		c.Flags().StringSliceVarP(&targetForms, "form", "f", nil, "only these form ids (repeatable)")
	}
	rootCmd.AddCommand(restoreCmd, pushCmd, persistCmd, unloadCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
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

	if _, err := trackDocument(cmd.Context(), rt.session, doc, autosave.TrackOptions{}, nil); err != nil {
		return err
	}
	out := restoreOut
	if restoreInPlace {
		out = path
	}
	return writeDocument(doc, out, cmd.OutOrStdout())
}

func runPush(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ids, err := trackDocument(cmd.Context(), rt.session, doc, autosave.TrackOptions{SkipAppend: true}, targetForms)
	if err != nil {
		return err
	}
	for _, id := range ids {
		state, err := rt.session.State(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, state.Key)
	}
	return nil
}

type submitFunc func(ctx context.Context, s *autosave.Session, ids []string) []*autosave.Submission

func runSubmissions(cmd *cobra.Command, path string, run submitFunc) error {
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

	ids, err := trackDocument(ctx, rt.session, doc, autosave.TrackOptions{SkipAppend: true, Dirty: true}, targetForms)
	if err != nil {
		return err
	}
	subs := run(ctx, rt.session, ids)
	if err := rt.session.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for submissions: %w", err)
	}
	return reportSubmissions(cmd.OutOrStdout(), subs)
}

func reportSubmissions(w io.Writer, subs []*autosave.Submission) error {
	failed := 0
	for _, sub := range subs {
		<-sub.Done()
		if err := sub.Err(); err != nil {
			fmt.Fprintf(w, "%s\t%s\t%v\n", sub.FormID(), sub.Outcome(), err)
		} else {
			fmt.Fprintf(w, "%s\t%s\n", sub.FormID(), sub.Outcome())
		}
		if sub.Outcome() == autosave.Failed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(subs))
	}
	return nil
}
