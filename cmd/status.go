package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/zjrosen/activesave/internal/autosave"
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/keys"
	"github.com/zjrosen/activesave/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status FILE",
	Short: "Show how restoring from the cache would change a document",
	Long: `For each form in FILE, print its cache namespace and a field-level diff
between the document and the document restore would produce. Neither the
document nor the cache is modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	current, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	restored, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx := cmd.Context()
	// restore into a scratch copy so the real cache is left untouched
	scratch := store.New(store.NewMemory())
	for _, f := range restored.Forms() {
		key := keys.Derive(cfg.Scope, f.Subscope())
		if values := rt.cache.Get(ctx, key); values != nil {
			if err := scratch.Set(ctx, key, values); err != nil {
				return err
			}
		}
	}
	preview := autosave.New(scratch, nil, autosave.WithDefaultScope(cfg.Scope))
	defer preview.Close()
	if _, err := trackDocument(ctx, preview, restored, autosave.TrackOptions{}, nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range current.Forms() {
		if f.ID() == "" {
			continue
		}
		after, _ := restored.Form(f.ID())
		if err := printFormStatus(ctx, out, rt, f, after); err != nil {
			return err
		}
	}
	return nil
}

func printFormStatus(ctx context.Context, w io.Writer, rt *runtime, before, after *form.Form) error {
	key := keys.Derive(cfg.Scope, before.Subscope())
	header := fmt.Sprintf("%s\t%s", before.ID(), key)
	if rt.updatedAt != nil {
		if at, ok, err := rt.updatedAt(ctx, key); err != nil {
			return err
		} else if ok {
			header += "\tsaved " + at.Local().Format(time.RFC3339)
		}
	}

	diff := fieldDiff(fieldLines(before), fieldLines(after))
	if diff == "" {
		fmt.Fprintf(w, "%s\tclean\n", header)
		return nil
	}
	fmt.Fprintf(w, "%s\tchanged\n%s", header, diff)
	return nil
}

func fieldLines(f *form.Form) string {
	var b strings.Builder
	for _, fld := range f.Fields() {
		fmt.Fprintf(&b, "%s=%q\n", fld.Name, fld.Value)
	}
	return b.String()
}

// fieldDiff returns a line diff of a and b with -/+ markers, or "" when equal.
func fieldDiff(a, b string) string {
	if a == b {
		return ""
	}
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		var marker string
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			marker = "  "
		case diffmatchpatch.DiffDelete:
			marker = "- "
		case diffmatchpatch.DiffInsert:
			marker = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(marker + line)
		}
	}
	return out.String()
}
