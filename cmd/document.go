package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zjrosen/activesave/internal/autosave"
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/log"
)

func loadDocument(path string) (*form.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer func() { _ = f.Close() }()

	doc, err := form.ParseDocument(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// trackDocument tracks every form with an id, optionally restricted to only.
// Forms without an id cannot be tracked and are skipped.
func trackDocument(ctx context.Context, s *autosave.Session, doc *form.Document, opts autosave.TrackOptions, only []string) ([]string, error) {
	want := make(map[string]bool, len(only))
	for _, id := range only {
		want[id] = true
	}

	var ids []string
	for _, f := range doc.Forms() {
		id := f.ID()
		if id == "" {
			log.Warn(log.CatForm, "skipping form without id")
			continue
		}
		if len(want) > 0 && !want[id] {
			continue
		}
		if err := s.Track(ctx, f, opts); err != nil {
			return nil, fmt.Errorf("tracking form %s: %w", id, err)
		}
		ids = append(ids, id)
	}
	for id := range want {
		if _, ok := doc.Form(id); !ok {
			return nil, fmt.Errorf("form %q not found", id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no trackable forms: forms need an id attribute")
	}
	return ids, nil
}

// writeDocument renders doc to out: "-" is w, "" leaves nothing written.
// Files are replaced atomically.
func writeDocument(doc *form.Document, out string, w io.Writer) error {
	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		return fmt.Errorf("rendering document: %w", err)
	}
	switch out {
	case "":
		return nil
	case "-":
		_, err := w.Write(buf.Bytes())
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing document: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", out, err)
	}
	return nil
}
