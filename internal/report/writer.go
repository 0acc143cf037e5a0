package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/codexcrawl/internal/model"
)

// ErrInvalidCodexID is returned when a codex ID cannot be used as a file name.
var ErrInvalidCodexID = errors.New("invalid codex id")

// Sink receives codex results as they complete and the full outcome at the end.
type Sink interface {
	Put(ctx context.Context, id string, result *model.CodexResult) error
	PutAll(ctx context.Context, outcome model.Outcome) error
}

// MultiSink delivers results to several sinks.
// Every sink is called even when an earlier one fails; errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a Sink that forwards to all provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Put forwards result to every sink.
func (m *MultiSink) Put(ctx context.Context, id string, result *model.CodexResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Put(ctx, id, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PutAll forwards outcome to every sink.
func (m *MultiSink) PutAll(ctx context.Context, outcome model.Outcome) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.PutAll(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// fileName returns id+ext, refusing IDs that would escape the output directory.
func fileName(id, ext string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCodexID, id)
	}
	return id + ext, nil
}

// writeFile replaces path atomically: data goes to a temporary file in the
// same directory which is then renamed over path.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // output files are meant to be shared
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
