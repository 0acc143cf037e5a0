package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/nao1215/codexcrawl/internal/model"
)

// AllCodexesFile is the aggregate file written by JSONSink.PutAll.
const AllCodexesFile = "all_codexes.json"

// JSONSink writes one <id>.json file per codex and an aggregate
// all_codexes.json array into a directory.
// Output is indented, UTF-8 and not HTML-escaped, so Cyrillic text and
// "<" stay readable.
type JSONSink struct {
	dir string

	indentPrefix string
	indentString string

	logger *slog.Logger
}

// JSONSinkOption configures a JSONSink.
type JSONSinkOption func(*JSONSink)

// WithIndent sets the indentation. An empty indent produces compact output.
func WithIndent(prefix, indent string) JSONSinkOption {
	return func(s *JSONSink) {
		s.indentPrefix = prefix
		s.indentString = indent
	}
}

// WithJSONLogger sets the logger used for "saved" messages.
func WithJSONLogger(logger *slog.Logger) JSONSinkOption {
	return func(s *JSONSink) {
		s.logger = logger
	}
}

// NewJSONSink creates a JSONSink writing into dir with four-space indentation.
func NewJSONSink(dir string, opts ...JSONSinkOption) *JSONSink {
	s := &JSONSink{
		dir:          dir,
		indentString: "    ",
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Put writes <dir>/<id>.json.
func (s *JSONSink) Put(_ context.Context, id string, result *model.CodexResult) error {
	name, err := fileName(id, ".json")
	if err != nil {
		return err
	}

	data, err := s.encode(result)
	if err != nil {
		return fmt.Errorf("failed to encode codex %s: %w", id, err)
	}

	path := filepath.Join(s.dir, name)
	if err := writeFile(path, data); err != nil {
		return err
	}

	s.logger.Info("saved codex", "codex", id, "path", path)
	return nil
}

// PutAll writes <dir>/all_codexes.json with every non-nil result in order.
func (s *JSONSink) PutAll(_ context.Context, outcome model.Outcome) error {
	results := make([]*model.CodexResult, 0, len(outcome))
	for _, r := range outcome {
		if r != nil {
			results = append(results, r)
		}
	}

	data, err := s.encode(results)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	path := filepath.Join(s.dir, AllCodexesFile)
	if err := writeFile(path, data); err != nil {
		return err
	}

	s.logger.Info("saved all codexes", "path", path, "codexes", len(results))
	return nil
}

func (s *JSONSink) encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, v, s.indentPrefix, s.indentString); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJSON writes v to w as JSON without HTML escaping, followed by a newline.
func EncodeJSON(w io.Writer, v any, prefix, indent string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent != "" || prefix != "" {
		enc.SetIndent(prefix, indent)
	}
	return enc.Encode(v)
}

// ReadCodex decodes a codex file written by JSONSink.Put.
func ReadCodex(r io.Reader) (*model.CodexResult, error) {
	var result model.CodexResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode codex: %w", err)
	}
	return &result, nil
}
