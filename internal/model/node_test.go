package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestParseNodeKind tests kind decoding.
func TestParseNodeKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    NodeKind
		wantErr bool
	}{
		{name: "article", input: "article", want: KindArticle},
		{name: "section", input: "section", want: KindSection},
		{name: "chapter", input: "chapter", want: KindChapter},
		{name: "unknown", input: "part", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNodeKind(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownNodeKind) {
					t.Errorf("expected ErrUnknownNodeKind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, expected %q", got, tt.want)
			}
		})
	}
}

// TestNewArticle tests article construction and the content invariant.
func TestNewArticle(t *testing.T) {
	t.Parallel()

	d := NodeDescriptor{Title: "Статья 1", URL: "https://example.com/gk/st-1/", Kind: KindArticle}

	t.Run("keeps content", func(t *testing.T) {
		t.Parallel()

		a := NewArticle(d, []string{"one", "two"})
		if diff := cmp.Diff([]string{"one", "two"}, a.Content); diff != "" {
			t.Errorf("content mismatch (-want +got):\n%s", diff)
		}
		if a.Failed() || a.Empty() {
			t.Error("expected a regular article")
		}
	})

	t.Run("empty content becomes not found sentinel", func(t *testing.T) {
		t.Parallel()

		a := NewArticle(d, nil)
		if len(a.Content) != 1 || a.Content[0] != ContentNotFound {
			t.Errorf("got %v, expected [%q]", a.Content, ContentNotFound)
		}
		if !a.Empty() {
			t.Error("expected Empty() to be true")
		}
	})

	t.Run("failed article carries fetch error sentinel", func(t *testing.T) {
		t.Parallel()

		a := NewFailedArticle(d)
		if !a.Failed() {
			t.Errorf("expected Failed() to be true, content %v", a.Content)
		}
		if a.Title != d.Title || a.URL != d.URL {
			t.Error("expected descriptor fields to be copied")
		}
	})
}

// TestNewSection tests internal node construction.
func TestNewSection(t *testing.T) {
	t.Parallel()

	t.Run("nil children become empty slice", func(t *testing.T) {
		t.Parallel()

		s := NewSection(NodeDescriptor{Title: "Раздел I", Kind: KindSection}, nil)
		if s.Children == nil || len(s.Children) != 0 {
			t.Errorf("expected empty non-nil children, got %#v", s.Children)
		}
		if s.Kind() != KindSection {
			t.Errorf("got kind %q, expected section", s.Kind())
		}
	})

	t.Run("article kind falls back to chapter", func(t *testing.T) {
		t.Parallel()

		s := NewSection(NodeDescriptor{Kind: KindArticle}, nil)
		if s.Kind() != KindChapter {
			t.Errorf("got kind %q, expected chapter", s.Kind())
		}
	})
}

// TestArticleContentHash tests that the hash reflects the paragraphs.
func TestArticleContentHash(t *testing.T) {
	t.Parallel()

	a := &Article{Content: []string{"a", "b"}}
	b := &Article{Content: []string{"a", "b"}}
	c := &Article{Content: []string{"ab"}}

	if a.ContentHash() != b.ContentHash() {
		t.Error("expected equal hashes for equal content")
	}
	if a.ContentHash() == c.ContentHash() {
		t.Error("expected paragraph boundaries to affect the hash")
	}
	if len(a.ContentHash()) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a.ContentHash()))
	}
}

// TestNodeJSON tests the tagged JSON layout.
func TestNodeJSON(t *testing.T) {
	t.Parallel()

	tree := []Node{
		&Article{Title: "A", URL: "https://x/a/", Content: []string{"текст"}},
		&Section{Type: KindSection, Title: "B", URL: "https://x/b/", Children: []Node{
			&Article{Title: "C", URL: "https://x/c/", Content: []string{ContentFetchError}},
		}},
		&Section{Type: KindChapter, Title: "D", URL: "https://x/d/"},
	}

	t.Run("writes type tags and field names", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(tree)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := string(data)

		for _, want := range []string{
			`"type":"article"`,
			`"type":"section"`,
			`"type":"chapter"`,
			`"content":["текст"]`,
			`"children":[{"type":"article","title":"C"`,
			`"children":[]`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %s in output: %s", want, out)
			}
		}
	})

	t.Run("decodes back into the same tree", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(tree[1])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := UnmarshalNode(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(tree[1], got); diff != "" {
			t.Errorf("tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		t.Parallel()

		_, err := UnmarshalNode([]byte(`{"type":"part","title":"x"}`))
		if !errors.Is(err, ErrUnknownNodeKind) {
			t.Errorf("expected ErrUnknownNodeKind, got %v", err)
		}
	})
}
