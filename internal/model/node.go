package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NodeKind classifies an entry of a codex tree.
type NodeKind string

const (
	// KindArticle is a leaf whose page holds the legal text.
	KindArticle NodeKind = "article"
	// KindSection is an internal node listed with the section marker.
	KindSection NodeKind = "section"
	// KindChapter is any other internal node.
	KindChapter NodeKind = "chapter"
)

// Sentinel article contents. An article never has an empty content list;
// one of these is substituted when no paragraphs could be obtained.
const (
	// ContentFetchError marks an article whose page could not be fetched.
	ContentFetchError = "Error fetching content"
	// ContentNotFound marks an article whose page had no body paragraphs.
	ContentNotFound = "No content found"
)

// ErrUnknownNodeKind is returned when decoding a node with an unrecognized "type".
var ErrUnknownNodeKind = errors.New("unknown node kind")

// IsLeaf reports whether nodes of this kind carry content instead of children.
func (k NodeKind) IsLeaf() bool {
	return k == KindArticle
}

// String returns the serialized form of the kind.
func (k NodeKind) String() string {
	return string(k)
}

// ParseNodeKind converts a serialized kind back into a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	switch NodeKind(s) {
	case KindArticle, KindSection, KindChapter:
		return NodeKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNodeKind, s)
	}
}

// NodeDescriptor is one child entry extracted from a listing page.
// Descriptors are produced by a parser and never mutated afterwards.
type NodeDescriptor struct {
	Title string
	URL   string
	Kind  NodeKind
}

// Node is either an *Article or a *Section.
type Node interface {
	// Kind returns the classification of the node.
	Kind() NodeKind
	// Descriptor returns the title, URL and kind of the node.
	Descriptor() NodeDescriptor

	node()
}

// Article is a leaf of a codex tree.
type Article struct {
	Title   string
	URL     string
	Content []string
}

// NewArticle builds an article from its descriptor. An empty content
// list is replaced by ContentNotFound.
func NewArticle(d NodeDescriptor, content []string) *Article {
	if len(content) == 0 {
		content = []string{ContentNotFound}
	}
	return &Article{Title: d.Title, URL: d.URL, Content: content}
}

// NewFailedArticle builds an article whose page could not be fetched.
func NewFailedArticle(d NodeDescriptor) *Article {
	return &Article{Title: d.Title, URL: d.URL, Content: []string{ContentFetchError}}
}

// Kind implements Node.
func (a *Article) Kind() NodeKind { return KindArticle }

// Descriptor implements Node.
func (a *Article) Descriptor() NodeDescriptor {
	return NodeDescriptor{Title: a.Title, URL: a.URL, Kind: KindArticle}
}

func (a *Article) node() {}

// Failed reports whether the article content is the fetch error sentinel.
func (a *Article) Failed() bool {
	return len(a.Content) == 1 && a.Content[0] == ContentFetchError
}

// Empty reports whether the article content is the not-found sentinel.
func (a *Article) Empty() bool {
	return len(a.Content) == 1 && a.Content[0] == ContentNotFound
}

// ContentHash returns the hex SHA-256 of the article text.
// Paragraphs are joined with newlines before hashing.
func (a *Article) ContentHash() string {
	h := sha256.Sum256([]byte(strings.Join(a.Content, "\n")))
	return hex.EncodeToString(h[:])
}

// Section is an internal node of a codex tree (section or chapter).
// Children appear in the order they were listed on the page.
type Section struct {
	Type     NodeKind
	Title    string
	URL      string
	Children []Node
}

// NewSection builds an internal node from its descriptor.
func NewSection(d NodeDescriptor, children []Node) *Section {
	kind := d.Kind
	if kind == "" || kind == KindArticle {
		kind = KindChapter
	}
	if children == nil {
		children = []Node{}
	}
	return &Section{Type: kind, Title: d.Title, URL: d.URL, Children: children}
}

// Kind implements Node.
func (s *Section) Kind() NodeKind { return s.Type }

// Descriptor implements Node.
func (s *Section) Descriptor() NodeDescriptor {
	return NodeDescriptor{Title: s.Title, URL: s.URL, Kind: s.Type}
}

func (s *Section) node() {}

type articleJSON struct {
	Type    NodeKind `json:"type"`
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Content []string `json:"content"`
}

type sectionJSON struct {
	Type     NodeKind          `json:"type"`
	Title    string            `json:"title"`
	URL      string            `json:"url"`
	Children []json.RawMessage `json:"children"`
}

// MarshalJSON writes {"type":"article","title","url","content"}.
func (a Article) MarshalJSON() ([]byte, error) {
	content := a.Content
	if len(content) == 0 {
		content = []string{ContentNotFound}
	}
	return marshalJSON(articleJSON{Type: KindArticle, Title: a.Title, URL: a.URL, Content: content})
}

// MarshalJSON writes {"type":"section"|"chapter","title","url","children"}.
func (s Section) MarshalJSON() ([]byte, error) {
	children, err := marshalNodes(s.Children)
	if err != nil {
		return nil, err
	}
	kind := s.Type
	if kind == "" {
		kind = KindChapter
	}
	return marshalJSON(sectionJSON{Type: kind, Title: s.Title, URL: s.URL, Children: children})
}

func marshalNodes(nodes []Node) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(nodes))
	for i, n := range nodes {
		data, err := marshalJSON(n)
		if err != nil {
			return nil, err
		}
		out[i] = data
	}
	return out, nil
}

// UnmarshalNode decodes a single "type"-tagged node.
func UnmarshalNode(data []byte) (Node, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	kind, err := ParseNodeKind(head.Type)
	if err != nil {
		return nil, err
	}

	if kind.IsLeaf() {
		var a articleJSON
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		return &Article{Title: a.Title, URL: a.URL, Content: a.Content}, nil
	}

	var s sectionJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	children, err := unmarshalNodes(s.Children)
	if err != nil {
		return nil, err
	}
	return &Section{Type: kind, Title: s.Title, URL: s.URL, Children: children}, nil
}

func unmarshalNodes(raw []json.RawMessage) ([]Node, error) {
	nodes := make([]Node, len(raw))
	for i, r := range raw {
		n, err := UnmarshalNode(r)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes[i] = n
	}
	return nodes, nil
}

// marshalJSON is json.Marshal without HTML escaping, so legal text keeps
// its "<", ">" and "&" as written.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
