package parser

import (
	"bytes"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/codexcrawl/internal/model"
)

// PageParser extracts structure and text from codex pages.
// Implementations must be pure: no I/O and no shared state.
type PageParser interface {
	// ParseChildren returns the child entries listed on a page in document
	// order. A page without a recognizable listing yields an empty slice.
	// Hrefs are resolved against baseURL.
	ParseChildren(page *model.Page, baseURL string) []model.NodeDescriptor

	// ParseArticleBody returns the cleaned paragraphs of an article page.
	// It never returns an empty slice; model.ContentNotFound is substituted.
	ParseArticleBody(page *model.Page) []string
}

// Selectors describe where the listing and the article body live in the markup.
type Selectors struct {
	// Tree selects the listing container. Only the first match is used.
	Tree string
	// Item selects listing entries inside the container.
	Item string
	// ArticleClass marks an entry as a leaf article.
	ArticleClass string
	// SectionClass marks an entry as a section; other entries are chapters.
	SectionClass string
	// Body selects the article body container. Only the first match is used.
	Body string
	// Paragraph selects text blocks inside the body.
	Paragraph string
	// SkipClass excludes text blocks carrying this class.
	SkipClass string
}

// DefaultSelectors match the zakonrf.info markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Tree:         "ul.law-element__tree",
		Item:         "li.law-element__tree-item",
		ArticleClass: "law-element__tree-item_st",
		SectionClass: "law-element__tree-item_r",
		Body:         "div.law-element__body.content-body",
		Paragraph:    "p, div",
		SkipClass:    "insertion",
	}
}

// LawTreeParser implements PageParser with CSS selectors.
type LawTreeParser struct {
	sel Selectors
}

// Option configures a LawTreeParser.
type Option func(*LawTreeParser)

// WithSelectors replaces the default selectors. Empty fields keep their defaults.
func WithSelectors(s Selectors) Option {
	return func(p *LawTreeParser) {
		if s.Tree != "" {
			p.sel.Tree = s.Tree
		}
		if s.Item != "" {
			p.sel.Item = s.Item
		}
		if s.ArticleClass != "" {
			p.sel.ArticleClass = s.ArticleClass
		}
		if s.SectionClass != "" {
			p.sel.SectionClass = s.SectionClass
		}
		if s.Body != "" {
			p.sel.Body = s.Body
		}
		if s.Paragraph != "" {
			p.sel.Paragraph = s.Paragraph
		}
		if s.SkipClass != "" {
			p.sel.SkipClass = s.SkipClass
		}
	}
}

// NewLawTreeParser creates a parser for zakonrf.info style pages.
func NewLawTreeParser(opts ...Option) *LawTreeParser {
	p := &LawTreeParser{sel: DefaultSelectors()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseChildren implements PageParser.
func (p *LawTreeParser) ParseChildren(page *model.Page, baseURL string) []model.NodeDescriptor {
	out := []model.NodeDescriptor{}

	doc, ok := document(page)
	if !ok {
		return out
	}

	tree := doc.Find(p.sel.Tree).First()
	if tree.Length() == 0 {
		return out
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	tree.Find(p.sel.Item).Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a").First()
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		out = append(out, model.NodeDescriptor{
			Title: CleanText(link.Text()),
			URL:   resolve(base, href),
			Kind:  p.classify(item),
		})
	})

	return out
}

// ParseArticleBody implements PageParser.
func (p *LawTreeParser) ParseArticleBody(page *model.Page) []string {
	notFound := []string{model.ContentNotFound}

	doc, ok := document(page)
	if !ok {
		return notFound
	}

	body := doc.Find(p.sel.Body).First()
	if body.Length() == 0 {
		return notFound
	}

	var content []string
	body.Find(p.sel.Paragraph).Each(func(_ int, block *goquery.Selection) {
		if p.skipped(block, body) {
			return
		}
		if text := CleanText(block.Text()); text != "" {
			content = append(content, text)
		}
	})

	if len(content) == 0 {
		return notFound
	}
	return content
}

// skipped reports whether block or any ancestor below body carries the skip class.
func (p *LawTreeParser) skipped(block, body *goquery.Selection) bool {
	if hasClass(block, p.sel.SkipClass) {
		return true
	}
	skip := false
	block.ParentsUntilSelection(body).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		skip = hasClass(s, p.sel.SkipClass)
		return !skip
	})
	return skip
}

func (p *LawTreeParser) classify(item *goquery.Selection) model.NodeKind {
	switch {
	case hasClass(item, p.sel.ArticleClass):
		return model.KindArticle
	case hasClass(item, p.sel.SectionClass):
		return model.KindSection
	default:
		return model.KindChapter
	}
}

// hasClass matches a whole class token. goquery's HasClass would do the
// same, but an empty name must never match.
func hasClass(s *goquery.Selection, name string) bool {
	if name == "" {
		return false
	}
	class, _ := s.Attr("class")
	return slices.Contains(strings.Fields(class), name)
}

func document(page *model.Page) (*goquery.Document, bool) {
	if page == nil || len(page.Body) == 0 || !page.IsHTML() {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, false
	}
	return doc, true
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
