package model

// Stats contains counters derived from a codex tree.
type Stats struct {
	Articles       int `json:"articles"`
	Sections       int `json:"sections"`
	Chapters       int `json:"chapters"`
	FailedArticles int `json:"failed_articles"`
	EmptyArticles  int `json:"empty_articles"`
	MaxDepth       int `json:"max_depth"`
}

// Nodes returns the total number of nodes counted.
func (s Stats) Nodes() int {
	return s.Articles + s.Sections + s.Chapters
}

// Add returns the element-wise sum of two Stats. MaxDepth takes the maximum.
func (s Stats) Add(o Stats) Stats {
	s.Articles += o.Articles
	s.Sections += o.Sections
	s.Chapters += o.Chapters
	s.FailedArticles += o.FailedArticles
	s.EmptyArticles += o.EmptyArticles
	s.MaxDepth = max(s.MaxDepth, o.MaxDepth)
	return s
}

// ComputeStats walks the given nodes and counts them.
// Top-level nodes are at depth 1.
func ComputeStats(nodes []Node) Stats {
	var s Stats
	Walk(nodes, func(n Node, depth int) bool {
		s.MaxDepth = max(s.MaxDepth, depth)
		switch v := n.(type) {
		case *Article:
			s.Articles++
			if v.Failed() {
				s.FailedArticles++
			}
			if v.Empty() {
				s.EmptyArticles++
			}
		case *Section:
			if v.Type == KindSection {
				s.Sections++
			} else {
				s.Chapters++
			}
		}
		return true
	})
	return s
}

// Walk visits nodes depth-first in listing order. Returning false from fn
// skips the children of the visited node.
func Walk(nodes []Node, fn func(n Node, depth int) bool) {
	walk(nodes, 1, fn)
}

func walk(nodes []Node, depth int, fn func(Node, int) bool) {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if !fn(n, depth) {
			continue
		}
		if s, ok := n.(*Section); ok {
			walk(s.Children, depth+1, fn)
		}
	}
}
