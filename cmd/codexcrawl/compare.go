package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/codexcrawl/internal/database"
	"github.com/nao1215/codexcrawl/internal/model"
	"github.com/nao1215/codexcrawl/internal/report"
)

// NewCompareCmd creates the compare command.
// It diffs two crawls of one codex, either from the history database or
// from two JSON files.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [codex-id]",
		Short: "Compare two crawls of a codex",
		Long: `Compare shows how the structure of a codex changed between two crawls.

Nodes are matched by URL. The comparison lists:
- Nodes added or removed since the previous crawl
- Nodes whose title or kind changed
- Articles whose text changed
- Changes in article, section and chapter counts

By default the latest two crawls stored in the history database are
compared. Use --old and --new to compare two JSON files instead.

Examples:
  # Compare the latest two crawls of the civil code
  codexcrawl compare gk

  # List the stored crawls of a codex
  codexcrawl compare --list gk

  # Compare the latest crawl with a specific stored crawl
  codexcrawl compare --id 5 gk

  # Compare two JSON files written by codexcrawl
  codexcrawl compare --old old/gk.json --new codex_data/gk.json

  # List every codex in the database
  codexcrawl compare --list-codexes

  # List recent crawl runs
  codexcrawl compare --runs`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List crawl history for the specified codex")
	cmd.Flags().BoolP("list-codexes", "L", false,
		"List all codexes in the database")
	cmd.Flags().Bool("runs", false,
		"List recent crawl runs")
	cmd.Flags().Int64P("id", "i", 0,
		"Compare the latest crawl with the stored crawl of this ID (see --list)")
	cmd.Flags().String("old", "", "Previous crawl as a JSON file")
	cmd.Flags().String("new", "", "Current crawl as a JSON file")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsRequiredTogether("old", "new")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	listCodexes, err := flags.GetBool("list-codexes")
	if err != nil {
		return err
	}
	listHistory, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	listRuns, err := flags.GetBool("runs")
	if err != nil {
		return err
	}
	withID, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	oldPath, err := flags.GetString("old")
	if err != nil {
		return err
	}
	newPath, err := flags.GetString("new")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	var comparison *ComparisonResult
	if oldPath != "" {
		comparison, err = compareFiles(oldPath, newPath)
		if err != nil {
			return err
		}
		return writeComparison(out, comparison, jsonOutput, markdownOutput)
	}

	// Validate arguments before opening the database.
	var codex string
	if !listCodexes && !listRuns {
		if len(args) == 0 {
			return errors.New("codex id is required (use --list-codexes to see stored codexes)")
		}
		codex = args[0]
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(getDBDir(cmd), opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no crawl history found (run codexcrawl first)")
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch {
	case listCodexes:
		return listStoredCodexes(ctx, out, db)
	case listRuns:
		return listCrawlRuns(ctx, out, db)
	case listHistory:
		return listCrawlHistory(ctx, out, db, codex)
	}

	comparison, err = compareStored(ctx, db, codex, withID)
	if err != nil {
		return err
	}
	return writeComparison(out, comparison, jsonOutput, markdownOutput)
}

// listStoredCodexes prints every codex with at least one stored crawl.
func listStoredCodexes(ctx context.Context, out io.Writer, db *database.Store) error {
	codexes, err := db.ListCodexes(ctx)
	if err != nil {
		return err
	}

	if len(codexes) == 0 {
		fmt.Fprintln(out, "No crawled codexes found in the database.")
		fmt.Fprintln(out, "\nRun 'codexcrawl' to crawl the default codexes.")
		return nil
	}

	fmt.Fprintf(out, "Crawled codexes (%d):\n\n", len(codexes))
	for _, codex := range codexes {
		fmt.Fprintf(out, "  • %s\n", codex)
	}
	fmt.Fprintln(out, "\nUse 'codexcrawl compare --list <codex>' to see the crawl history of a codex.")

	return nil
}

// runListLimit is how many runs --runs shows.
const runListLimit = 20

// listCrawlRuns prints the most recent crawl runs, newest first.
func listCrawlRuns(ctx context.Context, out io.Writer, db *database.Store) error {
	runs, err := db.ListRuns(ctx, runListLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No crawl runs found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Recent crawl runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %7s  %8s  %6s\n", "Run", "Date", "Codexes", "Articles", "Failed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 55))

	for _, run := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %7d  %8d  %6d\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Codexes,
			run.Stats.Articles,
			run.Stats.FailedArticles,
		)
	}

	return nil
}

// listCrawlHistory prints the stored crawls of one codex, newest first.
func listCrawlHistory(ctx context.Context, out io.Writer, db *database.Store, codex string) error {
	history, err := db.GetHistory(ctx, codex)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", codex)
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d crawls):\n\n", codex, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %9s  %8s  %8s  %6s\n", "ID", "Date", "Elapsed", "Articles", "Sections", "Failed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 66))

	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %9s  %8d  %8d  %6d\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			meta.Elapsed.Round(time.Second),
			meta.Stats.Articles,
			meta.Stats.Sections+meta.Stats.Chapters,
			meta.Stats.FailedArticles,
		)
	}

	fmt.Fprintf(out, "\nUse 'codexcrawl compare %s' to compare the latest two crawls.\n", codex)
	fmt.Fprintf(out, "Use 'codexcrawl compare --id <id> %s' to compare with a specific crawl.\n", codex)

	return nil
}

// compareStored compares the latest crawl of codex with the previous one,
// or with the crawl withID when it is non-zero.
func compareStored(ctx context.Context, db *database.Store, codex string, withID int64) (*ComparisonResult, error) {
	history, err := db.GetHistory(ctx, codex)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no crawl history found for %s", codex)
	}
	if len(history) < 2 && withID == 0 {
		return nil, fmt.Errorf("at least 2 crawls are required for comparison (found %d)", len(history))
	}

	previousID := withID
	if previousID == 0 {
		previousID = history[1].ID
	}

	current, err := db.GetLatest(ctx, codex)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("no crawl history found for %s", codex)
	}
	previous, err := db.GetByID(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return nil, fmt.Errorf("crawl with ID %d not found", previousID)
	}
	if previous.ID != codex {
		return nil, fmt.Errorf("crawl ID %d belongs to %s, not %s", previousID, previous.ID, codex)
	}

	comparison := compareCodexes(previous, current)
	comparison.Previous.ID = previousID
	comparison.Current.ID = history[0].ID
	return comparison, nil
}

// compareFiles compares two JSON files written by the JSON sink.
func compareFiles(oldPath, newPath string) (*ComparisonResult, error) {
	previous, err := readCodexFile(oldPath)
	if err != nil {
		return nil, err
	}
	current, err := readCodexFile(newPath)
	if err != nil {
		return nil, err
	}
	comparison := compareCodexes(previous, current)
	comparison.Previous.Source = oldPath
	comparison.Current.Source = newPath
	return comparison, nil
}

func readCodexFile(path string) (*model.CodexResult, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	result, err := report.ReadCodex(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return result, nil
}

// ComparisonResult holds the differences between two crawls of a codex.
type ComparisonResult struct {
	// Codex is the id of the current crawl.
	Codex string `json:"codex"`

	Previous CrawlSummary `json:"previous"`
	Current  CrawlSummary `json:"current"`

	// Added and Removed list nodes present on only one side.
	Added   []NodeRef `json:"added,omitempty"`
	Removed []NodeRef `json:"removed,omitempty"`

	Retitled    []NodeChange `json:"retitled,omitempty"`
	KindChanged []NodeChange `json:"kind_changed,omitempty"`

	// ContentChanged lists articles whose text differs. Articles that
	// failed to fetch on either side are not compared.
	ContentChanged []NodeRef `json:"content_changed,omitempty"`

	// UnchangedCount is the number of nodes present on both sides with
	// no reported change.
	UnchangedCount int `json:"unchanged_count"`

	// Delta is current minus previous, field by field.
	Delta model.Stats `json:"delta"`
}

// CrawlSummary identifies one side of a comparison.
type CrawlSummary struct {
	ID        int64       `json:"id,omitempty"`
	Source    string      `json:"source,omitempty"`
	CrawledAt time.Time   `json:"crawled_at,omitzero"`
	Stats     model.Stats `json:"stats"`
}

// NodeRef names a node of a codex tree.
type NodeRef struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// NodeChange is a value that differs between two crawls of the same URL.
type NodeChange struct {
	URL      string `json:"url"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// hasChanges reports whether any node differs.
func (c *ComparisonResult) hasChanges() bool {
	return len(c.Added)+len(c.Removed)+len(c.Retitled)+len(c.KindChanged)+len(c.ContentChanged) > 0
}

// indexedTree maps each URL of a tree to its first node, keeping walk order.
type indexedTree struct {
	order []string
	nodes map[string]model.Node
}

func indexTree(nodes []model.Node) indexedTree {
	idx := indexedTree{nodes: make(map[string]model.Node)}
	model.Walk(nodes, func(n model.Node, _ int) bool {
		url := n.Descriptor().URL
		if _, seen := idx.nodes[url]; !seen {
			idx.nodes[url] = n
			idx.order = append(idx.order, url)
		}
		return true
	})
	return idx
}

func nodeRef(n model.Node) NodeRef {
	d := n.Descriptor()
	return NodeRef{URL: d.URL, Title: d.Title, Kind: d.Kind.String()}
}

// compareCodexes diffs two crawls, matching nodes by URL.
func compareCodexes(previous, current *model.CodexResult) *ComparisonResult {
	prevStats := previous.Stats()
	curStats := current.Stats()

	result := &ComparisonResult{
		Codex:    current.ID,
		Previous: CrawlSummary{CrawledAt: previous.CrawledAt, Stats: prevStats},
		Current:  CrawlSummary{CrawledAt: current.CrawledAt, Stats: curStats},
		Delta: model.Stats{
			Articles:       curStats.Articles - prevStats.Articles,
			Sections:       curStats.Sections - prevStats.Sections,
			Chapters:       curStats.Chapters - prevStats.Chapters,
			FailedArticles: curStats.FailedArticles - prevStats.FailedArticles,
			EmptyArticles:  curStats.EmptyArticles - prevStats.EmptyArticles,
			MaxDepth:       curStats.MaxDepth - prevStats.MaxDepth,
		},
	}

	before := indexTree(previous.Structure)
	after := indexTree(current.Structure)

	for _, url := range before.order {
		if _, ok := after.nodes[url]; !ok {
			result.Removed = append(result.Removed, nodeRef(before.nodes[url]))
		}
	}

	for _, url := range after.order {
		cur := after.nodes[url]
		prev, ok := before.nodes[url]
		if !ok {
			result.Added = append(result.Added, nodeRef(cur))
			continue
		}

		changed := false
		pd, cd := prev.Descriptor(), cur.Descriptor()
		if pd.Title != cd.Title {
			result.Retitled = append(result.Retitled, NodeChange{URL: url, Previous: pd.Title, Current: cd.Title})
			changed = true
		}
		if pd.Kind != cd.Kind {
			result.KindChanged = append(result.KindChanged, NodeChange{URL: url, Previous: pd.Kind.String(), Current: cd.Kind.String()})
			changed = true
		}
		if contentChanged(prev, cur) {
			result.ContentChanged = append(result.ContentChanged, nodeRef(cur))
			changed = true
		}
		if !changed {
			result.UnchangedCount++
		}
	}

	return result
}

func contentChanged(prev, cur model.Node) bool {
	pa, ok := prev.(*model.Article)
	if !ok {
		return false
	}
	ca, ok := cur.(*model.Article)
	if !ok {
		return false
	}
	if pa.Failed() || ca.Failed() {
		return false
	}
	return pa.ContentHash() != ca.ContentHash()
}

// writeComparison prints the comparison in the selected format.
func writeComparison(out io.Writer, c *ComparisonResult, jsonOutput, markdownOutput bool) error {
	switch {
	case jsonOutput:
		return report.EncodeJSON(out, c, "", "  ")
	case markdownOutput:
		return writeComparisonMarkdown(out, c)
	default:
		writeComparisonText(out, c)
		return nil
	}
}

// crawlLabel describes one side of the comparison for humans.
func crawlLabel(s CrawlSummary) string {
	var parts []string
	if s.ID > 0 {
		parts = append(parts, fmt.Sprintf("#%d", s.ID))
	}
	if s.Source != "" {
		parts = append(parts, s.Source)
	}
	if !s.CrawledAt.IsZero() {
		parts = append(parts, s.CrawledAt.Format("2006-01-02 15:04:05"))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// formatDelta formats a count change with an explicit sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}

// statRows returns label, previous, current and delta for each counter.
func statRows(c *ComparisonResult) [][]string {
	row := func(label string, prev, cur, delta int) []string {
		return []string{label, fmt.Sprintf("%d", prev), fmt.Sprintf("%d", cur), formatDelta(delta)}
	}
	p, n, d := c.Previous.Stats, c.Current.Stats, c.Delta
	return [][]string{
		row("Articles", p.Articles, n.Articles, d.Articles),
		row("Sections", p.Sections, n.Sections, d.Sections),
		row("Chapters", p.Chapters, n.Chapters, d.Chapters),
		row("Failed articles", p.FailedArticles, n.FailedArticles, d.FailedArticles),
		row("Empty articles", p.EmptyArticles, n.EmptyArticles, d.EmptyArticles),
		row("Max depth", p.MaxDepth, n.MaxDepth, d.MaxDepth),
	}
}

func writeComparisonText(out io.Writer, c *ComparisonResult) {
	fmt.Fprintf(out, "Codex %s\n", c.Codex)
	fmt.Fprintf(out, "  previous: %s\n", crawlLabel(c.Previous))
	fmt.Fprintf(out, "  current:  %s\n\n", crawlLabel(c.Current))

	fmt.Fprintf(out, "  %-16s  %8s  %8s  %6s\n", "", "Previous", "Current", "Delta")
	for _, r := range statRows(c) {
		fmt.Fprintf(out, "  %-16s  %8s  %8s  %6s\n", r[0], r[1], r[2], r[3])
	}
	fmt.Fprintln(out)

	if !c.hasChanges() {
		fmt.Fprintf(out, "No structural changes (%d nodes unchanged).\n", c.UnchangedCount)
		return
	}

	printRefs := func(title string, refs []NodeRef, mark string) {
		if len(refs) == 0 {
			return
		}
		fmt.Fprintf(out, "%s (%d):\n", title, len(refs))
		for _, r := range refs {
			fmt.Fprintf(out, "  %s [%s] %s  %s\n", mark, r.Kind, r.Title, r.URL)
		}
		fmt.Fprintln(out)
	}
	printChanges := func(title string, changes []NodeChange) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(out, "%s (%d):\n", title, len(changes))
		for _, ch := range changes {
			fmt.Fprintf(out, "  ~ %s: %q -> %q\n", ch.URL, ch.Previous, ch.Current)
		}
		fmt.Fprintln(out)
	}

	printRefs("Added", c.Added, "+")
	printRefs("Removed", c.Removed, "-")
	printChanges("Retitled", c.Retitled)
	printChanges("Kind changed", c.KindChanged)
	printRefs("Content changed", c.ContentChanged, "~")
	fmt.Fprintf(out, "Unchanged: %d\n", c.UnchangedCount)
}

func writeComparisonMarkdown(out io.Writer, c *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1(fmt.Sprintf("Codex %s: comparison", c.Codex))
	md.Table(markdown.TableSet{
		Header: []string{"Crawl", "Source"},
		Rows: [][]string{
			{"Previous", crawlLabel(c.Previous)},
			{"Current", crawlLabel(c.Current)},
		},
	})
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Previous", "Current", "Delta"},
		Rows:   statRows(c),
	})

	if !c.hasChanges() {
		md.Tip(fmt.Sprintf("No structural changes (%d nodes unchanged).", c.UnchangedCount))
		return md.Build()
	}

	refList := func(title string, refs []NodeRef) {
		if len(refs) == 0 {
			return
		}
		items := make([]string, len(refs))
		for i, r := range refs {
			items[i] = fmt.Sprintf("[%s](%s) %s", r.Title, r.URL, r.Kind)
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(refs)))
		md.BulletList(items...)
	}
	changeList := func(title string, changes []NodeChange) {
		if len(changes) == 0 {
			return
		}
		items := make([]string, len(changes))
		for i, ch := range changes {
			items[i] = fmt.Sprintf("%s: `%s` → `%s`", ch.URL, ch.Previous, ch.Current)
		}
		md.H2(fmt.Sprintf("%s (%d)", title, len(changes)))
		md.BulletList(items...)
	}

	refList("Added", c.Added)
	refList("Removed", c.Removed)
	changeList("Retitled", c.Retitled)
	changeList("Kind changed", c.KindChanged)
	refList("Content changed", c.ContentChanged)
	md.PlainTextf("Unchanged nodes: %d", c.UnchangedCount)

	return md.Build()
}
