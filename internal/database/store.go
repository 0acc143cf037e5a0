package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/codexcrawl/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "codexcrawl.db"

// timestampLayout keeps milliseconds so crawls in the same second still sort.
const timestampLayout = "2006-01-02 15:04:05.000"

// Store is the crawl history database. It satisfies the result sink
// contract: Put saves one codex crawl, PutAll records the run.
type Store struct {
	db     *sql.DB
	dbPath string

	// pending holds crawl IDs saved by Put since the last PutAll.
	mu      sync.Mutex
	pending []int64
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		mode = "rw"
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		codexes INTEGER NOT NULL,
		stats_json TEXT
	);

	CREATE TABLE IF NOT EXISTS codex_crawls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER REFERENCES runs(id),
		codex TEXT NOT NULL,
		url TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		elapsed_ms INTEGER DEFAULT 0,
		result_json TEXT NOT NULL,
		stats_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_crawls_codex ON codex_crawls(codex);
	CREATE INDEX IF NOT EXISTS idx_crawls_timestamp ON codex_crawls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_crawls_run ON codex_crawls(run_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Put saves one codex crawl.
func (s *Store) Put(ctx context.Context, _ string, result *model.CodexResult) error {
	id, err := s.SaveCodex(ctx, result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending = append(s.pending, id)
	s.mu.Unlock()
	return nil
}

// PutAll records a run and links every crawl saved by Put since the previous run.
func (s *Store) PutAll(ctx context.Context, outcome model.Outcome) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	statsJSON, err := json.Marshal(outcome.Stats())
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (timestamp, codexes, stats_json) VALUES (?, ?, ?)`,
		formatTimestamp(time.Now()), len(outcome), string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}

	for _, crawlID := range pending {
		if _, err := tx.ExecContext(ctx, `UPDATE codex_crawls SET run_id = ? WHERE id = ?`, runID, crawlID); err != nil {
			return fmt.Errorf("failed to link crawl %d: %w", crawlID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// SaveCodex stores a crawl and returns its ID.
func (s *Store) SaveCodex(ctx context.Context, result *model.CodexResult) (int64, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize codex: %w", err)
	}
	statsJSON, err := json.Marshal(result.Stats())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize stats: %w", err)
	}

	crawledAt := result.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO codex_crawls (codex, url, timestamp, elapsed_ms, result_json, stats_json)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		result.URL,
		formatTimestamp(crawledAt),
		result.Elapsed.Milliseconds(),
		string(resultJSON),
		string(statsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save codex: %w", err)
	}

	return res.LastInsertId()
}

// ListCodexes returns every codex with at least one stored crawl.
func (s *Store) ListCodexes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT codex FROM codex_crawls ORDER BY codex`)
	if err != nil {
		return nil, fmt.Errorf("failed to list codexes: %w", err)
	}
	defer rows.Close()

	var codexes []string
	for rows.Next() {
		var codex string
		if err := rows.Scan(&codex); err != nil {
			return nil, fmt.Errorf("failed to scan codex: %w", err)
		}
		codexes = append(codexes, codex)
	}

	return codexes, rows.Err()
}

// CrawlMetadata describes a stored crawl without its tree.
type CrawlMetadata struct {
	// ID is the database ID of the crawl.
	ID int64

	// RunID is the run that produced the crawl, 0 if none was recorded.
	RunID int64

	Codex     string
	URL       string
	Timestamp time.Time
	Elapsed   time.Duration
	Stats     model.Stats
}

// GetHistory returns the crawls of a codex, newest first.
func (s *Store) GetHistory(ctx context.Context, codex string) ([]CrawlMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, run_id, codex, url, timestamp, elapsed_ms, stats_json
	FROM codex_crawls
	WHERE codex = ?
	ORDER BY timestamp DESC, id DESC
	`, codex)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	defer rows.Close()

	var results []CrawlMetadata
	for rows.Next() {
		var (
			meta      CrawlMetadata
			runID     sql.NullInt64
			timestamp string
			elapsedMS int64
			statsJSON sql.NullString
		)
		if err := rows.Scan(&meta.ID, &runID, &meta.Codex, &meta.URL, &timestamp, &elapsedMS, &statsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.RunID = runID.Int64
		meta.Timestamp = parseTimestamp(timestamp)
		meta.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if statsJSON.Valid && statsJSON.String != "" {
			if err := json.Unmarshal([]byte(statsJSON.String), &meta.Stats); err != nil {
				meta.Stats = model.Stats{}
			}
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetLatest returns the most recent crawl of a codex, or nil if there is none.
func (s *Store) GetLatest(ctx context.Context, codex string) (*model.CodexResult, error) {
	return s.getOne(ctx, `
	SELECT result_json, timestamp, elapsed_ms FROM codex_crawls
	WHERE codex = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`, codex)
}

// GetByID returns a crawl by its database ID, or nil if there is none.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.CodexResult, error) {
	return s.getOne(ctx, `
	SELECT result_json, timestamp, elapsed_ms FROM codex_crawls
	WHERE id = ?
	`, id)
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (*model.CodexResult, error) {
	var (
		resultJSON string
		timestamp  string
		elapsedMS  int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&resultJSON, &timestamp, &elapsedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get codex: %w", err)
	}

	var result model.CodexResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse codex: %w", err)
	}
	result.CrawledAt = parseTimestamp(timestamp)
	result.Elapsed = time.Duration(elapsedMS) * time.Millisecond

	return &result, nil
}

// RunRecord describes one crawl run.
type RunRecord struct {
	ID        int64
	Timestamp time.Time
	Codexes   int
	Stats     model.Stats
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, timestamp, codexes, stats_json FROM runs ORDER BY timestamp DESC, id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run       RunRecord
			timestamp string
			statsJSON sql.NullString
		)
		if err := rows.Scan(&run.ID, &timestamp, &run.Codexes, &statsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Timestamp = parseTimestamp(timestamp)
		if statsJSON.Valid && statsJSON.String != "" {
			_ = json.Unmarshal([]byte(statsJSON.String), &run.Stats) //nolint:errcheck // stats are informational
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// parseTimestamp tries each known layout and returns the zero time if none
// matches. Fractional seconds are accepted by every layout.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
