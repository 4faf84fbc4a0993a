// Package sqlite serves logical indices from a SQLite database through FTS5,
// ranked by the built-in bm25() function. The unicode61 tokenizer has no
// stemming, so search language does not change matching.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"

	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// BackendType is the configured type served by this package.
const BackendType = model.BackendSQLite

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	index_name TEXT NOT NULL,
	doc_key    TEXT NOT NULL,
	element_id TEXT NOT NULL,
	site_id    INTEGER NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL,
	PRIMARY KEY (index_name, doc_key)
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	index_name UNINDEXED,
	doc_key UNINDEXED,
	content,
	tokenize='unicode61'
);
`

// Adapter implements services.BackendAdapter over SQLite FTS5.
type Adapter struct {
	name   string
	db     *sql.DB
	logger *slog.Logger
}

var _ services.BackendAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Open opens (or creates) the database at path; an empty path uses a
// private in-memory database.
func Open(name, path string, opts ...Option) (*Adapter, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: writers never contend and :memory: stays a single database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &Adapter{name: name, db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Index(ctx context.Context, index string, doc model.Document) error {
	return a.BatchIndex(ctx, index, []model.Document{doc})
}

func (a *Adapter) BatchIndex(ctx context.Context, index string, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 tables do not support REPLACE, so delete first
	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM documents_fts WHERE index_name = ? AND doc_key = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO documents_fts(index_name, doc_key, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertFTS.Close()

	upsertDoc, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO documents(index_name, doc_key, element_id, site_id, type, source) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer upsertDoc.Close()

	for i, doc := range docs {
		key, ok := doc.Key()
		if !ok {
			return fmt.Errorf("document %d has no id", i)
		}
		id, _ := doc.GetDocumentID()
		source, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", key, err)
		}

		if _, err := deleteFTS.ExecContext(ctx, index, key); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", key, err)
		}
		if _, err := insertFTS.ExecContext(ctx, index, key, doc.Text()); err != nil {
			return fmt.Errorf("failed to index document %s: %w", key, err)
		}
		if _, err := upsertDoc.ExecContext(ctx, index, key, id, doc.GetSiteID(), doc.GetType(), string(source)); err != nil {
			return fmt.Errorf("failed to store document %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (a *Adapter) Delete(ctx context.Context, index string, key string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE index_name = ? AND doc_key = ?`, index, key); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE index_name = ? AND doc_key = ?`, index, key); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return tx.Commit()
}

func (a *Adapter) ClearIndex(ctx context.Context, index string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE index_name = ?`, index); err != nil {
		return fmt.Errorf("failed to clear FTS rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE index_name = ?`, index); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return tx.Commit()
}

func (a *Adapter) DocumentExists(ctx context.Context, index string, key string) (bool, error) {
	var one int
	err := a.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE index_name = ? AND doc_key = ?`, index, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// matchExpression turns free text into an FTS5 expression: any term may
// match and the last one also matches as a prefix. Terms are quoted so user
// input never reaches the FTS5 query grammar.
func matchExpression(q string) string {
	terms := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " OR ")
}

// Search ignores opts.Language.
func (a *Adapter) Search(ctx context.Context, index string, q string, opts services.BackendSearchOptions) (*services.BackendResult, error) {
	expr := matchExpression(q)
	if expr == "" {
		return &services.BackendResult{}, nil
	}

	where := `documents_fts MATCH ? AND documents_fts.index_name = ?`
	args := []any{expr, index}
	if opts.SiteID != 0 {
		where += ` AND d.site_id = ?`
		args = append(args, opts.SiteID)
	}
	if opts.Type != "" {
		where += ` AND d.type = ?`
		args = append(args, opts.Type)
	}
	from := `FROM documents_fts JOIN documents d ON d.index_name = documents_fts.index_name AND d.doc_key = documents_fts.doc_key`

	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	// bm25() is negative, lower is better
	rows, err := a.db.QueryContext(ctx,
		`SELECT d.element_id, d.site_id, d.source, bm25(documents_fts) AS score `+from+` WHERE `+where+` ORDER BY score, d.doc_key LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	result := &services.BackendResult{}
	for rows.Next() {
		var (
			hit    services.BackendHit
			source string
			score  float64
		)
		if err := rows.Scan(&hit.ID, &hit.SiteID, &source, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(source), &hit.Document); err != nil {
			a.logger.Warn("skipping row with unreadable source", "backend", a.name, "index", index, "id", hit.ID, "error", err)
			continue
		}
		hit.Score = -score
		result.Hits = append(result.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.Limit <= 0 || len(result.Hits) < opts.Limit {
		result.Total = len(result.Hits)
		return result, nil
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from+` WHERE `+where, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}
	return result, nil
}

func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.db.PingContext(ctx) == nil
}

func (a *Adapter) Status(ctx context.Context) (*services.BackendStatus, error) {
	status := &services.BackendStatus{Name: a.name, Type: BackendType, Indices: map[string]int{}}
	if err := a.db.PingContext(ctx); err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Available = true

	rows, err := a.db.QueryContext(ctx, `SELECT index_name, COUNT(*) FROM documents GROUP BY index_name ORDER BY index_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		status.Indices[name] = count
	}
	return status, rows.Err()
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.db.Close()
}
