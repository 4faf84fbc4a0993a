// Package postgres serves logical indices from PostgreSQL full-text search
// (tsvector columns ranked with ts_rank), connected through pgx.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// BackendType is the configured type served by this package.
const BackendType = model.BackendPostgres

const ddl = `
CREATE TABLE IF NOT EXISTS search_documents (
	index_name TEXT NOT NULL,
	doc_key    TEXT NOT NULL,
	element_id TEXT NOT NULL,
	site_id    INTEGER NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	config     TEXT NOT NULL,
	source     JSONB NOT NULL,
	content    TSVECTOR NOT NULL,
	PRIMARY KEY (index_name, doc_key)
);
CREATE INDEX IF NOT EXISTS idx_search_documents_content ON search_documents USING GIN(content);
CREATE INDEX IF NOT EXISTS idx_search_documents_site ON search_documents (index_name, site_id);
`

var schemaNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// text search configurations for the language codes indices carry
var languageConfigs = map[string]string{
	"da": "danish",
	"de": "german",
	"en": "english",
	"es": "spanish",
	"fi": "finnish",
	"fr": "french",
	"hu": "hungarian",
	"it": "italian",
	"nl": "dutch",
	"no": "norwegian",
	"pt": "portuguese",
	"ro": "romanian",
	"ru": "russian",
	"sv": "swedish",
	"tr": "turkish",
}

// languageConfig maps "en", "en-US" or "en_GB" to a text search
// configuration, falling back to def.
func languageConfig(language, def string) string {
	code := strings.ToLower(language)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if cfg, ok := languageConfigs[code]; ok {
		return cfg
	}
	return def
}

// Adapter implements services.BackendAdapter over a PostgreSQL schema.
type Adapter struct {
	name          string
	db            *sql.DB
	defaultConfig string
	logger        *slog.Logger
}

var _ services.BackendAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithDefaultConfig sets the text search configuration used when neither the
// document nor the query names a known language. Defaults to "simple".
func WithDefaultConfig(cfg string) Option {
	return func(a *Adapter) {
		if cfg != "" {
			a.defaultConfig = cfg
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes
	return `"` + ident + `"`
}

// Open connects to dsn, creates schema if needed and pins the search_path to it.
func Open(ctx context.Context, name, dsn, schema string, opts ...Option) (*Adapter, error) {
	if schema == "" {
		schema = "search_gateway"
	}
	if !schemaNameRe.MatchString(schema) {
		return nil, fmt.Errorf("invalid postgres schema name %q (must match %s)", schema, schemaNameRe.String())
	}

	// connect without search_path first so the schema can be created
	cfg0, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	db0 := stdlib.OpenDB(*cfg0)
	if _, err := db0.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema)); err != nil {
		_ = db0.Close()
		return nil, fmt.Errorf("failed to create schema %s: %w", schema, err)
	}
	_ = db0.Close()

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(schema))

	db := stdlib.OpenDB(*cfg)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &Adapter{name: name, db: db, defaultConfig: "simple", logger: slog.Default()}
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_documents (index_name, doc_key, element_id, site_id, type, config, source, content)
		VALUES ($1, $2, $3, $4, $5, $6::text, $7::jsonb, to_tsvector($6::text::regconfig, $8))
		ON CONFLICT (index_name, doc_key) DO UPDATE SET
			element_id = EXCLUDED.element_id,
			site_id = EXCLUDED.site_id,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			source = EXCLUDED.source,
			content = EXCLUDED.content`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

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
		config := languageConfig(doc.GetString(model.FieldLanguage), a.defaultConfig)
		if _, err := stmt.ExecContext(ctx, index, key, id, doc.GetSiteID(), doc.GetType(), config, string(source), doc.Text()); err != nil {
			return fmt.Errorf("failed to index document %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func (a *Adapter) Delete(ctx context.Context, index string, key string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM search_documents WHERE index_name = $1 AND doc_key = $2`, index, key)
	return err
}

func (a *Adapter) ClearIndex(ctx context.Context, index string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM search_documents WHERE index_name = $1`, index)
	return err
}

func (a *Adapter) DocumentExists(ctx context.Context, index string, key string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM search_documents WHERE index_name = $1 AND doc_key = $2)`,
		index, key).Scan(&exists)
	return exists, err
}

func (a *Adapter) Search(ctx context.Context, index string, q string, opts services.BackendSearchOptions) (*services.BackendResult, error) {
	if strings.TrimSpace(q) == "" {
		return &services.BackendResult{}, nil
	}

	config := languageConfig(opts.Language, a.defaultConfig)
	args := []any{config, q, index}
	where := []string{"index_name = $3", "content @@ query"}
	if opts.SiteID != 0 {
		args = append(args, opts.SiteID)
		where = append(where, fmt.Sprintf("site_id = $%d", len(args)))
	}
	if opts.Type != "" {
		args = append(args, opts.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	var limit any // NULL is no limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	args = append(args, limit)

	stmt := fmt.Sprintf(`
		SELECT element_id, site_id, source, ts_rank(content, query) AS rank, count(*) OVER () AS total
		FROM search_documents, websearch_to_tsquery($1::regconfig, $2) query
		WHERE %s
		ORDER BY rank DESC, doc_key
		LIMIT $%d`, strings.Join(where, " AND "), len(args))

	rows, err := a.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	result := &services.BackendResult{}
	for rows.Next() {
		var (
			hit    services.BackendHit
			source []byte
			rank   float64
		)
		if err := rows.Scan(&hit.ID, &hit.SiteID, &source, &rank, &result.Total); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(source, &hit.Document); err != nil {
			a.logger.Warn("skipping row with unreadable source", "backend", a.name, "index", index, "id", hit.ID, "error", err)
			continue
		}
		hit.Score = rank
		result.Hits = append(result.Hits, hit)
	}
	return result, rows.Err()
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

	rows, err := a.db.QueryContext(ctx, `SELECT index_name, count(*) FROM search_documents GROUP BY index_name ORDER BY index_name`)
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

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}
