// Package content answers whether elements are live and where they live,
// for promotions and element redirects.
package content

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/gcbaptista/go-search-gateway/services"
)

// Dialect is the placeholder style of the content database.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// SQLResolver reads element status from a table with the columns
// id, site_id, type, title, url and status; status 'live' is live.
type SQLResolver struct {
	db      *sql.DB
	table   string
	dialect Dialect
	owned   bool
}

var _ services.ContentResolver = (*SQLResolver)(nil)

// NewSQLResolver wraps an open database.
func NewSQLResolver(db *sql.DB, table string, dialect Dialect) (*SQLResolver, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid content table name %q", table)
	}
	return &SQLResolver{db: db, table: table, dialect: dialect}, nil
}

// Open connects to the content database of driver ("sqlite" or "postgres").
func Open(driver, dsn, table string) (*SQLResolver, error) {
	var (
		db      *sql.DB
		dialect Dialect
	)
	switch driver {
	case "sqlite":
		var err error
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open content database: %w", err)
		}
		dialect = DialectSQLite
	case "postgres":
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid content dsn: %w", err)
		}
		db = stdlib.OpenDB(*cfg)
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported content driver %q", driver)
	}

	r, err := NewSQLResolver(db, table, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

func (r *SQLResolver) placeholder(n int) string {
	if r.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ResolveElements looks all ids up in one query.
func (r *SQLResolver) ResolveElements(ctx context.Context, siteID int, ids []string) (map[string]services.ElementStatus, error) {
	out := make(map[string]services.ElementStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := []any{siteID}
	marks := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		marks[i] = r.placeholder(i + 2)
	}
	query := fmt.Sprintf(
		`SELECT id, type, title, url, status FROM %s WHERE site_id = %s AND id IN (%s)`,
		r.table, r.placeholder(1), strings.Join(marks, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve elements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status             services.ElementStatus
			typ, title, url, s sql.NullString
		)
		if err := rows.Scan(&status.ID, &typ, &title, &url, &s); err != nil {
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		status.Type = typ.String
		status.Title = title.String
		status.URL = url.String
		status.Live = s.String == "live"
		out[status.ID] = status
	}
	return out, rows.Err()
}

// LiveIDs enumerates the live elements of a site, optionally of one type.
// Expected counts are taken as len(LiveIDs) rather than an aggregate, since
// scoped criteria do not always count the same way they enumerate.
func (r *SQLResolver) LiveIDs(ctx context.Context, siteID int, elementType string) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE site_id = %s AND status = 'live'`, r.table, r.placeholder(1))
	args := []any{siteID}
	if elementType != "" {
		query += fmt.Sprintf(` AND type = %s`, r.placeholder(2))
		args = append(args, elementType)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list live elements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database when the resolver opened it.
func (r *SQLResolver) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// StaticResolver serves element status from memory.
type StaticResolver struct {
	mu       sync.RWMutex
	elements map[int]map[string]services.ElementStatus
}

var _ services.ContentResolver = (*StaticResolver)(nil)

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{elements: make(map[int]map[string]services.ElementStatus)}
}

// Set stores the status of an element on a site.
func (r *StaticResolver) Set(siteID int, status services.ElementStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.elements[siteID] == nil {
		r.elements[siteID] = make(map[string]services.ElementStatus)
	}
	r.elements[siteID][status.ID] = status
}

// Remove forgets an element.
func (r *StaticResolver) Remove(siteID int, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.elements[siteID], id)
}

func (r *StaticResolver) ResolveElements(_ context.Context, siteID int, ids []string) (map[string]services.ElementStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]services.ElementStatus, len(ids))
	for _, id := range ids {
		if status, ok := r.elements[siteID][id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (r *StaticResolver) LiveIDs(_ context.Context, siteID int, elementType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, status := range r.elements[siteID] {
		if status.Live && (elementType == "" || status.Type == elementType) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
