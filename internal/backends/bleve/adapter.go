// Package bleve serves logical indices from bleve full-text indices, one
// bleve index per logical index.
//
// Without a configured analyzer the adapter is language aware: content is
// indexed with the standard analyzer and again with the English one, and a
// search whose language is English queries the English field. A configured
// analyzer fixes one analysis for every language.
package bleve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// BackendType is the configured type served by this package.
const BackendType = model.BackendBleve

const (
	fieldContent   = "content"
	fieldContentEn = "content_en"
	fieldSite    = "site_id"
	fieldType    = "type"
	fieldSource  = "source"
)

// Adapter implements services.BackendAdapter over bleve.
type Adapter struct {
	name     string
	dir      string // empty keeps indices in memory
	analyzer string // empty picks the analysis per search language
	logger   *slog.Logger

	mu      sync.RWMutex
	indices map[string]bleve.Index
	closed  bool
}

var _ services.BackendAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithDir stores indices under <dir>/<index>.bleve.
func WithDir(dir string) Option {
	return func(a *Adapter) { a.dir = dir }
}

// WithAnalyzer fixes the analyzer of the content field: "standard" or a
// language analyzer such as "en". Left unset, analysis follows the search
// language.
func WithAnalyzer(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.analyzer = name
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

// New creates a bleve adapter. Indices open lazily on first use.
func New(name string, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		name:     name,
		logger:   slog.Default(),
		indices:  make(map[string]bleve.Index),
	}
	for _, opt := range opts {
		opt(a)
	}
	switch a.analyzer {
	case "", standard.Name, en.AnalyzerName:
	default:
		return nil, fmt.Errorf("unsupported bleve analyzer %q", a.analyzer)
	}
	if a.dir != "" {
		if err := os.MkdirAll(a.dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", a.dir, err)
		}
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) indexMapping() *mapping.IndexMappingImpl {
	base := a.analyzer
	if base == "" {
		base = standard.Name
	}
	content := bleve.NewTextFieldMapping()
	content.Analyzer = base

	site := bleve.NewNumericFieldMapping()

	typ := bleve.NewTextFieldMapping()
	typ.Analyzer = keyword.Name

	source := bleve.NewTextFieldMapping()
	source.Index = false
	source.Store = true
	source.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(fieldContent, content)
	doc.AddFieldMappingsAt(fieldSite, site)
	doc.AddFieldMappingsAt(fieldType, typ)
	doc.AddFieldMappingsAt(fieldSource, source)
	if a.languageAware() {
		english := bleve.NewTextFieldMapping()
		english.Analyzer = en.AnalyzerName
		english.IncludeInAll = false
		doc.AddFieldMappingsAt(fieldContentEn, english)
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = base
	return m
}

func (a *Adapter) languageAware() bool { return a.analyzer == "" }

// contentField is the field a search in language queries.
func (a *Adapter) contentField(language string) string {
	if !a.languageAware() {
		return fieldContent
	}
	language = strings.ToLower(language)
	if language == "en" || strings.HasPrefix(language, "en-") || strings.HasPrefix(language, "en_") {
		return fieldContentEn
	}
	return fieldContent
}

func (a *Adapter) path(index string) string {
	return filepath.Join(a.dir, index+".bleve")
}

// open returns the bleve index for a logical index, opening or creating it.
// With create unset a missing index yields nil.
func (a *Adapter) open(index string, create bool) (bleve.Index, error) {
	a.mu.RLock()
	idx, ok := a.indices[index]
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("adapter %s is closed", a.name)
	}
	if ok {
		return idx, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("adapter %s is closed", a.name)
	}
	if idx, ok = a.indices[index]; ok {
		return idx, nil
	}

	var err error
	switch {
	case a.dir == "" && !create:
		return nil, nil
	case a.dir == "":
		idx, err = bleve.NewMemOnly(a.indexMapping())
	default:
		idx, err = bleve.Open(a.path(index))
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			if !create {
				return nil, nil
			}
			idx, err = bleve.New(a.path(index), a.indexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index %s: %w", index, err)
	}
	a.indices[index] = idx
	return idx, nil
}

type bleveDocument struct {
	Content   string  `json:"content"`
	ContentEn string  `json:"content_en,omitempty"`
	SiteID    float64 `json:"site_id"`
	Type      string  `json:"type"`
	Source    string  `json:"source"`
}

func (a *Adapter) toBleve(doc model.Document) (string, bleveDocument, error) {
	key, ok := doc.Key()
	if !ok {
		return "", bleveDocument{}, fmt.Errorf("document has no id")
	}
	source, err := json.Marshal(doc)
	if err != nil {
		return "", bleveDocument{}, fmt.Errorf("failed to encode document %s: %w", key, err)
	}
	bd := bleveDocument{
		Content: doc.Text(),
		SiteID:  float64(doc.GetSiteID()),
		Type:    doc.GetType(),
		Source:  string(source),
	}
	if a.languageAware() {
		bd.ContentEn = bd.Content
	}
	return key, bd, nil
}

func (a *Adapter) Index(ctx context.Context, index string, doc model.Document) error {
	return a.BatchIndex(ctx, index, []model.Document{doc})
}

func (a *Adapter) BatchIndex(ctx context.Context, index string, docs []model.Document) error {
	if len(docs) == 0 {
		return nil
	}
	idx, err := a.open(index, true)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		key, bd, err := a.toBleve(doc)
		if err != nil {
			return err
		}
		if err := batch.Index(key, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", key, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(_ context.Context, index string, key string) error {
	idx, err := a.open(index, false)
	if err != nil || idx == nil {
		return err
	}
	return idx.Delete(key)
}

func (a *Adapter) ClearIndex(_ context.Context, index string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx, ok := a.indices[index]; ok {
		if err := idx.Close(); err != nil {
			a.logger.Warn("failed to close bleve index", "backend", a.name, "index", index, "error", err)
		}
		delete(a.indices, index)
	}
	if a.dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.path(index)); err != nil {
		return fmt.Errorf("failed to remove bleve index %s: %w", index, err)
	}
	return nil
}

func (a *Adapter) DocumentExists(_ context.Context, index string, key string) (bool, error) {
	idx, err := a.open(index, false)
	if err != nil || idx == nil {
		return false, err
	}
	d, err := idx.Document(key)
	if err != nil {
		return false, err
	}
	return d != nil, nil
}

func (a *Adapter) Search(ctx context.Context, index string, q string, opts services.BackendSearchOptions) (*services.BackendResult, error) {
	if strings.TrimSpace(q) == "" {
		return &services.BackendResult{}, nil
	}
	idx, err := a.open(index, false)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return &services.BackendResult{}, nil
	}

	match := bleve.NewMatchQuery(q)
	match.SetField(a.contentField(opts.Language))
	conjuncts := []query.Query{match}
	if opts.SiteID != 0 {
		site := float64(opts.SiteID)
		inclusive := true
		siteQuery := bleve.NewNumericRangeInclusiveQuery(&site, &site, &inclusive, &inclusive)
		siteQuery.SetField(fieldSite)
		conjuncts = append(conjuncts, siteQuery)
	}
	if opts.Type != "" {
		typeQuery := bleve.NewTermQuery(opts.Type)
		typeQuery.SetField(fieldType)
		conjuncts = append(conjuncts, typeQuery)
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(conjuncts...))
	req.Fields = []string{fieldSource}
	req.Size = opts.Limit
	if opts.Limit <= 0 {
		count, err := idx.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		req.Size = int(count)
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := &services.BackendResult{Total: int(res.Total), Hits: make([]services.BackendHit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		source, _ := h.Fields[fieldSource].(string)
		var doc model.Document
		if err := json.Unmarshal([]byte(source), &doc); err != nil {
			a.logger.Warn("skipping hit with unreadable source", "backend", a.name, "index", index, "key", h.ID, "error", err)
			continue
		}
		id, _ := doc.GetDocumentID()
		result.Hits = append(result.Hits, services.BackendHit{
			ID:       id,
			SiteID:   doc.GetSiteID(),
			Score:    h.Score,
			Document: doc,
		})
	}
	return result, nil
}

func (a *Adapter) IsAvailable(_ context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return !a.closed
}

func (a *Adapter) Status(ctx context.Context) (*services.BackendStatus, error) {
	a.mu.RLock()
	names := make([]string, 0, len(a.indices))
	for name := range a.indices {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)

	status := &services.BackendStatus{
		Name:      a.name,
		Type:      BackendType,
		Available: a.IsAvailable(ctx),
		Indices:   make(map[string]int, len(names)),
	}
	for _, name := range names {
		idx, err := a.open(name, false)
		if err != nil || idx == nil {
			continue
		}
		count, err := idx.DocCount()
		if err != nil {
			status.Error = err.Error()
			continue
		}
		status.Indices[name] = int(count)
	}
	return status, nil
}

// Close closes every open index.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for name, idx := range a.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	a.indices = nil
	return errors.Join(errs...)
}
