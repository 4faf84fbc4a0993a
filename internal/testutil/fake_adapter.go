// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// SearchCall records one Search invocation.
type SearchCall struct {
	Index   string
	Query   string
	Options services.BackendSearchOptions
}

// FakeAdapter is an in-memory BackendAdapter that records searches. A
// document matches when any query term occurs in its text; its score is the
// numeric "score" field when present, else the number of occurrences.
type FakeAdapter struct {
	mu    sync.Mutex
	name  string
	docs  map[string]map[string]model.Document
	order map[string][]string
	errs  map[string]error
	delay time.Duration
	calls []SearchCall

	Unavailable bool
}

// NewFakeAdapter creates an empty fake adapter.
func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{
		name:  name,
		docs:  make(map[string]map[string]model.Document),
		order: make(map[string][]string),
		errs:  make(map[string]error),
	}
}

// SetError makes every search on index fail with err.
func (f *FakeAdapter) SetError(index string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[index] = err
}

// SetDelay delays every search until the delay passes or its context ends.
func (f *FakeAdapter) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// SearchCalls returns the recorded searches.
func (f *FakeAdapter) SearchCalls() []SearchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SearchCall(nil), f.calls...)
}

// Reset forgets the recorded searches.
func (f *FakeAdapter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeAdapter) Name() string { return f.name }

func (f *FakeAdapter) Index(_ context.Context, index string, doc model.Document) error {
	key, ok := doc.Key()
	if !ok {
		return fmt.Errorf("document has no id")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs[index] == nil {
		f.docs[index] = make(map[string]model.Document)
	}
	if _, exists := f.docs[index][key]; !exists {
		f.order[index] = append(f.order[index], key)
	}
	f.docs[index][key] = doc
	return nil
}

func (f *FakeAdapter) BatchIndex(ctx context.Context, index string, docs []model.Document) error {
	for _, doc := range docs {
		if err := f.Index(ctx, index, doc); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeAdapter) Delete(_ context.Context, index string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs[index], key)
	keys := f.order[index][:0]
	for _, k := range f.order[index] {
		if k != key {
			keys = append(keys, k)
		}
	}
	f.order[index] = keys
	return nil
}

func (f *FakeAdapter) ClearIndex(_ context.Context, index string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, index)
	delete(f.order, index)
	return nil
}

func (f *FakeAdapter) DocumentExists(_ context.Context, index string, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[index][key]
	return ok, nil
}

func (f *FakeAdapter) IsAvailable(_ context.Context) bool {
	return !f.Unavailable
}

func (f *FakeAdapter) Status(_ context.Context) (*services.BackendStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int, len(f.docs))
	for index, docs := range f.docs {
		counts[index] = len(docs)
	}
	return &services.BackendStatus{Name: f.name, Type: "fake", Available: !f.Unavailable, Indices: counts}, nil
}

func (f *FakeAdapter) Search(ctx context.Context, index string, query string, opts services.BackendSearchOptions) (*services.BackendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, SearchCall{Index: index, Query: query, Options: opts})
	delay := f.delay
	err := f.errs[index]
	keys := append([]string(nil), f.order[index]...)
	docs := f.docs[index]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []services.BackendHit
	f.mu.Lock()
	for _, key := range keys {
		doc := docs[key]
		if opts.SiteID != 0 && doc.GetSiteID() != opts.SiteID {
			continue
		}
		if opts.Type != "" && doc.GetType() != opts.Type {
			continue
		}
		text := strings.ToLower(doc.Text())
		occurrences := 0
		for _, term := range terms {
			occurrences += strings.Count(text, term)
		}
		if occurrences == 0 {
			continue
		}
		score := float64(occurrences)
		if s, ok := doc["score"].(float64); ok {
			score = s
		}
		id, _ := doc.GetDocumentID()
		hits = append(hits, services.BackendHit{ID: id, SiteID: doc.GetSiteID(), Score: score, Document: doc})
	}
	f.mu.Unlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	total := len(hits)
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return &services.BackendResult{Hits: hits, Total: total}, nil
}

// Provider hands out fake adapters by backend handle.
type Provider struct {
	Adapters map[string]services.BackendAdapter
}

// Adapter implements the dispatcher's adapter provider.
func (p *Provider) Adapter(def model.BackendDefinition) (services.BackendAdapter, error) {
	a, ok := p.Adapters[def.Handle]
	if !ok {
		return nil, fmt.Errorf("no adapter for backend '%s'", def.Handle)
	}
	return a, nil
}

// Snapshot builds a snapshot holder where every index uses defaultBackend
// unless overrides names another backend for it.
func Snapshot(defaultBackend string, indices []string, overrides map[string]string) *config.SnapshotHolder {
	layer := config.Layer{DefaultBackend: defaultBackend}
	backends := map[string]bool{defaultBackend: true}
	for _, index := range indices {
		def := model.IndexDefinition{Handle: index, Backend: overrides[index]}
		layer.Indices = append(layer.Indices, def)
		if def.Backend != "" {
			backends[def.Backend] = true
		}
	}
	handles := make([]string, 0, len(backends))
	for h := range backends {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	for _, h := range handles {
		layer.Backends = append(layer.Backends, model.BackendDefinition{Handle: h, Type: model.BackendNative})
	}
	return config.NewSnapshotHolder(config.NewSnapshot(layer, config.Layer{}))
}

// Doc builds a document on site 1.
func Doc(id, title string, fields ...interface{}) model.Document {
	doc := model.Document{model.FieldID: id, model.FieldSiteID: float64(1), model.FieldTitle: title}
	for i := 0; i+1 < len(fields); i += 2 {
		doc[fmt.Sprint(fields[i])] = fields[i+1]
	}
	return doc
}
