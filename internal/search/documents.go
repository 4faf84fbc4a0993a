package search

import (
	"context"
	"fmt"

	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// rebuildBatchSize is the number of documents sent per BatchIndex call during a rebuild.
const rebuildBatchSize = 500

// IndexReport summarizes a document write.
type IndexReport struct {
	Indexed int      `json:"indexed"`
	Skipped []string `json:"skipped,omitempty"` // ids rejected by the index definition
}

// IndexStats compares what a backend holds for an index with what the
// content store says should be there.
type IndexStats struct {
	Index     string `json:"index"`
	Backend   string `json:"backend"`
	Documents int    `json:"documents"`
	Expected  *int   `json:"expected,omitempty"` // live elements of the index type on the site
	Error     string `json:"error,omitempty"`
}

// liveIDLister enumerates live element ids. Counting by enumeration keeps
// the expected count consistent with what ResolveElements treats as live.
type liveIDLister interface {
	LiveIDs(ctx context.Context, siteID int, elementType string) ([]string, error)
}

// ProgressFunc reports rebuild progress.
type ProgressFunc func(current, total int, message string)

// IndexDocuments writes documents to the backend of an index. Documents
// without an id or outside the index definition are skipped. Every written
// document is stamped with the index language.
func (s *Service) IndexDocuments(ctx context.Context, handle string, docs []model.Document) (*IndexReport, error) {
	def, adapter, err := s.target(handle)
	if err != nil {
		return nil, err
	}
	accepted, report := s.prepare(handle, def, docs)
	if len(accepted) == 0 {
		return report, nil
	}
	if err := adapter.BatchIndex(ctx, handle, accepted); err != nil {
		return nil, fmt.Errorf("failed to index documents into '%s': %w", handle, err)
	}
	report.Indexed = len(accepted)
	s.invalidateAfterWrite(handle)
	return report, nil
}

// DeleteDocument removes one element of a site from an index.
func (s *Service) DeleteDocument(ctx context.Context, handle, elementID string, siteID int) error {
	_, adapter, err := s.target(handle)
	if err != nil {
		return err
	}
	if siteID == 0 {
		siteID = s.defaultSiteID
	}
	key := model.DocumentKey(elementID, siteID)
	exists, err := adapter.DocumentExists(ctx, handle, key)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if !exists {
		return errors.NewDocumentNotFoundError(key, handle)
	}
	if err := adapter.Delete(ctx, handle, key); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.invalidateAfterWrite(handle)
	return nil
}

// RebuildIndex replaces the content of an index with docs.
func (s *Service) RebuildIndex(ctx context.Context, handle string, docs []model.Document, progress ProgressFunc) (*IndexReport, error) {
	def, adapter, err := s.target(handle)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int, int, string) {}
	}
	accepted, report := s.prepare(handle, def, docs)

	progress(0, len(accepted), "clearing index")
	if err := adapter.ClearIndex(ctx, handle); err != nil {
		return nil, fmt.Errorf("failed to clear '%s': %w", handle, err)
	}
	// results computed against the old content must not survive the clear
	s.invalidateAfterWrite(handle)

	for start := 0; start < len(accepted); start += rebuildBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + rebuildBatchSize
		if end > len(accepted) {
			end = len(accepted)
		}
		if err := adapter.BatchIndex(ctx, handle, accepted[start:end]); err != nil {
			return nil, fmt.Errorf("failed to index batch %d-%d into '%s': %w", start, end, handle, err)
		}
		report.Indexed = end
		progress(end, len(accepted), "indexing")
	}
	s.invalidateAfterWrite(handle)
	progress(len(accepted), len(accepted), "done")
	return report, nil
}

// Stats reports the document count of an index on its backend and, when
// the content resolver can enumerate live elements, the expected count.
func (s *Service) Stats(ctx context.Context, handle string, siteID int) (*IndexStats, error) {
	def, adapter, err := s.target(handle)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{Index: handle, Backend: adapter.Name()}
	if status, err := adapter.Status(ctx); err != nil {
		stats.Error = err.Error()
	} else {
		stats.Documents = status.Indices[handle]
	}

	if lister, ok := s.resolver.(liveIDLister); ok {
		if siteID == 0 {
			siteID = s.defaultSiteID
		}
		ids, err := lister.LiveIDs(ctx, siteID, def.ElementType)
		if err != nil {
			s.logger.Warn("Failed to enumerate live elements", "index", handle, "error", err)
		} else {
			expected := len(ids)
			stats.Expected = &expected
		}
	}
	return stats, nil
}

// target resolves the definition and adapter of an index for writes.
// Disabled indices can still be written so they can be filled before
// being switched on.
func (s *Service) target(handle string) (model.IndexDefinition, services.BackendAdapter, error) {
	if s.adapters == nil {
		return model.IndexDefinition{}, nil, fmt.Errorf("document writes are not configured")
	}
	snap := s.snapshots.Load()
	def, ok := snap.Index(handle)
	if !ok {
		return model.IndexDefinition{}, nil, errors.NewIndexNotFoundError(handle)
	}
	backend, err := snap.ResolveBackend(handle)
	if err != nil {
		return model.IndexDefinition{}, nil, err
	}
	adapter, err := s.adapters.Adapter(backend)
	if err != nil {
		return model.IndexDefinition{}, nil, fmt.Errorf("backend '%s' unavailable: %w", backend.Handle, err)
	}
	return def, adapter, nil
}

func (s *Service) prepare(handle string, def model.IndexDefinition, docs []model.Document) ([]model.Document, *IndexReport) {
	language := s.snapshots.Load().ResolveLanguage(handle)
	report := &IndexReport{}
	accepted := make([]model.Document, 0, len(docs))
	for i, doc := range docs {
		id, ok := doc.GetDocumentID()
		if !ok {
			report.Skipped = append(report.Skipped, fmt.Sprintf("#%d", i))
			continue
		}
		if !def.Accepts(doc) {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		stamped := make(model.Document, len(doc)+1)
		for k, v := range doc {
			stamped[k] = v
		}
		if language != "" {
			stamped[model.FieldLanguage] = language
		}
		accepted = append(accepted, stamped)
	}
	return accepted, report
}

func (s *Service) invalidateAfterWrite(handle string) {
	if err := s.InvalidateIndex(handle); err != nil {
		s.logger.Warn("Failed to invalidate cached results", "index", handle, "error", err)
	}
}
