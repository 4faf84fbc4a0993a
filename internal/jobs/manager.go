package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

// ProgressFunc reports how far a running job got.
type ProgressFunc func(current, total int, message string)

// Func is the body of a job. ctx is cancelled when the manager stops.
type Func func(ctx context.Context, progress ProgressFunc) error

// Stats counts jobs by status since the manager started.
type Stats struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Running   int   `json:"running"`
}

// Manager runs index jobs in the background with a bounded number of
// concurrent workers and keeps their status for polling.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*model.Job
	stats   Stats
	workers chan struct{} // limits concurrent jobs
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a job manager with maxWorkers concurrent slots
func NewManager(maxWorkers int, opts ...Option) *Manager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		jobs:    make(map[string]*model.Job),
		workers: make(chan struct{}, maxWorkers),
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the periodic cleanup of finished jobs
func (m *Manager) Start() {
	m.logger.Info("Job manager started", "workers", cap(m.workers))
	m.wg.Add(1)
	go m.cleanupRoutine()
}

// Stop cancels running jobs and waits for every goroutine to return
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("Job manager stopped")
}

// CreateJob registers a pending job and returns its ID
func (m *Manager) CreateJob(jobType model.JobType, indexHandle string, metadata map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &model.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      model.JobStatusPending,
		IndexHandle: indexHandle,
		CreatedAt:   time.Now(),
		Metadata:    metadata,
	}
	m.jobs[job.ID] = job
	m.stats.Created++
	m.logger.Info("Created job", "job_id", job.ID, "type", string(job.Type), "index", indexHandle)
	return job.ID
}

// Submit creates a job and starts it. The job stays pending until a worker
// slot frees up.
func (m *Manager) Submit(jobType model.JobType, indexHandle string, metadata map[string]string, fn Func) (string, error) {
	jobID := m.CreateJob(jobType, indexHandle, metadata)
	if err := m.ExecuteJob(jobID, fn); err != nil {
		return "", err
	}
	return jobID, nil
}

// ExecuteJob runs a pending job in a goroutine.
func (m *Manager) ExecuteJob(jobID string, fn Func) error {
	m.mu.RLock()
	job, exists := m.jobs[jobID]
	var status model.JobStatus
	if exists {
		status = job.Status
	}
	m.mu.RUnlock()

	if !exists {
		return errors.NewJobNotFoundError(jobID)
	}
	if status != model.JobStatusPending {
		return fmt.Errorf("job with ID '%s' is not in pending status (current: %s)", jobID, status)
	}
	if m.ctx.Err() != nil {
		m.finish(jobID, model.JobStatusCancelled, "job manager is shutting down")
		return fmt.Errorf("job manager is shutting down")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case m.workers <- struct{}{}:
		case <-m.ctx.Done():
			m.finish(jobID, model.JobStatusCancelled, "job manager is shutting down")
			return
		}
		defer func() { <-m.workers }()

		m.start(jobID)
		startTime := time.Now()
		err := fn(m.ctx, func(current, total int, message string) {
			m.UpdateJobProgress(jobID, current, total, message)
		})
		elapsed := time.Since(startTime)

		switch {
		case err != nil && m.ctx.Err() != nil:
			m.finish(jobID, model.JobStatusCancelled, err.Error())
			m.logger.Warn("Job cancelled", "job_id", jobID, "elapsed", elapsed)
		case err != nil:
			m.finish(jobID, model.JobStatusFailed, err.Error())
			m.logger.Error("Job failed", "job_id", jobID, "elapsed", elapsed, "error", err)
		default:
			m.finish(jobID, model.JobStatusCompleted, "")
			m.logger.Info("Job completed", "job_id", jobID, "elapsed", elapsed)
		}
	}()
	return nil
}

// GetJob returns a copy of a job
func (m *Manager) GetJob(jobID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	return copyJob(job), nil
}

// ListJobs returns the jobs of an index, newest first, optionally filtered
// by status. An empty handle lists every index.
func (m *Manager) ListJobs(indexHandle string, status *model.JobStatus) []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Job, 0)
	for _, job := range m.jobs {
		if indexHandle != "" && job.IndexHandle != indexHandle {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		result = append(result, copyJob(job))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

// HasActiveJob reports whether a pending or running job exists for the index.
func (m *Manager) HasActiveJob(indexHandle string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if job.IndexHandle == indexHandle && !job.Status.Terminal() {
			return true
		}
	}
	return false
}

// UpdateJobProgress updates the progress of a running job
func (m *Manager) UpdateJobProgress(jobID string, current, total int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	if job.Progress == nil {
		job.Progress = &model.JobProgress{}
	}
	job.Progress.Current = current
	job.Progress.Total = total
	job.Progress.Message = message
}

// Stats returns job counters
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// CleanupOldJobs removes finished jobs older than maxAge
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	cleaned := 0
	for jobID, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, jobID)
			cleaned++
		}
	}
	if cleaned > 0 {
		m.logger.Info("Cleaned up old jobs", "count", cleaned)
	}
	return cleaned
}

func (m *Manager) start(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		now := time.Now()
		job.Status = model.JobStatusRunning
		job.StartedAt = &now
		m.stats.Running++
	}
}

func (m *Manager) finish(jobID string, status model.JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	if job.Status == model.JobStatusRunning {
		m.stats.Running--
	}
	job.Status = status
	job.Error = errorMsg
	now := time.Now()
	job.CompletedAt = &now

	switch status {
	case model.JobStatusCompleted:
		m.stats.Completed++
	case model.JobStatusFailed:
		m.stats.Failed++
	case model.JobStatusCancelled:
		m.stats.Cancelled++
	}
}

func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupOldJobs(24 * time.Hour)
		case <-m.ctx.Done():
			return
		}
	}
}

func copyJob(job *model.Job) *model.Job {
	jobCopy := *job
	if job.Progress != nil {
		progressCopy := *job.Progress
		jobCopy.Progress = &progressCopy
	}
	return &jobCopy
}
