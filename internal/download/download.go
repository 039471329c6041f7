// Package download acquires local model artifacts asynchronously, decoupled
// from the request path. Jobs are deduplicated by source, run on a worker
// pool sized independently of request-serving concurrency, and register the
// resulting artifact with the catalog on completion so subsequent loads can
// find it. Job state transitions are monotonic: a terminal job is never
// resurrected.
package download

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Job status values.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultWorkers  = 2
	defaultQueueCap = 256
)

// Config encapsulates download manager tunables.
type Config struct {
	// Dir is the destination directory for fetched artifacts.
	Dir string
	// Workers sizes the pool; large transfers never starve interactive
	// requests because this pool is independent of the dispatch budget.
	Workers int
	// Fetchers maps source types (http, file) to transfer implementations.
	// Nil installs the built-in http and file fetchers.
	Fetchers map[string]Fetcher
	// OnComplete is invoked with the model id and artifact path after a
	// successful fetch; wiring registers the artifact with the catalog.
	OnComplete func(modelID, artifactPath string)
}

type job struct {
	id         string
	modelID    string
	sourceType string
	sourceURI  string
	status     string
	progress   int
	err        string
	createdAt  time.Time
	dest       string
	cancel     context.CancelFunc
}

type Manager struct {
	mu         sync.Mutex
	jobs       map[string]*job
	bySource   map[string]string
	jobCh      chan *job
	dir        string
	workers    int
	fetchers   map[string]Fetcher
	onComplete func(modelID, artifactPath string)

	g       *errgroup.Group
	baseCtx context.Context
	stop    context.CancelFunc
	started bool
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		jobs:       make(map[string]*job),
		bySource:   make(map[string]string),
		jobCh:      make(chan *job, defaultQueueCap),
		dir:        cfg.Dir,
		workers:    cfg.Workers,
		fetchers:   cfg.Fetchers,
		onComplete: cfg.OnComplete,
	}
	if m.workers <= 0 {
		m.workers = defaultWorkers
	}
	if m.fetchers == nil {
		m.fetchers = map[string]Fetcher{
			"http": NewHTTPFetcher(),
			"file": FileFetcher{},
		}
	}
	return m
}

// Start launches the worker pool.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, cancel := context.WithCancel(context.Background())
	m.baseCtx = ctx
	m.stop = cancel
	g, gctx := errgroup.WithContext(ctx)
	m.g = g
	m.mu.Unlock()
	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case j := <-m.jobCh:
					m.run(gctx, j)
				}
			}
		})
	}
}

// Close stops the pool and waits for in-flight transfers to observe
// cancellation.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stop
	g := m.g
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
	if g != nil {
		_ = g.Wait()
	}
}

// Submit enqueues an artifact acquisition. Idempotent per source: a second
// submit for the same (sourceType, sourceURI) while a job is queued or
// running returns the existing job id instead of starting duplicate work.
func (m *Manager) Submit(modelID, sourceType, sourceURI string) (string, error) {
	sourceType = strings.ToLower(strings.TrimSpace(sourceType))
	if _, ok := m.fetchers[sourceType]; !ok {
		return "", errUnknownSource{sourceType: sourceType}
	}
	if strings.TrimSpace(sourceURI) == "" || strings.TrimSpace(modelID) == "" {
		return "", errBadSubmit{}
	}
	key := sourceType + "|" + sourceURI

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySource[key]; ok {
		if j := m.jobs[id]; j != nil && (j.status == StatusQueued || j.status == StatusRunning) {
			return id, nil
		}
	}
	j := &job{
		id:         uuid.NewString(),
		modelID:    modelID,
		sourceType: sourceType,
		sourceURI:  sourceURI,
		status:     StatusQueued,
		createdAt:  time.Now(),
		dest:       filepath.Join(m.dir, destName(modelID, sourceURI)),
	}
	select {
	case m.jobCh <- j:
	default:
		return "", errQueueSaturated{}
	}
	m.jobs[j.id] = j
	m.bySource[key] = j.id
	return j.id, nil
}

// Cancel stops a queued or running job. Returns false when the job is
// unknown or already terminal (transitions are monotonic).
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	j := m.jobs[jobID]
	if j == nil {
		m.mu.Unlock()
		return false
	}
	switch j.status {
	case StatusQueued:
		j.status = StatusCancelled
		m.mu.Unlock()
		return true
	case StatusRunning:
		cancel := j.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return true
	default:
		m.mu.Unlock()
		return false
	}
}

func (m *Manager) run(ctx context.Context, j *job) {
	m.mu.Lock()
	if j.status != StatusQueued {
		// Cancelled while waiting for a worker.
		m.mu.Unlock()
		return
	}
	j.status = StatusRunning
	jctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	fetcher := m.fetchers[j.sourceType]
	m.mu.Unlock()
	defer cancel()

	err := fetcher.Fetch(jctx, j.sourceURI, j.dest, func(pct int) {
		m.mu.Lock()
		if j.status == StatusRunning {
			if pct > 100 {
				pct = 100
			}
			j.progress = pct
		}
		m.mu.Unlock()
	})

	m.mu.Lock()
	if j.status != StatusRunning {
		m.mu.Unlock()
		return
	}
	var done func(string, string)
	switch {
	case err == nil:
		j.status = StatusCompleted
		j.progress = 100
		done = m.onComplete
	case jctx.Err() != nil:
		j.status = StatusCancelled
	default:
		j.status = StatusFailed
		j.err = err.Error()
	}
	m.mu.Unlock()
	if done != nil {
		done(j.modelID, j.dest)
	}
}

// destName derives a stable artifact filename from the model id, keeping the
// source extension when it has one.
func destName(modelID, sourceURI string) string {
	ext := path.Ext(sourceURI)
	if ext == "" || len(ext) > 8 {
		ext = ".gguf"
	}
	return modelID + ext
}
