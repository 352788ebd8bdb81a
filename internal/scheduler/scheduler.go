package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"visionhealth-backend/internal/logger"
	"visionhealth-backend/internal/metrics"
	"visionhealth-backend/internal/monitor"
)

// Collector runs one collect cycle; *monitor.Engine satisfies it.
type Collector interface {
	Collect(ctx context.Context, orgID string) (monitor.CollectSummary, error)
}

// Registry triggers collect cycles for orgs, either on a per-org ticker or
// on demand, and runs them on a fixed worker pool with a per-run timeout.
type Registry struct {
	mu         sync.Mutex
	jobs       map[string]*Job
	queue      chan string
	workers    int
	collector  Collector
	ctx        context.Context
	cancel     context.CancelFunc
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

type Job struct {
	orgID     string
	interval  time.Duration
	stop      chan struct{}
	lastRun   time.Time
	lastError string
	runs      int
}

type JobInfo struct {
	OrgID           string     `json:"orgId"`
	IntervalSeconds int        `json:"intervalSeconds"`
	Runs            int        `json:"runs"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

func NewRegistry(collector Collector, workers int, jobTimeout time.Duration) *Registry {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	reg := &Registry{
		jobs:       map[string]*Job{},
		queue:      make(chan string, 128),
		workers:    workers,
		collector:  collector,
		ctx:        ctx,
		cancel:     cancel,
		jobTimeout: jobTimeout,
	}
	for i := 0; i < workers; i++ {
		reg.wg.Add(1)
		go reg.worker()
	}
	return reg
}

// Stop cancels tickers and workers and waits for in-flight runs.
func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, job := range r.jobs {
		close(job.stop)
	}
	r.jobs = map[string]*Job{}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) Schedule(orgID string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.jobs[orgID]; ok {
		close(existing.stop)
	}
	job := &Job{orgID: orgID, interval: interval, stop: make(chan struct{})}
	r.jobs[orgID] = job
	go r.runTicker(job)
}

func (r *Registry) Unschedule(orgID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[orgID]; ok {
		close(job.stop)
		delete(r.jobs, orgID)
	}
}

func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]JobInfo, 0, len(r.jobs))
	for id, job := range r.jobs {
		info := JobInfo{OrgID: id, IntervalSeconds: int(job.interval / time.Second), Runs: job.runs, LastError: job.lastError}
		if !job.lastRun.IsZero() {
			last := job.lastRun
			info.LastRun = &last
		}
		jobs = append(jobs, info)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].OrgID < jobs[j].OrgID })
	return jobs
}

// Enqueue asks for a collect cycle without blocking. It reports false when
// the registry is stopped or the queue is full.
func (r *Registry) Enqueue(orgID string) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.queue <- orgID:
		return true
	default:
		logger.WithOrg("scheduler", orgID).Warn().Msg("collect queue full, dropping run")
		return false
	}
}

func (r *Registry) runTicker(job *Job) {
	ticker := time.NewTicker(job.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Enqueue(job.orgID)
		case <-job.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case orgID := <-r.queue:
			r.execute(orgID)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) execute(orgID string) {
	ctx, cancel := context.WithTimeout(r.ctx, r.jobTimeout)
	defer cancel()

	var runErr error
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithOrg("scheduler", orgID).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("collect run panic recovered")
			metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
			runErr = fmt.Errorf("panic: %v", rec)
		}
		r.record(orgID, runErr)
	}()

	if _, err := r.collector.Collect(ctx, orgID); err != nil {
		runErr = err
	}
}

func (r *Registry) record(orgID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[orgID]
	if !ok {
		return
	}
	job.runs++
	job.lastRun = time.Now().UTC()
	job.lastError = ""
	if err != nil {
		job.lastError = err.Error()
	}
}
