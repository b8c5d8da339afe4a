package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
}

// Registry tracks registered cron jobs and how often each one runs.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job that runs at most once per every. A non-positive
// interval runs the job on every tick.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.entries = append(r.entries, entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.entries))
	for i, e := range r.entries {
		jobs[i] = e.job
	}
	return jobs
}

// due returns the jobs whose interval has elapsed since lastRun.
func (r *Registry) due(now time.Time, lastRun map[string]time.Time) []Job {
	var out []Job
	for _, e := range r.entries {
		last, ran := lastRun[e.job.Name()]
		if !ran || e.every <= 0 || !now.Before(last.Add(e.every)) {
			out = append(out, e.job)
		}
	}
	return out
}
