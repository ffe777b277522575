package cron

import (
	"context"
	"strings"
)

// Job is one maintenance task. Run should be safe to repeat.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order. A second job with an existing
// name replaces the first.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	for i, existing := range r.jobs {
		if existing.Name() == job.Name() {
			r.jobs[i] = job
			return
		}
	}
	r.jobs = append(r.jobs, job)
}

// Without returns a registry minus the named jobs. Unknown names are ignored.
func (r *Registry) Without(names ...string) *Registry {
	skip := make(map[string]struct{}, len(names))
	for _, name := range names {
		skip[strings.TrimSpace(name)] = struct{}{}
	}
	kept := &Registry{}
	for _, job := range r.jobs {
		if _, ok := skip[job.Name()]; !ok {
			kept.jobs = append(kept.jobs, job)
		}
	}
	return kept
}

// Names lists job names in run order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
