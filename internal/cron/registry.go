package cron

import "context"

// Job is one sweep run on every cron tick, such as expiring payment
// sessions or idle conversation sessions.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the sweeps a process owns. Job names double as metric
// labels, so a name registers once; later jobs with the same name are
// dropped.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the sweeps this process runs. The api
// binary passes payment and session expiry; cron-worker passes only session
// expiry.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a sweep unless one with the same name is already present.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	for _, existing := range r.jobs {
		if existing.Name() == job.Name() {
			return false
		}
	}
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns the sweeps in the order they run on each tick.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
