package cron

import "context"

// Job is a unit of scheduled maintenance work. Run is expected to be
// safe to call repeatedly with the same arguments.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a cron worker sweeps through, in registration
// order. Nil jobs are dropped silently.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy so callers cannot reorder the schedule.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
