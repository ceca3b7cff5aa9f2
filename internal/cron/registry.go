package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of work executed on every cron cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order, keyed by unique name.
type Registry struct {
	jobs  []Job
	index map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{index: map[string]int{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds job. Nil jobs are skipped and the first job registered under a
// name wins.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if _, taken := r.index[job.Name()]; taken {
		return
	}
	r.index[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}

// Only narrows the registry to a comma separated list of job names, keeping
// registration order. An empty list returns r unchanged.
func (r *Registry) Only(names string) (*Registry, error) {
	names = strings.TrimSpace(names)
	if names == "" {
		return r, nil
	}
	wanted := map[string]bool{}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.index[name]; !ok {
			return nil, fmt.Errorf("unknown cron job %q (have %s)", name, strings.Join(r.Names(), ", "))
		}
		wanted[name] = true
	}
	subset := NewRegistry()
	for _, job := range r.jobs {
		if wanted[job.Name()] {
			subset.Register(job)
		}
	}
	return subset, nil
}
