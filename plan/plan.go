// Package plan computes the concurrency plan for one run: how many worker
// processes run in parallel and how many threads each may use.
package plan

import "fmt"

// Plan is the concurrency budget for a run. Jobs bounds the number of worker
// processes in flight, ThreadsPerJob is each worker's OMP thread budget, and
// ProcessLimit is the coarser per-worker process budget forwarded unchanged.
type Plan struct {
	Cores        int `json:"cores"`
	SubjectCount int `json:"subject_count"`

	Jobs          int `json:"jobs"`
	ThreadsPerJob int `json:"threads_per_job"`
	ProcessLimit  int `json:"process_limit"`

	// JobsForced and ThreadsForced record whether the operator supplied the
	// value; forced values bypass the auto formulas and are not validated
	// against the core count.
	JobsForced    bool `json:"jobs_forced,omitempty"`
	ThreadsForced bool `json:"threads_forced,omitempty"`
}

// Compute builds the plan for cores and subjectCount. userJobs and userThreads
// force the respective value when positive; zero or negative means
// auto-compute. The auto path guarantees Jobs >= 1 and ThreadsPerJob >= 1.
func Compute(cores, subjectCount, userJobs, userThreads int) Plan {
	p := Plan{
		Cores:        cores,
		SubjectCount: subjectCount,
		ProcessLimit: cores,
	}

	if userJobs > 0 {
		p.Jobs = userJobs
		p.JobsForced = true
	} else {
		p.Jobs = min(subjectCount, cores)
		if p.Jobs < 1 {
			p.Jobs = 1
		}
	}

	if userThreads > 0 {
		p.ThreadsPerJob = userThreads
		p.ThreadsForced = true
	} else {
		p.ThreadsPerJob = cores / p.Jobs
		if p.ThreadsPerJob < 1 {
			p.ThreadsPerJob = 1
		}
	}

	return p
}

// Forced reports whether the operator forced any part of the plan.
func (p Plan) Forced() bool {
	return p.JobsForced || p.ThreadsForced
}

// Oversubscribed reports whether the plan books more threads than the host
// has cores. The planner never corrects this; the coordinator only warns when
// a forced plan oversubscribes.
func (p Plan) Oversubscribed() bool {
	return p.Jobs*p.ThreadsPerJob > p.Cores
}

func (p Plan) String() string {
	return fmt.Sprintf("jobs=%d threads=%d nprocs=%d (cores=%d, subjects=%d)",
		p.Jobs, p.ThreadsPerJob, p.ProcessLimit, p.Cores, p.SubjectCount)
}
