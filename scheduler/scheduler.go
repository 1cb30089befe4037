// Package scheduler fans one worker process per subject out under the
// concurrency plan and resolves every job's outcome from its captured log.
//
// A single coordinator goroutine owns all job state. It launches workers
// strictly in subject order whenever a slot is free, joins them according to
// the configured policy, and reports outcomes in dispatch order no matter
// which order they completed in.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/structprep/structfan/classify"
	"github.com/structprep/structfan/cmd"
	"github.com/structprep/structfan/config"
	"github.com/structprep/structfan/dataset"
	"github.com/structprep/structfan/log"
	"github.com/structprep/structfan/plan"
	"github.com/structprep/structfan/report"
	"github.com/structprep/structfan/toolchain"
	"github.com/structprep/structfan/worker"
)

// errSpawn marks jobs whose worker process never started. They are failed
// directly; the classifier only sees logs a worker actually wrote.
var errSpawn = errors.New("worker failed to start")

// Options configures a Scheduler.
type Options struct {
	Plan      plan.Plan
	Run       *config.Run
	Toolchain toolchain.Env
	// Events receives dispatch and resolution notifications when non-nil.
	// Sends never block: a slow receiver loses events rather than stalling
	// dispatch, so buffer for 2*len(subjects) to see them all.
	Events chan<- Event
}

// Scheduler runs the fan-out for one subject set.
type Scheduler struct {
	opts     Options
	cmdExec  cmd.Executor
	ptyf     cmd.PtyFactory
	policy   classify.ExitPolicy
	progress *log.Every
}

// New creates a Scheduler backed by the real executor and pty factory.
func New(opts Options) *Scheduler {
	return NewWithDeps(opts, cmd.MakeExecutor(), cmd.MakePtyFactory())
}

// NewWithDeps creates a Scheduler with provided dependencies for testing.
func NewWithDeps(opts Options, cmdExec cmd.Executor, ptyFactory cmd.PtyFactory) *Scheduler {
	return &Scheduler{
		opts:     opts,
		cmdExec:  cmdExec,
		ptyf:     ptyFactory,
		policy:   classify.ExitPolicy(opts.Run.ExitPolicy),
		progress: log.NewEvery(15 * time.Second),
	}
}

// completion is one job's exit notice.
type completion struct {
	index int
	err   error
}

// outstandingJob is a dispatched job the coordinator has not joined yet.
type outstandingJob struct {
	index int
	wait  func() error
}

// Run dispatches every subject and blocks until all jobs resolved. The
// returned summary always covers the full subject set; the error is only
// non-nil when the context was canceled mid-run, in which case the jobs cut
// short are recorded as failed.
func (s *Scheduler) Run(ctx context.Context, subjects []string) (*report.Summary, error) {
	if len(subjects) == 0 {
		return nil, dataset.ErrNoSubjects
	}

	jobs := make([]*Job, len(subjects))
	for i, subject := range subjects {
		sessions := s.opts.Run.Sessions
		if len(sessions) == 0 {
			sessions = dataset.Sessions(s.opts.Run.InputDir, subject)
		}
		jobs[i] = &Job{SubjectID: subject, Sessions: sessions}
	}

	log.InfoLog.Printf("dispatching %d subjects: %s", len(jobs), s.opts.Plan)

	joinOldest := s.opts.Run.JoinPolicy == config.JoinOldest
	summary := report.NewSummary()
	completions := make(chan completion, len(jobs))
	var inFlight []outstandingJob // join-oldest queue, launch order

	resolved := make([]bool, len(jobs))
	next := 0
	reported := 0
	resolvedCount := 0
	outstanding := 0

	for reported < len(jobs) {
		// Admit in subject order while a slot is free. outstanding never
		// exceeds Plan.Jobs.
		for next < len(jobs) && outstanding < s.opts.Plan.Jobs {
			job := jobs[next]
			wait := s.launch(ctx, job)
			outstanding++
			s.emit(Event{
				Type: EventDispatched, Index: next, SubjectID: job.SubjectID,
				State: job.State, Outstanding: outstanding, Resolved: resolvedCount, Total: len(jobs),
			})
			if joinOldest {
				inFlight = append(inFlight, outstandingJob{index: next, wait: wait})
			} else {
				index := next
				go func() { completions <- completion{index: index, err: wait()} }()
			}
			next++
		}

		var c completion
		if joinOldest {
			// Head of line: no slot frees until the oldest outstanding job
			// exits, even when a younger one finished first.
			r := inFlight[0]
			inFlight = inFlight[1:]
			c = completion{index: r.index, err: r.wait()}
		} else {
			c = <-completions
		}
		outstanding--
		resolvedCount++

		job := jobs[c.index]
		s.resolve(ctx, job, c.err)
		resolved[c.index] = true
		s.emit(Event{
			Type: EventResolved, Index: c.index, SubjectID: job.SubjectID,
			State: job.State, FailedSessions: append([]string(nil), job.FailedSessions...),
			Outstanding: outstanding, Resolved: resolvedCount, Total: len(jobs),
		})

		// Report in dispatch order regardless of completion order.
		for reported < len(jobs) && resolved[reported] {
			done := jobs[reported]
			summary.Add(report.Outcome{
				Subject:        done.SubjectID,
				Failed:         done.State == StateFailed,
				FailedSessions: done.FailedSessions,
				LogPath:        done.LogPath,
				StartedAt:      done.StartedAt,
				FinishedAt:     done.FinishedAt,
			})
			reported++
		}

		if s.progress.ShouldLog() {
			log.InfoLog.Printf("progress: %d/%d resolved, %d in flight", resolvedCount, len(jobs), outstanding)
		}
	}

	return summary, ctx.Err()
}

// launch starts the worker for job and returns its wait func. Launch never
// fails: a worker that cannot start becomes a wait func returning errSpawn,
// with the cause written to the job log.
func (s *Scheduler) launch(ctx context.Context, job *Job) func() error {
	job.StartedAt = time.Now()
	job.State = StateRunning
	stem := fmt.Sprintf("%s_%d", job.SubjectID, job.StartedAt.Unix())
	job.LogPath = filepath.Join(s.opts.Run.LogDir, stem+".log")
	job.MarkerPath = filepath.Join(s.opts.Run.LogDir, stem+".result")

	logFile, err := os.OpenFile(job.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return spawnFailed(nil, fmt.Errorf("failed to create job log: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return spawnFailed(logFile, err)
	}

	inv := worker.Invocation{Subject: job.SubjectID, Run: s.opts.Run, Plan: s.opts.Plan}
	newCmd := func() *exec.Cmd {
		c := exec.CommandContext(ctx, s.opts.Run.WorkerCmd, inv.Args()...)
		c.Env = s.opts.Toolchain.PrependPath(os.Environ())
		return c
	}
	log.DebugLog.Printf("dispatching %s: %s %s", job.SubjectID, s.opts.Run.WorkerCmd, strings.Join(inv.Args(), " "))

	wait, err := s.startCapture(newCmd, logFile)
	if err != nil {
		return spawnFailed(logFile, err)
	}
	return wait
}

// spawnFailed records err in the job log, if one was opened, and returns a
// wait func that reports the failure as errSpawn.
func spawnFailed(logFile *os.File, err error) func() error {
	if logFile != nil {
		fmt.Fprintf(logFile, "structfan: %v\n", err)
		_ = logFile.Close()
	}
	return func() error { return fmt.Errorf("%w: %v", errSpawn, err) }
}

// resolve classifies a joined job and writes its result marker. A worker's
// own exit status aborts nothing; only jobs cut short by cancellation or a
// failed spawn bypass the classifier.
func (s *Scheduler) resolve(ctx context.Context, job *Job, waitErr error) {
	job.FinishedAt = time.Now()
	job.ExitErr = waitErr

	switch {
	case errors.Is(waitErr, errSpawn):
		job.State = StateFailed
		log.ErrorLog.Printf("%s: %v", job.SubjectID, waitErr)
	case ctx.Err() != nil && waitErr != nil:
		// Killed by cancellation; the partial log is not trustworthy.
		job.State = StateFailed
		log.WarningLog.Printf("%s: canceled: %v", job.SubjectID, waitErr)
	default:
		text, err := os.ReadFile(job.LogPath)
		if err != nil {
			log.WarningLog.Printf("%s: failed to read job log: %v", job.SubjectID, err)
		}
		res := classify.Classify(string(text), waitErr, s.policy)
		if res.Failed {
			job.State = StateFailed
			job.FailedSessions = res.FailedSessions
		} else {
			job.State = StateSucceeded
		}
	}

	if err := config.AtomicWriteFile(job.MarkerPath, []byte(markerContent(job)), 0644); err != nil {
		log.ErrorLog.Printf("%s: failed to write result marker: %v", job.SubjectID, err)
	}
	log.InfoLog.Printf("%s: %s", job.SubjectID, job.State)
}

// markerContent renders the single-line result marker.
func markerContent(job *Job) string {
	if job.State == StateSucceeded {
		return job.SubjectID + " OK\n"
	}
	if len(job.FailedSessions) > 0 {
		return job.SubjectID + " FAIL " + strings.Join(job.FailedSessions, " ") + "\n"
	}
	return job.SubjectID + " FAIL\n"
}

// emit sends ev without blocking. A full or absent channel drops the event;
// the monitor only mirrors state and dispatch must not stall behind it.
func (s *Scheduler) emit(ev Event) {
	if s.opts.Events == nil {
		return
	}
	select {
	case s.opts.Events <- ev:
	default:
	}
}
