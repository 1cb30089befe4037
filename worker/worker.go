// Package worker builds the command line for one per-subject invocation of
// the external structprep pipeline.
package worker

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/structprep/structfan/config"
	"github.com/structprep/structfan/plan"
)

// MemBudgetMB is the fixed memory budget forwarded to every worker on
// --mem-mb. The coordinator does not size it from the host.
const MemBudgetMB = 16000

// Invocation is one worker run: a single subject processed with the run's
// shared settings and its slice of the concurrency plan.
type Invocation struct {
	Subject string
	Run     *config.Run
	Plan    plan.Plan
}

// Args returns the full worker argv after the executable. Each invocation
// carries exactly one subject and --n-jobs 1; the fan-out itself is the
// coordinator's job, so the worker must not fan out again. --nprocs and
// --omp-nthreads forward the plan's per-worker budgets.
func (inv Invocation) Args() []string {
	args := []string{
		"run",
		"--input-dir", inv.Run.InputDir,
		"--output-dir", inv.Run.OutputDir,
		"--subjects", inv.Subject,
		"--modalities", strings.Join(inv.Run.Modalities, ","),
		"--isotropic", strconv.FormatFloat(inv.Run.Isotropic, 'g', -1, 64),
		"--shape", inv.Run.Shape,
	}
	if inv.Run.KeepDepth {
		args = append(args, "--keep-depth")
	} else {
		args = append(args, "--no-keep-depth")
	}
	args = append(args,
		"--mask-aggressiveness", inv.Run.MaskAggressiveness,
		"--n-jobs", "1",
		"--nprocs", strconv.Itoa(inv.Plan.ProcessLimit),
		"--omp-nthreads", strconv.Itoa(inv.Plan.ThreadsPerJob),
		"--mem-mb", strconv.Itoa(MemBudgetMB),
	)
	if len(inv.Run.Sessions) > 0 {
		args = append(args, "--sessions")
		args = append(args, inv.Run.Sessions...)
	}
	if inv.Run.FSBin != "" {
		args = append(args, "--fs-bin", inv.Run.FSBin)
	}
	if inv.Run.DryRun {
		args = append(args, "--dry-run")
	}
	return args
}

// Command returns the exec.Cmd for this invocation. The caller wires stdio,
// environment and context before starting it.
func (inv Invocation) Command() *exec.Cmd {
	return exec.Command(inv.Run.WorkerCmd, inv.Args()...)
}
