package worker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/structprep/structfan/config"
	"github.com/structprep/structfan/plan"
)

func testRun() *config.Run {
	run := config.DefaultRun()
	run.InputDir = "/data/bids"
	run.OutputDir = "/data/derivatives"
	return run
}

func TestArgsDefaults(t *testing.T) {
	inv := Invocation{
		Subject: "sub-001",
		Run:     testRun(),
		Plan:    plan.Compute(8, 3, 0, 0),
	}

	want := []string{
		"run",
		"--input-dir", "/data/bids",
		"--output-dir", "/data/derivatives",
		"--subjects", "sub-001",
		"--modalities", "T1w,T2w,FLAIR",
		"--isotropic", "1",
		"--shape", "256x256",
		"--keep-depth",
		"--mask-aggressiveness", "liberal",
		"--n-jobs", "1",
		"--nprocs", "8",
		"--omp-nthreads", "2",
		"--mem-mb", "16000",
	}
	if diff := cmp.Diff(want, inv.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsAllOptions(t *testing.T) {
	run := testRun()
	run.Sessions = []string{"ses-01", "ses-02"}
	run.Modalities = []string{"T1w"}
	run.Isotropic = 0.8
	run.Shape = "192x192"
	run.KeepDepth = false
	run.MaskAggressiveness = config.MaskConservative
	run.FSBin = "/opt/freesurfer/bin"
	run.DryRun = true

	inv := Invocation{
		Subject: "sub-777",
		Run:     run,
		Plan:    plan.Compute(16, 10, 4, 2),
	}

	want := []string{
		"run",
		"--input-dir", "/data/bids",
		"--output-dir", "/data/derivatives",
		"--subjects", "sub-777",
		"--modalities", "T1w",
		"--isotropic", "0.8",
		"--shape", "192x192",
		"--no-keep-depth",
		"--mask-aggressiveness", "conservative",
		"--n-jobs", "1",
		"--nprocs", "16",
		"--omp-nthreads", "2",
		"--mem-mb", "16000",
		"--sessions", "ses-01", "ses-02",
		"--fs-bin", "/opt/freesurfer/bin",
		"--dry-run",
	}
	if diff := cmp.Diff(want, inv.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsSingleSubjectAlways(t *testing.T) {
	// The fan-out dispatches one subject per worker regardless of how many
	// subjects the run resolves; the worker never fans out on its own.
	inv := Invocation{Subject: "sub-002", Run: testRun(), Plan: plan.Compute(4, 20, 0, 0)}

	args := inv.Args()
	for i, arg := range args {
		if arg == "--subjects" {
			require.Equal(t, "sub-002", args[i+1])
			// Exactly one subject value: the next token is a flag again.
			require.Equal(t, "--modalities", args[i+2])
		}
		if arg == "--n-jobs" {
			require.Equal(t, "1", args[i+1])
		}
	}
}

func TestCommand(t *testing.T) {
	run := testRun()
	run.WorkerCmd = "/usr/local/bin/structprep"
	inv := Invocation{Subject: "sub-001", Run: run, Plan: plan.Compute(2, 1, 0, 0)}

	cmd := inv.Command()
	require.Equal(t, "/usr/local/bin/structprep", cmd.Path)
	require.Equal(t, append([]string{"/usr/local/bin/structprep"}, inv.Args()...), cmd.Args)
}
