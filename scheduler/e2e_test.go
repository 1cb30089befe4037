package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/structprep/structfan/cmd"
	"github.com/structprep/structfan/plan"
)

const stubWorkerScript = `#!/bin/sh
subj=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--subjects" ]; then
    subj="$a"
  fi
  prev="$a"
done
if [ "$subj" = "sub-002" ]; then
  printf '%s\n' "some registration noise"
  printf '%s\n' "✗ Failed $subj ses-01: synthetic failure"
else
  printf '%s\n' "✓ Completed $subj ses-01"
fi
exit 0
`

// TestRunWithRealWorkerScript drives the scheduler end to end with a real
// process per subject, standing in a shell script for the pipeline worker.
func TestRunWithRealWorkerScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	script := filepath.Join(t.TempDir(), "structprep-stub")
	require.NoError(t, os.WriteFile(script, []byte(stubWorkerScript), 0755))

	run := newTestRun(t)
	run.WorkerCmd = script

	events := make(chan Event, 32)
	s := NewWithDeps(Options{
		Plan:   plan.Compute(2, 3, 2, 1),
		Run:    run,
		Events: events,
	}, cmd.MakeExecutor(), failingPtyFactory{})

	summary, err := s.Run(context.Background(), subjectList(3))
	require.NoError(t, err)

	require.Equal(t, 2, summary.OK())
	require.Equal(t, 1, summary.Fail())
	require.Equal(t, "Summary: OK=2, FAIL=1", summary.Line())
	require.Equal(t, "Failed: sub-002 (ses-01)", summary.DetailLine())

	require.Equal(t, "sub-001 OK\n", readMarker(t, run.LogDir, "sub-001"))
	require.Equal(t, "sub-002 FAIL ses-01\n", readMarker(t, run.LogDir, "sub-002"))
	require.Equal(t, "sub-003 OK\n", readMarker(t, run.LogDir, "sub-003"))

	outcomes := summary.Outcomes()
	require.Len(t, outcomes, 3)
	data, err := os.ReadFile(outcomes[1].LogPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "synthetic failure")
	require.Contains(t, string(data), "registration noise")

	dispatched := 0
drain:
	for {
		select {
		case ev := <-events:
			if ev.Type == EventDispatched {
				dispatched++
			}
		default:
			break drain
		}
	}
	require.Equal(t, 3, dispatched)
}
