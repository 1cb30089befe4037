package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRun(t *testing.T) {
	run := DefaultRun()

	require.Equal(t, []string{"T1w", "T2w", "FLAIR"}, run.Modalities)
	require.Equal(t, 1.0, run.Isotropic)
	require.Equal(t, "256x256", run.Shape)
	require.True(t, run.KeepDepth)
	require.Equal(t, MaskLiberal, run.MaskAggressiveness)
	require.Equal(t, JoinAny, run.JoinPolicy)
	require.Equal(t, ExitIgnore, run.ExitPolicy)
	require.Equal(t, DefaultWorkerCmd, run.WorkerCmd)
	require.Zero(t, run.Jobs, "jobs should default to auto")
	require.Zero(t, run.Threads, "threads should default to auto")
}

func TestLoadRunOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
input_dir: /data/bids
output_dir: /data/derivatives
modalities: [T1w]
jobs: 4
mask_aggressiveness: conservative
strict_exit: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	run, err := LoadRun(path)
	require.NoError(t, err)

	require.Equal(t, "/data/bids", run.InputDir)
	require.Equal(t, "/data/derivatives", run.OutputDir)
	require.Equal(t, []string{"T1w"}, run.Modalities)
	require.Equal(t, 4, run.Jobs)
	require.Equal(t, MaskConservative, run.MaskAggressiveness)
	require.True(t, run.StrictExit)

	// Untouched fields keep their defaults.
	require.Equal(t, "256x256", run.Shape)
	require.Equal(t, JoinAny, run.JoinPolicy)
	require.Equal(t, 1.0, run.Isotropic)
}

func TestLoadRunEmptyPath(t *testing.T) {
	run, err := LoadRun("")
	require.NoError(t, err)
	require.Equal(t, DefaultRun(), run)
}

func TestLoadRunBadFile(t *testing.T) {
	_, err := LoadRun(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modalities: [unterminated"), 0644))
	_, err = LoadRun(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Run {
		t.Helper()
		run := DefaultRun()
		run.InputDir = t.TempDir()
		run.OutputDir = filepath.Join(t.TempDir(), "out")
		return run
	}

	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, valid(t).Validate())
	})

	t.Run("missing input dir", func(t *testing.T) {
		run := valid(t)
		run.InputDir = ""
		require.Error(t, run.Validate())
	})

	t.Run("nonexistent input dir", func(t *testing.T) {
		run := valid(t)
		run.InputDir = filepath.Join(t.TempDir(), "nope")
		require.Error(t, run.Validate())
	})

	t.Run("missing output dir", func(t *testing.T) {
		run := valid(t)
		run.OutputDir = ""
		require.Error(t, run.Validate())
	})

	t.Run("bad mask aggressiveness", func(t *testing.T) {
		run := valid(t)
		run.MaskAggressiveness = "aggressive"
		require.Error(t, run.Validate())
	})

	t.Run("bad join policy", func(t *testing.T) {
		run := valid(t)
		run.JoinPolicy = "fastest"
		require.Error(t, run.Validate())
	})

	t.Run("bad exit policy", func(t *testing.T) {
		run := valid(t)
		run.ExitPolicy = "strict"
		require.Error(t, run.Validate())
	})

	t.Run("bad shape", func(t *testing.T) {
		run := valid(t)
		run.Shape = "256"
		require.Error(t, run.Validate())
	})

	t.Run("bad isotropic", func(t *testing.T) {
		run := valid(t)
		run.Isotropic = 0
		require.Error(t, run.Validate())
	})

	t.Run("empty worker command", func(t *testing.T) {
		run := valid(t)
		run.WorkerCmd = ""
		require.Error(t, run.Validate())
	})
}

func TestParseShape(t *testing.T) {
	h, w, err := ParseShape("256x256")
	require.NoError(t, err)
	require.Equal(t, 256, h)
	require.Equal(t, 256, w)

	h, w, err = ParseShape("192X224")
	require.NoError(t, err)
	require.Equal(t, 192, h)
	require.Equal(t, 224, w)

	for _, bad := range []string{"", "256", "256x", "x256", "256x256x256", "ax b", "-1x256", "0x256"} {
		_, _, err := ParseShape(bad)
		require.Error(t, err, "shape %q should not parse", bad)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.result")

	require.NoError(t, AtomicWriteFile(path, []byte("sub-001 OK\n"), 0644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sub-001 OK\n", string(data))

	// Overwriting replaces content wholesale.
	require.NoError(t, AtomicWriteFile(path, []byte("sub-001 FAIL ses-01\n"), 0644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sub-001 FAIL ses-01\n", string(data))

	// No temp file debris left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
