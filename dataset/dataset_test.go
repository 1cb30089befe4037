package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveExplicit(t *testing.T) {
	subjects, err := Resolve([]string{"sub-002", "sub-001", "sub-002", "sub-010"}, "/nonexistent")
	require.NoError(t, err)
	// Verbatim order with duplicates dropped; the root is never consulted.
	require.Equal(t, []string{"sub-002", "sub-001", "sub-010"}, subjects)
}

func TestResolveScansRoot(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"sub-010", "sub-001", "sub-002"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0755))
	}
	// Non-subject entries are ignored.
	require.NoError(t, os.Mkdir(filepath.Join(root, "derivatives"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub-999"), []byte("a file, not a dir"), 0644))

	subjects, err := Resolve(nil, root)
	require.NoError(t, err)
	require.Equal(t, []string{"sub-001", "sub-002", "sub-010"}, subjects)
}

func TestResolveEmptyRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "derivatives"), 0755))

	_, err := Resolve(nil, root)
	require.ErrorIs(t, err, ErrNoSubjects)
}

func TestResolveUnreadableRoot(t *testing.T) {
	_, err := Resolve(nil, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoSubjects)
}

func TestSessions(t *testing.T) {
	root := t.TempDir()
	subjDir := filepath.Join(root, "sub-001")
	for _, name := range []string{"ses-02", "ses-01"} {
		require.NoError(t, os.MkdirAll(filepath.Join(subjDir, name), 0755))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(subjDir, "anat"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(subjDir, "ses-03"), []byte("file"), 0644))

	require.Equal(t, []string{"ses-01", "ses-02"}, Sessions(root, "sub-001"))
}

func TestSessionsSingleSession(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub-001", "anat"), 0755))

	require.Nil(t, Sessions(root, "sub-001"))
	require.Nil(t, Sessions(root, "sub-404"))
}
