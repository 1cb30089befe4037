package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/structprep/structfan/dataset"
	"github.com/structprep/structfan/plan"
)

func TestSummaryCounts(t *testing.T) {
	s := NewSummary()
	require.Equal(t, 0, s.Total())

	s.Add(Outcome{Subject: "sub-001"})
	s.Add(Outcome{Subject: "sub-002", Failed: true, FailedSessions: []string{"ses-01"}})
	s.Add(Outcome{Subject: "sub-003"})

	require.Equal(t, 2, s.OK())
	require.Equal(t, 1, s.Fail())
	require.Equal(t, 3, s.Total())
	require.Equal(t, s.Total(), s.OK()+s.Fail())
}

func TestSummaryLine(t *testing.T) {
	s := NewSummary()
	require.Equal(t, "Summary: OK=0, FAIL=0", s.Line())

	s.Add(Outcome{Subject: "sub-001"})
	s.Add(Outcome{Subject: "sub-002", Failed: true})
	require.Equal(t, "Summary: OK=1, FAIL=1", s.Line())
}

func TestDetailLine(t *testing.T) {
	t.Run("no failures", func(t *testing.T) {
		s := NewSummary()
		s.Add(Outcome{Subject: "sub-001"})
		require.Empty(t, s.DetailLine())
	})

	t.Run("mixed", func(t *testing.T) {
		s := NewSummary()
		s.Add(Outcome{Subject: "sub-001", Failed: true, FailedSessions: []string{"ses-01", "ses-02"}})
		s.Add(Outcome{Subject: "sub-002"})
		s.Add(Outcome{Subject: "sub-003", Failed: true})
		require.Equal(t, "Failed: sub-001 (ses-01 ses-02), sub-003", s.DetailLine())
	})
}

func TestOutcomesKeepDispatchOrder(t *testing.T) {
	s := NewSummary()
	for _, subject := range []string{"sub-003", "sub-001", "sub-002"} {
		s.Add(Outcome{Subject: subject})
	}

	got := s.Outcomes()
	require.Len(t, got, 3)
	require.Equal(t, "sub-003", got[0].Subject)
	require.Equal(t, "sub-001", got[1].Subject)
	require.Equal(t, "sub-002", got[2].Subject)
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()

	s := NewSummary()
	s.Add(Outcome{Subject: "sub-001"})
	s.Add(Outcome{Subject: "sub-002", Failed: true, FailedSessions: []string{"ses-01"}})

	m := NewManifest(plan.Compute(8, 2, 0, 0), &dataset.Provenance{CommitSHA: strings.Repeat("a", 40)}, s)
	m.CreatedAt = time.Unix(1700000000, 0)

	path, err := WriteManifest(dir, m)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "run_1700000000.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Manifest
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, 1, got.OK)
	require.Equal(t, 1, got.Fail)
	require.Len(t, got.Outcomes, 2)
	require.Equal(t, "sub-002", got.Outcomes[1].Subject)
	require.Equal(t, []string{"ses-01"}, got.Outcomes[1].FailedSessions)
	require.NotNil(t, got.Dataset)
	require.Equal(t, 2, got.Plan.Jobs)

	// No temp file debris next to the manifest.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRenderPlain(t *testing.T) {
	s := NewSummary()
	s.Add(Outcome{Subject: "sub-001"})
	require.Equal(t, "Summary: OK=1, FAIL=0\n", Render(s, false))

	s.Add(Outcome{Subject: "sub-002", Failed: true, FailedSessions: []string{"ses-01"}})
	require.Equal(t, "Summary: OK=1, FAIL=1\nFailed: sub-002 (ses-01)\n", Render(s, false))
}

func TestRenderStyled(t *testing.T) {
	s := NewSummary()
	s.Add(Outcome{Subject: "sub-001"})
	s.Add(Outcome{Subject: "sub-002", Failed: true, FailedSessions: []string{"ses-01", "ses-02"}})

	out := Render(s, true)
	require.Contains(t, out, "OK=1")
	require.Contains(t, out, "FAIL=1")
	require.Contains(t, out, "sub-002")
	require.Contains(t, out, "(ses-01 ses-02)")
	// Only failed subjects are listed.
	require.NotContains(t, out, "sub-001")
}
