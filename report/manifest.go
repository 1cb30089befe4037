package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/structprep/structfan/config"
	"github.com/structprep/structfan/dataset"
	"github.com/structprep/structfan/plan"
)

// Manifest is the persisted record of one run: the plan it ran under, the
// dataset version it saw, and every job outcome in dispatch order.
type Manifest struct {
	CreatedAt time.Time           `json:"created_at"`
	Plan      plan.Plan           `json:"plan"`
	Dataset   *dataset.Provenance `json:"dataset,omitempty"`
	OK        int                 `json:"ok"`
	Fail      int                 `json:"fail"`
	Outcomes  []Outcome           `json:"outcomes"`
}

// NewManifest assembles the manifest for a finished run. Dataset provenance
// may be nil for unversioned datasets.
func NewManifest(p plan.Plan, prov *dataset.Provenance, s *Summary) Manifest {
	return Manifest{
		CreatedAt: time.Now(),
		Plan:      p,
		Dataset:   prov,
		OK:        s.OK(),
		Fail:      s.Fail(),
		Outcomes:  s.Outcomes(),
	}
}

// WriteManifest persists the manifest into dir as run_<unix-ts>.json and
// returns the path. The write is atomic so a crash never leaves a truncated
// manifest behind.
func WriteManifest(dir string, m Manifest) (string, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run manifest: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run_%d.json", m.CreatedAt.Unix()))
	if err := config.AtomicWriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run manifest: %w", err)
	}
	return path, nil
}
