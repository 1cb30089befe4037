package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mask aggressiveness levels accepted by the worker's --mask-aggressiveness flag.
const (
	MaskLiberal      = "liberal"
	MaskMedium       = "medium"
	MaskConservative = "conservative"
)

// DefaultWorkerCmd is the external per-subject pipeline command.
const DefaultWorkerCmd = "structprep"

// Run is the configuration of one coordinator run. Field values come from
// defaults, then an optional YAML file, then command-line flags.
type Run struct {
	// InputDir is the BIDS-like root holding one sub-* directory per subject.
	InputDir string `yaml:"input_dir" json:"input_dir"`
	// OutputDir is the derivatives root the workers write into.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// LogDir holds the coordinator log, one log and one result marker per job,
	// and the run manifest. Defaults to <output_dir>/logs.
	LogDir string `yaml:"log_dir" json:"log_dir"`

	// Subjects is an optional explicit subject list (sub-XXX form). When empty
	// the input directory is scanned instead.
	Subjects []string `yaml:"subjects" json:"subjects"`
	// Sessions is an optional session filter forwarded to every worker.
	Sessions []string `yaml:"sessions" json:"sessions"`

	Modalities         []string `yaml:"modalities" json:"modalities"`
	Isotropic          float64  `yaml:"isotropic" json:"isotropic"`
	Shape              string   `yaml:"shape" json:"shape"`
	KeepDepth          bool     `yaml:"keep_depth" json:"keep_depth"`
	MaskAggressiveness string   `yaml:"mask_aggressiveness" json:"mask_aggressiveness"`

	// FSBin overrides FreeSurfer bin discovery for both the coordinator's
	// preflight check and the workers.
	FSBin string `yaml:"fs_bin" json:"fs_bin"`

	// Jobs and Threads force the concurrency plan; 0 means auto-compute.
	Jobs    int `yaml:"jobs" json:"jobs"`
	Threads int `yaml:"threads" json:"threads"`

	// JoinPolicy is "any" (reclaim a slot when any running job finishes) or
	// "oldest" (block on the oldest outstanding job).
	JoinPolicy string `yaml:"join_policy" json:"join_policy"`
	// ExitPolicy is "ignore" (a worker's exit status never affects its
	// classification) or "fallback" (non-zero exit fails a job whose log is
	// inconclusive).
	ExitPolicy string `yaml:"exit_policy" json:"exit_policy"`

	// WorkerCmd is the worker executable; swap it for stub scripts in tests or
	// alternate installs.
	WorkerCmd string `yaml:"worker_cmd" json:"worker_cmd"`

	// StrictExit makes the coordinator itself exit non-zero when any job failed.
	StrictExit bool `yaml:"strict_exit" json:"strict_exit"`
	Watch      bool `yaml:"watch" json:"watch"`
	DryRun     bool `yaml:"dry_run" json:"dry_run"`
}

// Join policy names.
const (
	JoinAny    = "any"
	JoinOldest = "oldest"
)

// Exit policy names.
const (
	ExitIgnore   = "ignore"
	ExitFallback = "fallback"
)

// DefaultRun returns the default run configuration. The worker defaults
// (modalities, voxel size, shape, mask level) mirror the worker CLI's own
// defaults so that coordinator and worker agree when neither is overridden.
func DefaultRun() *Run {
	return &Run{
		Modalities:         []string{"T1w", "T2w", "FLAIR"},
		Isotropic:          1.0,
		Shape:              "256x256",
		KeepDepth:          true,
		MaskAggressiveness: MaskLiberal,
		JoinPolicy:         JoinAny,
		ExitPolicy:         ExitIgnore,
		WorkerCmd:          DefaultWorkerCmd,
	}
}

// LoadRun returns the defaults overlaid with the YAML file at path. An empty
// path returns the plain defaults.
func LoadRun(path string) (*Run, error) {
	run := DefaultRun()
	if path == "" {
		return run, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return run, nil
}

// Validate checks the configuration before any job is dispatched. Errors here
// are configuration errors: fatal, and reported before dispatch.
func (r *Run) Validate() error {
	if r.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if info, err := os.Stat(r.InputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("input directory not found: %s", r.InputDir)
	}
	if r.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	switch r.MaskAggressiveness {
	case MaskLiberal, MaskMedium, MaskConservative:
	default:
		return fmt.Errorf("invalid mask aggressiveness %q (want liberal, medium or conservative)", r.MaskAggressiveness)
	}
	switch r.JoinPolicy {
	case JoinAny, JoinOldest:
	default:
		return fmt.Errorf("invalid join policy %q (want any or oldest)", r.JoinPolicy)
	}
	switch r.ExitPolicy {
	case ExitIgnore, ExitFallback:
	default:
		return fmt.Errorf("invalid exit policy %q (want ignore or fallback)", r.ExitPolicy)
	}
	if r.Isotropic <= 0 {
		return fmt.Errorf("isotropic voxel size must be positive, got %g", r.Isotropic)
	}
	if _, _, err := ParseShape(r.Shape); err != nil {
		return err
	}
	if r.WorkerCmd == "" {
		return fmt.Errorf("worker command must not be empty")
	}
	return nil
}

// ParseShape parses an in-plane shape of the form HxW, e.g. "256x256".
func ParseShape(s string) (height, width int, err error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("shape must be HxW, e.g. 256x256, got %q", s)
	}
	height, err = strconv.Atoi(parts[0])
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("shape must be HxW with positive integers, got %q", s)
	}
	width, err = strconv.Atoi(parts[1])
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("shape must be HxW with positive integers, got %q", s)
	}
	return height, width, nil
}
