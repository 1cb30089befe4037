// Package archive packs preprocessed derivatives into fixed-size tar shards
// for training ingestion. Each sample bundles a final training volume, the
// session's brain mask, and a JSON metadata entry under a shared key.
package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/structprep/structfan/dataset"
	"github.com/structprep/structfan/log"
	"github.com/structprep/structfan/topology"
)

const (
	// DefaultShardSize is the target number of samples per shard.
	DefaultShardSize = 100
	// DefaultPrefix names shards <prefix>_NNN.tar.
	DefaultPrefix = "ADNI"
)

// modalityNames are recognized by substring match on the volume filename.
var modalityNames = []string{"T1w", "T2w", "FLAIR"}

// Options configures a packing run.
type Options struct {
	// DerivativesDir is the pipeline output root (contains sub-*/ses-*/anat).
	DerivativesDir string
	// OutDir receives the shards. Defaults to <DerivativesDir>/wds.
	OutDir string
	// Modalities filters training volumes by inferred modality. Empty keeps
	// all.
	Modalities []string
	// Subjects restricts the walk to the given subject IDs. Empty scans the
	// derivatives root.
	Subjects []string
	// Sessions restricts every subject to the given session IDs. Empty scans
	// each subject directory.
	Sessions []string
	// ShardSize is the target samples per shard.
	ShardSize int
	// Prefix is the shard filename prefix.
	Prefix string
	// StartIndex numbers the first shard.
	StartIndex int
	// GroupBySubject keeps one subject's samples within a single shard when
	// they fit.
	GroupBySubject bool
	// Workers bounds concurrent shard writes. Defaults to the core count.
	Workers int
	// DryRun plans the shard layout without writing anything.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.OutDir == "" {
		o.OutDir = filepath.Join(o.DerivativesDir, "wds")
	}
	if o.ShardSize < 1 {
		o.ShardSize = DefaultShardSize
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.StartIndex < 0 {
		o.StartIndex = 0
	}
	if o.Workers < 1 {
		o.Workers = topology.Cores()
	}
	return o
}

// Sample is one training volume paired with its session's brain mask.
type Sample struct {
	Subject    string
	Session    string
	Modality   string
	VolumePath string
	MaskPath   string
}

// Key is the shared tar entry stem: the volume filename minus .nii.gz.
func (s Sample) Key() string {
	return strings.TrimSuffix(filepath.Base(s.VolumePath), ".nii.gz")
}

type sampleMeta struct {
	Subject   string `json:"subject"`
	Session   string `json:"session"`
	Modality  string `json:"modality"`
	TrainPath string `json:"train_path"`
	MaskPath  string `json:"mask_path"`
}

// Result summarizes a packing run. Shards is nil on dry runs.
type Result struct {
	Samples    int
	ShardCount int
	Shards     []string
}

// InferModality matches known modality names against the filename and
// returns "UNK" for anything unrecognized.
func InferModality(name string) string {
	for _, m := range modalityNames {
		if strings.Contains(name, m) {
			return m
		}
	}
	return "UNK"
}

// Scan walks the derivatives tree and collects one sample per training
// volume. Sessions missing a brain mask or training volumes are skipped with
// a warning.
func Scan(opts Options) ([]Sample, error) {
	subjects, err := dataset.Resolve(opts.Subjects, opts.DerivativesDir)
	if errors.Is(err, dataset.ErrNoSubjects) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	filter := make(map[string]bool)
	for _, m := range opts.Modalities {
		if m = strings.TrimSpace(m); m != "" {
			filter[m] = true
		}
	}

	var samples []Sample
	for _, sub := range subjects {
		sessions := opts.Sessions
		if len(sessions) == 0 {
			sessions = dataset.Sessions(opts.DerivativesDir, sub)
		}
		for _, ses := range sessions {
			anat := filepath.Join(opts.DerivativesDir, sub, ses, "anat")
			if fi, err := os.Stat(anat); err != nil || !fi.IsDir() {
				continue
			}

			final := filepath.Join(anat, "final")
			masks, err := filepath.Glob(filepath.Join(final, "*_desc-brain_mask_space-iso*mm.nii.gz"))
			if err != nil {
				return nil, fmt.Errorf("failed to glob masks under %s: %w", final, err)
			}
			if len(masks) == 0 {
				log.WarningLog.Printf("no brain mask in %s, skipping %s %s", anat, sub, ses)
				continue
			}
			maskPath := masks[0]

			trains, err := filepath.Glob(filepath.Join(final, "*_desc-train.nii.gz"))
			if err != nil {
				return nil, fmt.Errorf("failed to glob training volumes under %s: %w", final, err)
			}
			kept := trains[:0]
			for _, p := range trains {
				if !strings.Contains(filepath.Base(p), "_desc-mask_") {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				log.WarningLog.Printf("no training volumes in %s, skipping %s %s", anat, sub, ses)
				continue
			}

			for _, p := range kept {
				mod := InferModality(filepath.Base(p))
				if len(filter) > 0 && !filter[mod] {
					continue
				}
				samples = append(samples, Sample{
					Subject:    sub,
					Session:    ses,
					Modality:   mod,
					VolumePath: p,
					MaskPath:   maskPath,
				})
			}
		}
	}
	return samples, nil
}

// Pack scans the derivatives tree, assigns samples to shards, and writes the
// shards with a bounded worker group. On dry runs the result carries the
// planned counts only.
func Pack(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	samples, err := Scan(opts)
	if err != nil {
		return nil, err
	}
	shards := assignShards(samples, opts.ShardSize, opts.GroupBySubject)

	res := &Result{Samples: len(samples), ShardCount: len(shards)}
	if opts.DryRun {
		return res, nil
	}
	if len(samples) == 0 {
		log.WarningLog.Printf("no samples found under %s", opts.DerivativesDir)
		return res, nil
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, items := range shards {
		path := filepath.Join(opts.OutDir, fmt.Sprintf("%s_%03d.tar", opts.Prefix, opts.StartIndex+i))
		paths[i] = path
		g.Go(func() error {
			return writeShard(gctx, path, items)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Shards = paths
	return res, nil
}

// assignShards splits samples into ordered shard contents. With
// groupBySubject set, a subject's samples stay together: a shard is flushed
// early rather than split a subject, and a subject larger than shardSize
// gets a shard of its own.
func assignShards(samples []Sample, shardSize int, groupBySubject bool) [][]Sample {
	if shardSize < 1 {
		shardSize = 1
	}
	if !groupBySubject {
		var shards [][]Sample
		for i := 0; i < len(samples); i += shardSize {
			end := min(i+shardSize, len(samples))
			shards = append(shards, samples[i:end:end])
		}
		return shards
	}

	bySubject := make(map[string][]Sample)
	for _, s := range samples {
		bySubject[s.Subject] = append(bySubject[s.Subject], s)
	}
	subjects := make([]string, 0, len(bySubject))
	for sub := range bySubject {
		subjects = append(subjects, sub)
	}
	sort.Strings(subjects)

	var shards [][]Sample
	var cur []Sample
	for _, sub := range subjects {
		items := bySubject[sub]
		if len(cur) > 0 && len(cur)+len(items) > shardSize {
			shards = append(shards, cur)
			cur = nil
		}
		if len(items) > shardSize && len(cur) == 0 {
			shards = append(shards, items)
		} else {
			cur = append(cur, items...)
		}
	}
	if len(cur) > 0 {
		shards = append(shards, cur)
	}
	return shards
}

// writeShard writes one tar shard through a temp file and renames it into
// place once complete.
func writeShard(ctx context.Context, path string, items []Sample) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".shard-*.tar")
	if err != nil {
		return fmt.Errorf("failed to create shard temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	tw := tar.NewWriter(tmp)
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := it.Key()
		if err := addFile(tw, key+".volume.nii.gz", it.VolumePath); err != nil {
			return err
		}
		if err := addFile(tw, key+".mask.nii.gz", it.MaskPath); err != nil {
			return err
		}
		meta, err := json.Marshal(sampleMeta{
			Subject:   it.Subject,
			Session:   it.Session,
			Modality:  it.Modality,
			TrainPath: it.VolumePath,
			MaskPath:  it.MaskPath,
		})
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", key, err)
		}
		if err := addBytes(tw, key+".meta.json", meta); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize shard %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close shard temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move shard into place: %w", err)
	}
	log.InfoLog.Printf("wrote %s (%d samples)", path, len(items))
	return nil
}

func addFile(tw *tar.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	hdr := &tar.Header{Name: name, Mode: 0644, Size: fi.Size(), ModTime: fi.ModTime()}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func addBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
