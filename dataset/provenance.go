package dataset

import (
	"path/filepath"

	"github.com/go-git/go-git/v5"
)

// Provenance records the version state of a dataset that lives under git
// (or git-annex/DataLad) control. It is embedded in the run manifest.
type Provenance struct {
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch,omitempty"`
	Dirty     bool   `json:"dirty"`
}

// GetProvenance returns the provenance of the repository enclosing root, or
// nil when root is not under version control. Failures to read repository
// state are treated the same as an unversioned dataset.
func GetProvenance(root string) *Provenance {
	repo := findEnclosingRepo(root)
	if repo == nil {
		return nil
	}

	head, err := repo.Head()
	if err != nil {
		// Unborn HEAD, e.g. a repository with no commits yet.
		return nil
	}

	p := &Provenance{CommitSHA: head.Hash().String()}
	if head.Name().IsBranch() {
		p.Branch = head.Name().Short()
	}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			p.Dirty = !status.IsClean()
		}
	}
	return p
}

// findEnclosingRepo walks up from path until it finds a git repository.
func findEnclosingRepo(path string) *git.Repository {
	currentPath := path
	for {
		repo, err := git.PlainOpen(currentPath)
		if err == nil {
			return repo
		}

		parent := filepath.Dir(currentPath)
		if parent == currentPath {
			// Reached the filesystem root without finding a repository
			return nil
		}
		currentPath = parent
	}
}
