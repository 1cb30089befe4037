// Package dataset resolves the subject set of a BIDS-style dataset root and
// reads per-subject session layout.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSubjects is returned when neither the explicit list nor the dataset
// root yields any subjects.
var ErrNoSubjects = errors.New("no subjects found")

// Resolve returns the ordered subject set for a run. An explicit list wins
// and is used verbatim, de-duplicated with first occurrence kept; no
// existence check is made against root, so a missing subject surfaces later
// as a failed job. With no explicit list the root is scanned for sub-*
// directories in lexical order.
func Resolve(explicit []string, root string) ([]string, error) {
	if len(explicit) > 0 {
		return dedupe(explicit), nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset root: %w", err)
	}

	var subjects []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "sub-") {
			subjects = append(subjects, entry.Name())
		}
	}
	if len(subjects) == 0 {
		return nil, ErrNoSubjects
	}
	return subjects, nil
}

// Sessions lists the ses-* directories under root/subject in lexical order.
// Single-session subjects have no session directories; nil is returned for
// those and for unreadable subject directories alike.
func Sessions(root, subject string) []string {
	entries, err := os.ReadDir(filepath.Join(root, subject))
	if err != nil {
		return nil
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "ses-") {
			sessions = append(sessions, entry.Name())
		}
	}
	return sessions
}

func dedupe(subjects []string) []string {
	seen := make(map[string]bool, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
