// Package report aggregates job outcomes into the run summary and persists
// the run manifest.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is one subject's final result.
type Outcome struct {
	Subject        string    `json:"subject"`
	Failed         bool      `json:"failed"`
	FailedSessions []string  `json:"failed_sessions,omitempty"`
	LogPath        string    `json:"log_path,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Summary accumulates outcomes in dispatch order. Every subject lands in
// exactly one bucket, so OK()+Fail() always equals Total().
type Summary struct {
	outcomes []Outcome
	ok       int
	fail     int
}

func NewSummary() *Summary {
	return &Summary{}
}

// Add records one outcome. The scheduler calls this in dispatch order
// regardless of completion order.
func (s *Summary) Add(o Outcome) {
	s.outcomes = append(s.outcomes, o)
	if o.Failed {
		s.fail++
	} else {
		s.ok++
	}
}

func (s *Summary) OK() int    { return s.ok }
func (s *Summary) Fail() int  { return s.fail }
func (s *Summary) Total() int { return s.ok + s.fail }

// Outcomes returns the recorded outcomes in dispatch order.
func (s *Summary) Outcomes() []Outcome {
	out := make([]Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// Failed returns the failed outcomes in dispatch order.
func (s *Summary) Failed() []Outcome {
	var failed []Outcome
	for _, o := range s.outcomes {
		if o.Failed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Line renders the one-line run summary, e.g. "Summary: OK=3, FAIL=1".
func (s *Summary) Line() string {
	return fmt.Sprintf("Summary: OK=%d, FAIL=%d", s.ok, s.fail)
}

// DetailLine renders the failed subjects with their failed sessions, e.g.
// "Failed: sub-001 (ses-01 ses-02), sub-003". Subjects whose log named no
// session get no parenthetical. Empty string when nothing failed.
func (s *Summary) DetailLine() string {
	failed := s.Failed()
	if len(failed) == 0 {
		return ""
	}

	parts := make([]string, 0, len(failed))
	for _, o := range failed {
		if len(o.FailedSessions) > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s)", o.Subject, strings.Join(o.FailedSessions, " ")))
		} else {
			parts = append(parts, o.Subject)
		}
	}
	return "Failed: " + strings.Join(parts, ", ")
}
