// Package classify turns one worker's captured log text into a job outcome.
//
// Workers signal per-session failures on stdout rather than through their
// exit status, so classification reads the log. Three signals are consulted
// in strict precedence: a structured result record if the worker emitted one,
// the per-session failure marker lines, and finally the exit status as
// configured by the policy.
package classify

import (
	"encoding/json"
	"strings"
)

// FailureMarker opens the per-session failure lines workers print, e.g.
// "✗ Failed sub-001 ses-01: missing anat directory". The trailing space
// keeps "✗ FailedX" from matching.
const FailureMarker = "✗ Failed "

// ResultRecordPrefix opens the structured result line newer workers print as
// their final word, e.g. STRUCTPREP_RESULT {"status":"fail","failed_sessions":["ses-01"]}.
const ResultRecordPrefix = "STRUCTPREP_RESULT "

// Result record status values.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// ExitPolicy controls whether a worker's exit status may enter
// classification.
type ExitPolicy string

const (
	// ExitIgnore classifies from log text alone. Workers exit zero even
	// when sessions fail, so their exit status carries no signal.
	ExitIgnore ExitPolicy = "ignore"
	// ExitFallback additionally fails a job whose process exited non-zero
	// while its log stayed inconclusive, catching crashes before the first
	// marker line.
	ExitFallback ExitPolicy = "fallback"
)

// Result is the classified outcome of one job.
type Result struct {
	Failed bool
	// FailedSessions lists the sessions extracted from the log in encounter
	// order, duplicates preserved. May be empty for a failed job whose log
	// named no session.
	FailedSessions []string
}

type resultRecord struct {
	Status         string   `json:"status"`
	FailedSessions []string `json:"failed_sessions"`
}

// Classify derives the outcome of a job from its captured log text and its
// process exit error. The last valid result record in the log wins outright;
// with no record, any failure marker fails the job; with neither, exitErr
// counts only under ExitFallback.
func Classify(logText string, exitErr error, policy ExitPolicy) Result {
	if rec, ok := lastResultRecord(logText); ok {
		return Result{Failed: rec.Status == StatusFail, FailedSessions: rec.FailedSessions}
	}

	if sessions, failed := scanFailureMarkers(logText); failed {
		return Result{Failed: true, FailedSessions: sessions}
	}

	if policy == ExitFallback && exitErr != nil {
		return Result{Failed: true}
	}
	return Result{}
}

// lastResultRecord returns the last parseable result record in the log.
// Unparseable or unknown-status records are skipped, not fatal, so a worker
// that garbles its final line degrades to marker scanning.
func lastResultRecord(logText string) (resultRecord, bool) {
	var rec resultRecord
	found := false
	for _, line := range strings.Split(logText, "\n") {
		// Pty capture leaves \r line endings behind.
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ResultRecordPrefix) {
			continue
		}
		var r resultRecord
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, ResultRecordPrefix)), &r); err != nil {
			continue
		}
		if r.Status != StatusOK && r.Status != StatusFail {
			continue
		}
		rec = r
		found = true
	}
	return rec, found
}

// scanFailureMarkers collects the failed sessions named by marker lines. The
// session is the fourth whitespace field with trailing punctuation stripped;
// marker lines too short to name a session still fail the job.
func scanFailureMarkers(logText string) (sessions []string, failed bool) {
	for _, line := range strings.Split(logText, "\n") {
		if !strings.Contains(line, FailureMarker) {
			continue
		}
		failed = true
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if ses := strings.TrimRight(fields[3], ":;,."); ses != "" {
			sessions = append(sessions, ses)
		}
	}
	return sessions, failed
}
