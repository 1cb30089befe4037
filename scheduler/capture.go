package scheduler

import (
	"io"
	"os"
	"os/exec"
)

// startCapture launches the command with its output captured to logFile. A
// pty is tried first so workers that gate progress lines on isatty still
// write them; pipe capture is the silent fallback, with stdout and stderr
// sharing the log file handle. On success the returned wait func blocks
// until the process exits and the log is fully drained, then hands back the
// exit error. On error logFile is left open for the caller.
func (s *Scheduler) startCapture(newCmd func() *exec.Cmd, logFile *os.File) (func() error, error) {
	c := newCmd()
	if ptmx, err := s.ptyf.Start(c); err == nil {
		return func() error {
			// Drain to EOF before waiting so the log tail is never lost.
			// Ptys error out instead of returning EOF once the child is
			// gone; either way the copy is done.
			_, _ = io.Copy(logFile, ptmx)
			_ = ptmx.Close()
			waitErr := c.Wait()
			_ = logFile.Close()
			return waitErr
		}, nil
	}

	// A failed pty start may have half-wired stdio on the first command, so
	// build a fresh one for the pipe path.
	c = newCmd()
	c.Stdout = logFile
	c.Stderr = logFile
	proc, err := s.cmdExec.Start(c)
	if err != nil {
		return nil, err
	}
	return func() error {
		waitErr := proc.Wait()
		_ = logFile.Close()
		return waitErr
	}, nil
}
