package cmd

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// PtyFactory starts commands attached to a pseudo-terminal so that children
// which gate their output on isatty still produce their full log text.
type PtyFactory interface {
	// Start launches the command with its stdio on a fresh pty and returns
	// the controlling side. The command is started when Start returns nil.
	Start(cmd *exec.Cmd) (*os.File, error)
	Close()
}

type ptyFactory struct{}

func (ptyFactory) Start(cmd *exec.Cmd) (*os.File, error) {
	return pty.Start(cmd)
}

func (ptyFactory) Close() {}

// MakePtyFactory returns the pty-backed factory. On platforms without pty
// support Start fails and callers fall back to pipe capture.
func MakePtyFactory() PtyFactory {
	return ptyFactory{}
}
