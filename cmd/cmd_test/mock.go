// Package cmd_test provides mock implementations of the cmd interfaces for
// testing.
package cmd_test

import (
	"os/exec"

	"github.com/structprep/structfan/cmd"
)

// MockCmdExec implements cmd.Executor with pluggable functions. Unset
// functions make the corresponding call a no-op success.
type MockCmdExec struct {
	RunFunc    func(cmd *exec.Cmd) error
	OutputFunc func(cmd *exec.Cmd) ([]byte, error)
	StartFunc  func(c *exec.Cmd) (cmd.Process, error)
}

func (m MockCmdExec) Run(c *exec.Cmd) error {
	if m.RunFunc == nil {
		return nil
	}
	return m.RunFunc(c)
}

func (m MockCmdExec) Output(c *exec.Cmd) ([]byte, error) {
	if m.OutputFunc == nil {
		return nil, nil
	}
	return m.OutputFunc(c)
}

func (m MockCmdExec) Start(c *exec.Cmd) (cmd.Process, error) {
	if m.StartFunc == nil {
		return NopProcess{}, nil
	}
	return m.StartFunc(c)
}

// NopProcess is a Process whose Wait returns immediately.
type NopProcess struct {
	Err error
}

func (p NopProcess) Wait() error { return p.Err }
