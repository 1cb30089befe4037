package cmd

import (
	"os/exec"
	"strings"
)

// Executor defines the interface for executing commands.
type Executor interface {
	// Run runs the command to completion.
	Run(cmd *exec.Cmd) error
	// Output runs the command and returns its standard output.
	Output(cmd *exec.Cmd) ([]byte, error)
	// Start launches the command without waiting and returns a handle to
	// wait on. The caller must Wait to release the process.
	Start(cmd *exec.Cmd) (Process, error)
}

// Process is a started command. Wait blocks until it exits and returns the
// same error cmd.Wait would.
type Process interface {
	Wait() error
}

type executor struct{}

func (e executor) Run(cmd *exec.Cmd) error {
	return cmd.Run()
}

func (e executor) Output(cmd *exec.Cmd) ([]byte, error) {
	return cmd.Output()
}

func (e executor) Start(cmd *exec.Cmd) (Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// MakeExecutor returns an Executor backed by os/exec.
func MakeExecutor() Executor {
	return executor{}
}

// ToString returns the command line as a single string for logs and tests.
func ToString(cmd *exec.Cmd) string {
	return strings.Join(cmd.Args, " ")
}
