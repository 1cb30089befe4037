// Package cmd provides an abstraction layer for executing external commands.
//
// It defines the Executor interface which wraps os/exec functionality, and the
// PtyFactory interface which starts commands under a pseudo-terminal, enabling
// easier testing and mocking of command execution throughout the application.
package cmd
