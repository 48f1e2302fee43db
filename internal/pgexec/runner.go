package pgexec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Command is one subprocess invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the parent environment.
	Env []string
}

// Runner runs a subprocess to completion and returns its stderr. A non-zero
// exit is reported through the error; cancelling ctx kills the process.
type Runner interface {
	Run(ctx context.Context, cmd Command) (stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// exitCode returns the process exit code, or -1 when the process never ran
// or was killed.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
