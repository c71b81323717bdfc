package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/googleprojectzero/fuzzilli-sub008/mutator"
)

// TestShellEnvVar names the environment variable consumers use to point the
// engine at a target shell binary.
const TestShellEnvVar = "FUZZILLI_TEST_SHELL"

// Executor runs lifted programs against the target engine. Implementations
// decide nothing about the program's meaning; they only report what they
// observed.
type Executor interface {
	// Execute runs the given source with the given deadline.
	Execute(source string, timeout time.Duration) mutator.Execution
}

// CommandExecutor runs programs by spawning a target shell process. The
// dedicated fuzzout channel is file descriptor 3 of the child, kept separate
// from stdout and stderr.
type CommandExecutor struct {
	// Path is the target shell binary.
	Path string

	// Args precede the script file argument.
	Args []string
}

// NewExecutorFromEnv builds a CommandExecutor from FUZZILLI_TEST_SHELL,
// falling back to a node binary found in PATH.
func NewExecutorFromEnv() (*CommandExecutor, error) {
	if path := os.Getenv(TestShellEnvVar); path != "" {
		return &CommandExecutor{Path: path}, nil
	}
	if path, err := exec.LookPath("node"); err == nil {
		return &CommandExecutor{Path: path}, nil
	}
	return nil, fmt.Errorf("%s is not set and no node binary is in PATH", TestShellEnvVar)
}

// Execute implements the Executor contract.
func (e *CommandExecutor) Execute(source string, timeout time.Duration) mutator.Execution {
	script, err := os.CreateTemp("", "fuzzil-*.js")
	if err != nil {
		return mutator.Execution{Outcome: mutator.ExecutionFailed, Stderr: err.Error()}
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(source); err != nil {
		script.Close()
		return mutator.Execution{Outcome: mutator.ExecutionFailed, Stderr: err.Error()}
	}
	script.Close()

	fuzzoutR, fuzzoutW, err := os.Pipe()
	if err != nil {
		return mutator.Execution{Outcome: mutator.ExecutionFailed, Stderr: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Path, append(e.Args, script.Name())...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.ExtraFiles = []*os.File{fuzzoutW}

	runErr := cmd.Start()
	fuzzoutW.Close()
	fuzzout := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(fuzzoutR)
		fuzzoutR.Close()
		fuzzout <- buf.String()
	}()
	if runErr == nil {
		runErr = cmd.Wait()
	}

	result := mutator.Execution{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Fuzzout: <-fuzzout,
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Outcome = mutator.ExecutionTimedOut
	case runErr == nil:
		result.Outcome = mutator.ExecutionSucceeded
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ProcessState != nil && exitErr.ProcessState.ExitCode() == -1 {
			result.Outcome = mutator.ExecutionCrashed
		} else {
			result.Outcome = mutator.ExecutionFailed
		}
	}
	return result
}
