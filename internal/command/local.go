package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// NewLocalRunner returns a Runner that executes commands through the
// local shell. Extra environment entries are appended to the parent
// environment for every command.
func NewLocalRunner(env ...string) *LocalRunner {
	return &LocalRunner{env: env}
}

type LocalRunner struct {
	env []string
}

func (r *LocalRunner) Run(ctx context.Context, command, workdir string) (*Outcome, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), r.env...)
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	g := new(errgroup.Group)
	g.Go(func() error {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			stdout.WriteString(scanner.Text() + "\n")
		}
		return scanner.Err()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			stderr.WriteString(scanner.Text() + "\n")
		}
		return scanner.Err()
	})
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	outcome := &Outcome{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, nil
		}
		return outcome, waitErr
	}
	if scanErr != nil && ctx.Err() == nil {
		return outcome, scanErr
	}
	return outcome, nil
}
