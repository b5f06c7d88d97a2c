package command

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

type Outcome struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs a single shell command until it exits or ctx is done.
// The returned Outcome carries captured output even when the command
// failed; an error is returned for timeouts and non-zero exits.
type Runner interface {
	Run(ctx context.Context, command, workdir string) (*Outcome, error)
}

// FatalMatcher reports whether an error message indicates a failure
// that retrying cannot fix.
type FatalMatcher func(message string) bool

var fatalPatterns = []string{
	"authentication failed",
	"permission denied",
	"repository not found",
	"could not resolve host",
	"no such file or directory",
	"invalid configuration",
}

func DefaultFatalMatcher(message string) bool {
	lower := strings.ToLower(message)
	for _, pattern := range fatalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func NewExecutor(runner Runner, fatal FatalMatcher) *Executor {
	if fatal == nil {
		fatal = DefaultFatalMatcher
	}
	return &Executor{
		runner: runner,
		fatal:  fatal,
		// pm2 misbehaves when its CLI is invoked concurrently at a high
		// rate, so invocations are throttled across all deployments.
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

type Executor struct {
	runner  Runner
	fatal   FatalMatcher
	limiter *rate.Limiter
}

// Execute runs one command with a bounded timeout. A deadline elapse
// surfaces as TimeoutError, a non-zero exit as ExitError.
func (e *Executor) Execute(
	ctx context.Context,
	cmd, workdir string,
	timeout time.Duration,
) (*Outcome, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return &Outcome{}, err
	}

	log.Printf("running command: %s", cmd)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome, err := e.runner.Run(runCtx, cmd, workdir)
	if outcome == nil {
		outcome = &Outcome{}
	}
	if out := strings.TrimSpace(outcome.Stdout); out != "" {
		log.Printf("command stdout: %s", out)
	}
	if out := strings.TrimSpace(outcome.Stderr); out != "" {
		log.Printf("command stderr: %s", out)
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return outcome, TimeoutError{Command: cmd, Timeout: timeout}
	}
	if err != nil {
		return outcome, err
	}
	if outcome.ExitCode != 0 {
		return outcome, ExitError{
			Command:  cmd,
			ExitCode: outcome.ExitCode,
			Stdout:   outcome.Stdout,
			Stderr:   outcome.Stderr,
		}
	}

	outcome.Success = true
	return outcome, nil
}

// ExecuteWithRetry retries transient failures up to maxAttempts with a
// constant backoff delay between attempts. Failures matching the fatal
// matcher abort immediately; after exhaustion the last error surfaces.
func (e *Executor) ExecuteWithRetry(
	ctx context.Context,
	cmd, workdir string,
	timeout time.Duration,
	maxAttempts int,
	backoffDelay time.Duration,
) (*Outcome, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffDelay <= 0 {
		backoffDelay = time.Millisecond
	}

	var outcome *Outcome
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(backoffDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		outcome, err = e.Execute(ctx, cmd, workdir, timeout)
		if err == nil {
			return nil
		}
		if e.fatal(errorText(err, outcome)) {
			log.Printf("fatal error on attempt %d/%d: %v", attempt, maxAttempts, err)
			return err
		}
		log.Printf("command failed (attempt %d/%d): %v", attempt, maxAttempts, err)
		return retry.RetryableError(err)
	})

	return outcome, err
}

func errorText(err error, outcome *Outcome) string {
	text := err.Error()
	if outcome != nil {
		text += " " + outcome.Stderr + " " + outcome.Stdout
	}
	return text
}
