package command

import (
	"errors"
	"fmt"
	"time"
)

type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf(
		"command '%s' timed out after %d seconds",
		e.Command, int(e.Timeout.Seconds()),
	)
}

type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e ExitError) Error() string {
	detail := e.Stderr
	if detail == "" {
		detail = e.Stdout
	}
	return fmt.Sprintf(
		"command '%s' failed with exit code %d: %s",
		e.Command, e.ExitCode, detail,
	)
}

func IsTimeout(err error) bool {
	var te TimeoutError
	return errors.As(err, &te)
}
