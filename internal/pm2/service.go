// Package pm2 drives the external PM2 process supervisor through its
// command-line control surface and materializes the per-process
// ecosystem configuration artifact it consumes.
package pm2

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haukkala/procpilot/internal/command"
)

type ProcessNotFoundError struct {
	Name string
}

func (e ProcessNotFoundError) Error() string {
	return fmt.Sprintf("process %s not found", e.Name)
}

type InvalidNameError struct {
	Name string
}

func (e InvalidNameError) Error() string {
	return fmt.Sprintf("invalid process name %q", e.Name)
}

var processNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// checkName rejects names that could escape the composed command line
// before any subcommand string is built from them.
func checkName(name string) error {
	if !processNamePattern.MatchString(name) {
		return InvalidNameError{Name: name}
	}
	return nil
}

type Options struct {
	Bin            string
	CommandTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

func NewService(executor *command.Executor, opts Options) *Service {
	if opts.Bin == "" {
		opts.Bin = "pm2"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Service{executor: executor, opts: opts}
}

// Service invokes pm2 subcommands with retries on transient failures.
// The supervisor's process table is external shared state and is only
// ever touched through these commands.
type Service struct {
	executor *command.Executor
	opts     Options
}

// Verify checks that pm2 is installed and reachable.
func (s *Service) Verify(ctx context.Context) (string, error) {
	outcome, err := s.executor.Execute(ctx, s.opts.Bin+" --version", "", 5*time.Second)
	if err != nil {
		return "", fmt.Errorf("pm2 is not properly installed or accessible: %w", err)
	}
	return strings.TrimSpace(outcome.Stdout), nil
}

// List returns all supervised processes from `pm2 jlist`.
func (s *Service) List(ctx context.Context) ([]Process, error) {
	outcome, err := s.run(ctx, "jlist")
	if err != nil {
		return nil, err
	}
	var processes []Process
	if err := json.Unmarshal([]byte(outcome.Stdout), &processes); err != nil {
		return nil, fmt.Errorf("invalid pm2 process list: %w", err)
	}
	return processes, nil
}

// Get returns the descriptor for one process by name.
func (s *Service) Get(ctx context.Context, name string) (*Process, error) {
	processes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range processes {
		if processes[i].Name == name {
			return &processes[i], nil
		}
	}
	return nil, ProcessNotFoundError{Name: name}
}

func (s *Service) Start(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.run(ctx, fmt.Sprintf("start %s", name))
	return err
}

// StartConfig registers and starts a process from its configuration
// artifact, replacing any existing registration for the same name.
func (s *Service) StartConfig(ctx context.Context, configPath string) error {
	_, err := s.run(ctx, fmt.Sprintf("start %s --force", configPath))
	return err
}

func (s *Service) Stop(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.run(ctx, fmt.Sprintf("stop %s", name))
	return err
}

func (s *Service) Restart(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.run(ctx, fmt.Sprintf("restart %s", name))
	return err
}

func (s *Service) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.run(ctx, fmt.Sprintf("delete %s", name))
	return err
}

// Save persists the supervisor's process table so it survives a
// supervisor restart.
func (s *Service) Save(ctx context.Context) error {
	_, err := s.run(ctx, "save")
	return err
}

func (s *Service) run(ctx context.Context, subcommand string) (*command.Outcome, error) {
	return s.executor.ExecuteWithRetry(
		ctx,
		fmt.Sprintf("%s %s", s.opts.Bin, subcommand),
		"",
		s.opts.CommandTimeout,
		s.opts.MaxRetries,
		s.opts.RetryDelay,
	)
}
