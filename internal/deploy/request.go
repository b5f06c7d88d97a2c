package deploy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	namePattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
)

// Repository identifies the git source of a process.
type Repository struct {
	URL    string `json:"url" yaml:"url"`
	Branch string `json:"branch" yaml:"branch"`
}

// Request describes one process to deploy. It is immutable input,
// validated before any external operation runs.
type Request struct {
	Name        string            `json:"name" yaml:"name"`
	Repository  Repository        `json:"repository" yaml:"repository"`
	Script      string            `json:"script" yaml:"script"`
	Cron        string            `json:"cron,omitempty" yaml:"cron,omitempty"`
	AutoRestart bool              `json:"auto_restart" yaml:"auto_restart"`
	EnvVars     map[string]string `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
}

// WithDefaults returns a copy with unset optional fields filled in.
func (r Request) WithDefaults() Request {
	if r.Repository.Branch == "" {
		r.Repository.Branch = "main"
	}
	if r.Script == "" {
		r.Script = "app.py"
	}
	return r
}

// validateProcessName guards every operation that composes shell
// commands or filesystem paths from a caller-supplied name.
func validateProcessName(name string) error {
	if !namePattern.MatchString(name) {
		return ValidationError{Message: fmt.Sprintf("invalid process name %q", name)}
	}
	return nil
}

func (r Request) Validate() error {
	if err := validateProcessName(r.Name); err != nil {
		return err
	}
	if r.Repository.URL == "" {
		return ValidationError{Message: "repository url is required"}
	}
	if strings.ContainsAny(r.Repository.URL, " '\";$`") {
		return ValidationError{Message: fmt.Sprintf("invalid repository url %q", r.Repository.URL)}
	}
	if r.Repository.Branch != "" && !branchPattern.MatchString(r.Repository.Branch) {
		return ValidationError{Message: fmt.Sprintf("invalid branch %q", r.Repository.Branch)}
	}
	if strings.ContainsAny(r.Script, " '\";$`") {
		return ValidationError{Message: fmt.Sprintf("invalid script %q", r.Script)}
	}
	if cronExpr := strings.TrimSpace(r.Cron); cronExpr != "" {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return ValidationError{Message: fmt.Sprintf("invalid cron pattern %q: %v", cronExpr, err)}
		}
	}
	return nil
}

// StepResult is the captured output of one finished pipeline step.
type StepResult struct {
	Step   string `json:"step"`
	Output string `json:"output,omitempty"`
}

// Result is the single terminal outcome of one pipeline run.
type Result struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	ProcessName    string       `json:"process_name"`
	ConfigFilePath string       `json:"config_file,omitempty"`
	Err            error        `json:"-"`
	Error          string       `json:"error,omitempty"`
	StepTrace      []StepResult `json:"step_trace,omitempty"`
}
