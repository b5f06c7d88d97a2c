package deploy

import "fmt"

type AlreadyExistsError struct {
	Name string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("process %s already exists", e.Name)
}

type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("process %s not found", e.Name)
}

// SupervisorStateError is returned when the supervisor's state forbids
// the requested operation, e.g. deleting a running process without force.
type SupervisorStateError struct {
	Name    string
	Message string
}

func (e SupervisorStateError) Error() string {
	return e.Message
}

type DeployTimeoutError struct {
	Name string
}

func (e DeployTimeoutError) Error() string {
	return fmt.Sprintf("deployment of %s exceeded its deadline", e.Name)
}

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}
