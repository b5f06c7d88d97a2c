package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/haukkala/procpilot/internal/command"
	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Timestamp string `json:"timestamp"`
}

// ErrorHandler maps the core's error kinds onto HTTP statuses so the
// transport never leaks a bare 500 for a well-understood failure.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	errorType := "InternalError"

	var (
		httpErr        *echo.HTTPError
		validationErr  deploy.ValidationError
		invalidNameErr pm2.InvalidNameError
		existsErr      deploy.AlreadyExistsError
		notFoundErr    deploy.NotFoundError
		pm2NotFoundErr pm2.ProcessNotFoundError
		stateErr       deploy.SupervisorStateError
		deadlineErr    deploy.DeployTimeoutError
		timeoutErr     command.TimeoutError
		exitErr        command.ExitError
	)
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		errorType = http.StatusText(status)
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		errorType = "ValidationError"
	case errors.As(err, &invalidNameErr):
		status = http.StatusBadRequest
		errorType = "ValidationError"
	case errors.As(err, &existsErr):
		status = http.StatusConflict
		errorType = "ProcessAlreadyExistsError"
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
		errorType = "ProcessNotFoundError"
	case errors.As(err, &pm2NotFoundErr):
		status = http.StatusNotFound
		errorType = "ProcessNotFoundError"
	case errors.As(err, &stateErr):
		status = http.StatusConflict
		errorType = "SupervisorStateError"
	case errors.As(err, &deadlineErr):
		status = http.StatusGatewayTimeout
		errorType = "DeployTimeoutError"
	case errors.As(err, &timeoutErr):
		status = http.StatusGatewayTimeout
		errorType = "CommandTimeoutError"
	case errors.As(err, &exitErr):
		errorType = "CommandFailedError"
	}

	if status == http.StatusInternalServerError {
		log.Printf("handler error %s: %+v", c.Request().URL.Path, err)
	}

	if err := c.JSON(status, errorResponse{
		Error:     err.Error(),
		ErrorType: errorType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("err returning json: %+v", err)
	}
}
