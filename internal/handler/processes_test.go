package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/haukkala/procpilot/testutil"
)

func TestProcessHandler_CreateProcess(t *testing.T) {
	t.Run("success - deployment started and result returned", func(t *testing.T) {
		// arrange
		expectedResult := &deploy.Result{
			Success:        true,
			Message:        "process svc1 deployed successfully",
			ProcessName:    "svc1",
			ConfigFilePath: "/home/pm2/pm2-configs/svc1.config.js",
		}
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Create", mock.Anything, mock.MatchedBy(func(req deploy.Request) bool {
			return req.Name == "svc1" && req.Repository.URL == "https://github.com/acme/worker.git"
		})).Return(expectedResult, nil)

		body := `{
			"name": "svc1",
			"repository": {"url": "https://github.com/acme/worker.git", "branch": "main"},
			"script": "app.py"
		}`
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.CreateProcess(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"process_name":"svc1"`)
		assert.Contains(t, rec.Body.String(), `"config_file":"/home/pm2/pm2-configs/svc1.config.js"`)
		mockDeployer.AssertExpectations(t)
	})
	t.Run("failure - malformed body", func(t *testing.T) {
		// arrange
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewProcessHandler(new(testutil.MockDeployer), nil)

		// act
		err := h.CreateProcess(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
	t.Run("failure - deployer error is propagated", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Create", mock.Anything, mock.Anything).
			Return(nil, deploy.AlreadyExistsError{Name: "svc1"})

		body := `{"name": "svc1", "repository": {"url": "https://github.com/acme/worker.git"}}`
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.CreateProcess(c)

		// assert
		var exists deploy.AlreadyExistsError
		assert.ErrorAs(t, err, &exists)
	})
}

func TestProcessHandler_ListProcesses(t *testing.T) {
	t.Run("success - supervised processes returned", func(t *testing.T) {
		// arrange
		mockSupervisor := new(testutil.MockSupervisorClient)
		mockSupervisor.On("List", mock.Anything).Return([]pm2.Process{
			{Name: "svc1", PID: 1234, Env: pm2.Env{Status: pm2.StatusOnline}},
			{Name: "svc2", Env: pm2.Env{Status: "stopped"}},
		}, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := NewProcessHandler(nil, mockSupervisor)

		// act
		err := h.ListProcesses(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"svc1"`)
		assert.Contains(t, rec.Body.String(), `"status":"stopped"`)
	})
}

func TestProcessHandler_DeleteProcess(t *testing.T) {
	t.Run("success - force flag parsed from query", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Delete", mock.Anything, "svc1", true).
			Return(&deploy.Result{Success: true, ProcessName: "svc1"}, nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodDelete, "/api/processes/svc1?force=true", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.DeleteProcess(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		mockDeployer.AssertExpectations(t)
	})
	t.Run("failure - online process refusal is propagated", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Delete", mock.Anything, "svc1", false).
			Return(nil, deploy.SupervisorStateError{Name: "svc1", Message: "process svc1 is currently running"})

		e := echo.New()
		req := httptest.NewRequest(http.MethodDelete, "/api/processes/svc1", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.DeleteProcess(c)

		// assert
		var state deploy.SupervisorStateError
		assert.ErrorAs(t, err, &state)
	})
}

func TestProcessHandler_CancelDeployment(t *testing.T) {
	t.Run("success - in-flight deployment cancelled", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Cancel", "svc1").Return(true)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes/svc1/cancel", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.CancelDeployment(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
	t.Run("failure - nothing in flight", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("Cancel", "svc1").Return(false)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes/svc1/cancel", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.CancelDeployment(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.Code)
	})
}

func TestProcessHandler_GetProcessConfig(t *testing.T) {
	t.Run("success - path and content returned", func(t *testing.T) {
		// arrange
		mockDeployer := new(testutil.MockDeployer)
		mockDeployer.On("GetConfig", "svc1").
			Return("/home/pm2/pm2-configs/svc1.config.js", "module.exports = {};", nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes/svc1/config", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(mockDeployer, nil)

		// act
		err := h.GetProcessConfig(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "svc1.config.js")
		assert.Contains(t, rec.Body.String(), "module.exports")
	})
}

func TestProcessHandler_StartProcess(t *testing.T) {
	t.Run("success - supervisor start invoked", func(t *testing.T) {
		// arrange
		mockSupervisor := new(testutil.MockSupervisorClient)
		mockSupervisor.On("Start", mock.Anything, "svc1").Return(nil)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/processes/svc1/start", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("name")
		c.SetParamValues("svc1")
		h := NewProcessHandler(nil, mockSupervisor)

		// act
		err := h.StartProcess(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		mockSupervisor.AssertExpectations(t)
	})
}
