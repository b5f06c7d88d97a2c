package handler

import (
	"context"
	"net/http"

	"github.com/haukkala/procpilot/internal/deploy"
	"github.com/haukkala/procpilot/internal/pm2"
	"github.com/haukkala/procpilot/internal/store"
	"github.com/labstack/echo/v4"
)

type Deployer interface {
	Create(ctx context.Context, req deploy.Request) (*deploy.Result, error)
	Update(ctx context.Context, name string) (*deploy.Result, error)
	Delete(ctx context.Context, name string, force bool) (*deploy.Result, error)
	Cancel(name string) bool
	GetConfig(name string) (string, string, error)
	History(ctx context.Context, name string, limit int64) ([]store.Deployment, error)
}

type SupervisorClient interface {
	List(ctx context.Context) ([]pm2.Process, error)
	Get(ctx context.Context, name string) (*pm2.Process, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Save(ctx context.Context) error
}

func NewProcessHandler(deployer Deployer, supervisor SupervisorClient) *ProcessHandler {
	return &ProcessHandler{deployer: deployer, supervisor: supervisor}
}

type ProcessHandler struct {
	deployer   Deployer
	supervisor SupervisorClient
}

func (h *ProcessHandler) Register(g *echo.Group) {
	g.GET("/processes", h.ListProcesses)
	g.POST("/processes", h.CreateProcess)
	g.GET("/processes/:name", h.GetProcess)
	g.PUT("/processes/:name", h.UpdateProcess)
	g.DELETE("/processes/:name", h.DeleteProcess)
	g.POST("/processes/:name/start", h.StartProcess)
	g.POST("/processes/:name/stop", h.StopProcess)
	g.POST("/processes/:name/restart", h.RestartProcess)
	g.POST("/processes/:name/cancel", h.CancelDeployment)
	g.GET("/processes/:name/config", h.GetProcessConfig)
	g.GET("/processes/:name/deployments", h.ListDeployments)
}

func (h *ProcessHandler) ListProcesses(c echo.Context) error {
	processes, err := h.supervisor.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, processes)
}

func (h *ProcessHandler) CreateProcess(c echo.Context) error {
	req := new(deploy.Request)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.deployer.Create(c.Request().Context(), *req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *ProcessHandler) GetProcess(c echo.Context) error {
	proc, err := h.supervisor.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, proc)
}

func (h *ProcessHandler) UpdateProcess(c echo.Context) error {
	result, err := h.deployer.Update(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ProcessHandler) DeleteProcess(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	result, err := h.deployer.Delete(c.Request().Context(), c.Param("name"), force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ProcessHandler) StartProcess(c echo.Context) error {
	if err := h.supervisor.Start(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProcessHandler) StopProcess(c echo.Context) error {
	if err := h.supervisor.Stop(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProcessHandler) RestartProcess(c echo.Context) error {
	if err := h.supervisor.Restart(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProcessHandler) CancelDeployment(c echo.Context) error {
	if !h.deployer.Cancel(c.Param("name")) {
		return echo.NewHTTPError(http.StatusNotFound, "no deployment in flight")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProcessHandler) GetProcessConfig(c echo.Context) error {
	path, content, err := h.deployer.GetConfig(c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"config_file": path,
		"content":     content,
	})
}

func (h *ProcessHandler) ListDeployments(c echo.Context) error {
	deployments, err := h.deployer.History(c.Request().Context(), c.Param("name"), 50)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, deployments)
}
