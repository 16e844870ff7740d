package synchronizer

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/domain/identity"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/scheduler"
)

// Handler exposes synchronization, cache and scheduler control endpoints.
type Handler struct {
	svc   *Service
	sched *scheduler.Scheduler
}

func NewHandler(svc *Service, sched *scheduler.Scheduler) *Handler {
	return &Handler{svc: svc, sched: sched}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/synchronize", h.Synchronize)
	e.POST("/cache/clear", h.ClearCache)
	e.POST("/scheduler/start", h.StartScheduler)
	e.POST("/scheduler/stop", h.StopScheduler)
	e.GET("/scheduler/runners-history", h.RunnersHistory)
}

// Synchronize runs one pass for the requested data domain, or for every
// configured domain when none is given.
func (h *Handler) Synchronize(c echo.Context) error {
	raw := c.QueryParam("data_domain")
	if raw == "" {
		results, err := h.svc.SynchronizeAllDomains(c.Request().Context())
		if err != nil {
			return syncError(c, err)
		}
		return c.JSON(http.StatusOK, results)
	}

	domain, err := h.allowedDomain(raw)
	if err != nil {
		return err
	}
	results, err := h.svc.SynchronizeDomain(c.Request().Context(), domain)
	if err != nil {
		return syncError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// ClearCache resets the high-water mark of one domain, or of all domains
// when none is given, and returns the resulting domain map.
func (h *Handler) ClearCache(c echo.Context) error {
	raw := c.QueryParam("data_domain")
	if raw == "" {
		entries, err := h.svc.ClearCache(nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, entries)
	}

	domain, err := h.allowedDomain(raw)
	if err != nil {
		return err
	}
	entries, err := h.svc.ClearCache(&domain)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) StartScheduler(c echo.Context) error {
	h.sched.Start()
	return c.NoContent(http.StatusOK)
}

func (h *Handler) StopScheduler(c echo.Context) error {
	h.sched.Stop()
	return c.NoContent(http.StatusOK)
}

func (h *Handler) RunnersHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sched.RunnersHistory())
}

// allowedDomain validates an inbound domain name against the configured
// set.
func (h *Handler) allowedDomain(raw string) (identity.DataDomain, error) {
	allowed := h.svc.AllowedDomains()
	for _, domain := range allowed {
		if domain.String() == raw {
			return domain, nil
		}
	}
	names := make([]string, len(allowed))
	for i, domain := range allowed {
		names[i] = domain.String()
	}
	return "", echo.NewHTTPError(http.StatusBadRequest,
		fmt.Sprintf("Invalid data_domain. Must be one of: %s", strings.Join(names, ", ")))
}

func syncError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
}
