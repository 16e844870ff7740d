package registration

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/minvws/gfmodules-nationale-verwijsindex-registratie-service/internal/platform/fhir"
)

// Handler exposes bundle registration.
type Handler struct {
	bundles *BundleService
}

func NewHandler(bundles *BundleService) *Handler {
	return &Handler{bundles: bundles}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/registration", h.Register)
}

// Register accepts a FHIR bundle of clinical resources and answers with a
// transaction-response bundle of per-entry outcomes. Structural violations
// fail the whole request with a single OperationOutcome.
func (h *Handler) Register(c echo.Context) error {
	var bundle fhir.Bundle
	if err := c.Bind(&bundle); err != nil || bundle.ResourceType == "" {
		return c.JSON(http.StatusBadRequest, fhir.ExceptionOutcome("Resource is missing in the request"))
	}

	result, err := h.bundles.Register(c.Request().Context(), &bundle)
	if err != nil {
		if errors.Is(err, ErrInvalidResource) {
			return c.JSON(http.StatusBadRequest, fhir.ExceptionOutcome(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ExceptionOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, result)
}
