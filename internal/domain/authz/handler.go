package authz

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the permission check endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/authorize", h.CheckPermission)
}

// CheckPermission answers whether the calling organization may access the
// record named in the request. The response body is a bare boolean.
func (h *Handler) CheckPermission(c echo.Context) error {
	var req PermissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if req.EncryptedLMRID == "" || req.ClientUraNumber.IsZero() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "encrypted_lmr_id and client_ura_number are required")
	}

	allowed, err := h.svc.Authorize(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, allowed)
}
