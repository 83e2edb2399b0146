package attendance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rollcall/internal/apperror"
	"github.com/keyxmakerx/rollcall/internal/plugins/auth"
)

// Handler handles HTTP requests for attendance. Handlers are thin: bind
// request, call service, write response.
type Handler struct {
	service AttendanceService
}

// NewHandler creates a new attendance handler.
func NewHandler(service AttendanceService) *Handler {
	return &Handler{service: service}
}

// Mark records today's attendance (POST /api/attendance/mark). An empty
// body marks present.
func (h *Handler) Mark(c echo.Context) error {
	claims := auth.GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	var req MarkRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	record, err := h.service.Mark(c.Request().Context(), claims, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"record": record})
}

// History lists the caller's recent records (GET /api/attendance/history).
func (h *Handler) History(c echo.Context) error {
	claims := auth.GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	records, err := h.service.History(c.Request().Context(), claims.UserID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records})
}

// ListAll returns every member's records (GET /api/admin/attendance).
func (h *Handler) ListAll(c echo.Context) error {
	claims := auth.GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	records, err := h.service.ListAll(c.Request().Context(), claims)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records})
}
