package professional

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agenda/agenda/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public profile on public and the settings
// endpoints on api, which must already require authentication.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.GET("/professionals/:slug", h.GetPublicProfile)

	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.UpdateProfile)
}

func (h *Handler) GetPublicProfile(c echo.Context) error {
	p, err := h.svc.BySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p.Public())
}

func (h *Handler) GetProfile(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), auth.ProfessionalIDFromContext(c.Request().Context()))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var upd ProfileUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdateProfile(c.Request().Context(), auth.ProfessionalIDFromContext(c.Request().Context()), upd)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "professional not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSlugTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "profile storage unavailable")
	}
}
