package scheduling

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agenda/agenda/internal/platform/auth"
	"github.com/agenda/agenda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the booking page endpoints on public and the agenda
// management endpoints on api. api must already authenticate the caller.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.GET("/professionals/:slug/slots", h.PublicSlots)
	public.POST("/bookings", h.CreateBooking)

	g := api.Group("", auth.RequireRole("professional"))
	g.GET("/availability", h.ListDays)
	g.GET("/availability/:date", h.GetDay)
	g.GET("/availability/:date/view", h.GetDayView)
	g.POST("/availability/:date/slots", h.AddSlot)
	g.DELETE("/availability/:date/slots/:time", h.RemoveSlot)

	g.GET("/appointments", h.ListAppointments)
	g.POST("/appointments", h.CreateDirectBooking)
	g.GET("/appointments/locked", h.LockedAppointments)
	g.GET("/appointments/conflicts", h.Conflicts)
	g.PATCH("/appointments/:id/status", h.TransitionStatus)
	g.PATCH("/appointments/:id/notes", h.UpdateNotes)

	g.GET("/stats/day/:date", h.DayStats)
	g.GET("/stats/period", h.PeriodStats)
	g.GET("/quota", h.Quota)
}

func professionalID(c echo.Context) string {
	return auth.ProfessionalIDFromContext(c.Request().Context())
}

// -- Public --

func (h *Handler) PublicSlots(c echo.Context) error {
	slots, err := h.svc.Availability.PublicFreeSlots(c.Request().Context(), c.Param("slug"), c.QueryParam("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"date": c.QueryParam("date"), "slots": slots})
}

func (h *Handler) CreateBooking(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Bookings.CreateBooking(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// -- Availability --

func (h *Handler) ListDays(c echo.Context) error {
	days, err := h.svc.Availability.ListDays(c.Request().Context(), professionalID(c), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, days)
}

func (h *Handler) GetDay(c echo.Context) error {
	day, err := h.svc.Availability.GetDay(c.Request().Context(), professionalID(c), c.Param("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) GetDayView(c echo.Context) error {
	view, err := h.svc.Availability.DayView(c.Request().Context(), professionalID(c), c.Param("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) AddSlot(c echo.Context) error {
	var slot Slot
	if err := c.Bind(&slot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	day, err := h.svc.Availability.AddSlot(c.Request().Context(), professionalID(c), c.Param("date"), slot)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, day)
}

func (h *Handler) RemoveSlot(c echo.Context) error {
	day, err := h.svc.Availability.RemoveSlot(c.Request().Context(), professionalID(c), c.Param("date"), c.Param("time"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, day)
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	f := AppointmentFilter{From: c.QueryParam("from"), To: c.QueryParam("to")}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return httpError(err)
		}
		f.Status = st
	}
	items, err := h.svc.ListAppointments(c.Request().Context(), professionalID(c), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Paginate(items, pagination.FromContext(c)))
}

func (h *Handler) CreateDirectBooking(c echo.Context) error {
	var req DirectBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Bookings.CreateDirectBooking(c.Request().Context(), professionalID(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

type transitionRequest struct {
	NextStatus string `json:"nextStatus"`
}

// TransitionStatus answers with the decision body for both outcomes so the
// agenda can render the reason.
func (h *Handler) TransitionStatus(c echo.Context) error {
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Transitions.Transition(c.Request().Context(), professionalID(c), c.Param("id"), req.NextStatus)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, d)
	case errors.Is(err, ErrLockedTransition), errors.Is(err, ErrQuotaExceeded):
		if d.Reason == "" {
			d.Reason = err.Error()
		}
		return c.JSON(statusFor(err), d)
	default:
		return httpError(err)
	}
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.UpdateNotes(c.Request().Context(), professionalID(c), c.Param("id"), req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) LockedAppointments(c echo.Context) error {
	ids, err := h.svc.Transitions.Locked(c.Request().Context(), professionalID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"ids": ids})
}

func (h *Handler) Conflicts(c echo.Context) error {
	keys, err := h.svc.Conflicts(c.Request().Context(), professionalID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string][]SlotKey{"conflicts": keys})
}

// -- Stats and quota --

func (h *Handler) DayStats(c echo.Context) error {
	st, err := h.svc.DayStats(c.Request().Context(), professionalID(c), c.Param("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) PeriodStats(c echo.Context) error {
	sum, err := h.svc.PeriodStats(c.Request().Context(), professionalID(c), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) Quota(c echo.Context) error {
	st, err := h.svc.Quota(c.Request().Context(), professionalID(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrLockedTransition):
		return http.StatusConflict
	case errors.Is(err, ErrConstraintMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// httpError keeps storage details out of responses.
func httpError(err error) error {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		return echo.NewHTTPError(code, "storage unavailable, try again").SetInternal(err)
	}
	return echo.NewHTTPError(code, err.Error())
}
