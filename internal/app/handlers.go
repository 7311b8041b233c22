package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/cache"
)

// writeError maps domain errors onto status codes. Anything unrecognized is logged and
// reported as a 500 without detail.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidDate),
		errors.Is(err, availability.ErrInvalidClock),
		errors.Is(err, availability.ErrInvalidWorkingHours):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSlotTaken),
		errors.Is(err, ErrSlotUnavailable),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrCalendarDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		if l, ok := c.Get("logger"); ok {
			if logger, ok := l.(*zap.Logger); ok {
				logger.Error("request failed", zap.Error(err))
			}
		}
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (a *App) listServices(ctx context.Context) ([]Service, error) {
	return cache.Fetch(ctx, a.Cache, cache.ServicesKey(), a.Services.ListServices)
}

// durationFor resolves the slot query's duration from service_id or a raw duration.
func (a *App) durationFor(ctx context.Context, serviceID, duration string) (int, error) {
	if serviceID != "" {
		id, err := strconv.ParseInt(serviceID, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid service_id", ErrInvalidInput)
		}
		services, err := a.listServices(ctx)
		if err != nil {
			return 0, err
		}
		for _, s := range services {
			if s.ID == id {
				return s.DurationMinutes, nil
			}
		}
		return 0, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	if duration == "" {
		return 0, fmt.Errorf("%w: service_id or duration required", ErrInvalidInput)
	}
	minutes, err := strconv.Atoi(duration)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid duration %q", ErrInvalidInput, duration)
	}
	return minutes, nil
}

// dateParam reads ?date=, defaulting to today in the shop's timezone.
func (a *App) dateParam(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return a.today(), nil
	}
	return availability.ParseDate(raw)
}

// GET /api/services
func (a *App) ListServicesHandler(c *gin.Context) {
	services, err := a.listServices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}

// POST /api/services
func (a *App) CreateServiceHandler(c *gin.Context) {
	var s Service
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Validate(); err != nil {
		writeError(c, err)
		return
	}
	if err := a.Services.CreateService(c.Request.Context(), &s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// PUT /api/services/:id
func (a *App) UpdateServiceHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}
	var s Service
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ID = id
	if err := s.Validate(); err != nil {
		writeError(c, err)
		return
	}
	if err := a.Services.UpdateService(c.Request.Context(), &s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// DELETE /api/services/:id
func (a *App) DeleteServiceHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
		return
	}
	if err := a.Services.DeleteService(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/working-hours
func (a *App) ListWorkingHoursHandler(c *gin.Context) {
	rows, err := cache.Fetch(c.Request.Context(), a.Cache, cache.WorkingHoursKey(), a.Hours.WeeklyConfig)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// PUT /api/working-hours/:day
func (a *App) UpdateWorkingHoursHandler(c *gin.Context) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid day"})
		return
	}
	var w WorkingHours
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w.DayOfWeek = day
	cfg, err := w.Config()
	if err != nil {
		writeError(c, err)
		return
	}
	w.StartTime, w.EndTime = cfg.Start.String(), cfg.End.String()
	if err := a.Hours.UpsertWorkingHours(c.Request.Context(), &w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /api/slots?date=YYYY-MM-DD&service_id=N (or &duration=M)
func (a *App) GetSlotsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("date") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	date, err := availability.ParseDate(c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	minutes, err := a.durationFor(ctx, c.Query("service_id"), c.Query("duration"))
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := a.Availability(ctx, date, minutes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.Book(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

// GET /api/appointments/mine
func (a *App) MyAppointmentsHandler(c *gin.Context) {
	appts, err := a.MyAppointments(c.Request.Context(), principalFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appts)
}

// GET /api/appointments?date=YYYY-MM-DD
func (a *App) ListAppointmentsHandler(c *gin.Context) {
	date, err := a.dateParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	appts, err := a.Appointments.ListAppointmentsByDate(c.Request.Context(), availability.FormatDate(date))
	if err != nil {
		writeError(c, err)
		return
	}
	sortChronological(appts)
	c.JSON(http.StatusOK, appts)
}

// DELETE /api/appointments/:id
func (a *App) CancelAppointmentHandler(c *gin.Context) {
	appt, err := a.Cancel(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

type statusReq struct {
	Status Status `json:"status" binding:"required"`
}

// PATCH /api/appointments/:id/status
func (a *App) UpdateAppointmentStatusHandler(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	appt, err := a.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// GET /api/dashboard?date=YYYY-MM-DD
func (a *App) DashboardHandler(c *gin.Context) {
	date, err := a.dateParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	d, err := a.Dashboard(c.Request.Context(), date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /api/history?date=YYYY-MM-DD
func (a *App) HistoryHandler(c *gin.Context) {
	h, err := a.History(c.Request.Context(), c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}
