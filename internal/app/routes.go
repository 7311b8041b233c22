package app

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the API on r. The OAuth callback sits outside authentication since Google
// redirects the browser there without our bearer token; the signed state protects it instead.
// bookingLimit throttles appointment creation and may be nil.
func (a *App) Register(r gin.IRouter, auth gin.HandlerFunc, bookingLimit gin.HandlerFunc) {
	r.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := r.Group("/api")
	api.Use(auth)
	staff := RequireStaff()

	api.GET("/services", a.ListServicesHandler)
	api.POST("/services", staff, a.CreateServiceHandler)
	api.PUT("/services/:id", staff, a.UpdateServiceHandler)
	api.DELETE("/services/:id", staff, a.DeleteServiceHandler)

	api.GET("/working-hours", a.ListWorkingHoursHandler)
	api.PUT("/working-hours/:day", staff, a.UpdateWorkingHoursHandler)

	api.GET("/slots", a.GetSlotsHandler)

	appointments := api.Group("/appointments")
	{
		create := []gin.HandlerFunc{a.CreateAppointmentHandler}
		if bookingLimit != nil {
			create = append([]gin.HandlerFunc{bookingLimit}, create...)
		}
		appointments.POST("", create...)
		appointments.GET("/mine", a.MyAppointmentsHandler)
		appointments.GET("", staff, a.ListAppointmentsHandler)
		appointments.DELETE("/:id", a.CancelAppointmentHandler)
		appointments.PATCH("/:id/status", staff, a.UpdateAppointmentStatusHandler)
	}

	api.GET("/dashboard", staff, a.DashboardHandler)
	api.GET("/history", staff, a.HistoryHandler)

	calendar := api.Group("/calendar", staff)
	{
		calendar.GET("/auth", a.GoogleAuthHandler)
		calendar.GET("/calendars", a.GoogleCalendarListHandler)
	}
}
