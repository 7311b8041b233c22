package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/config"
)

const oauthStateTTL = 10 * time.Minute

// CalendarConnector links the barber's Google Calendar. Once connected, its free/busy blocks
// are treated as busy time when computing slots.
type CalendarConnector struct {
	OAuth      *oauth2.Config
	Tokens     CalendarTokenStore
	CalendarID string
	Location   *time.Location
	// StateSecret signs the OAuth state parameter.
	StateSecret []byte
	Logger      *zap.Logger

	// Extra options for the Calendar client, e.g. option.WithEndpoint in tests.
	Options []option.ClientOption
}

// NewCalendarConnector returns nil when Google credentials are not configured.
func NewCalendarConnector(cfg config.GoogleConfig, tokens CalendarTokenStore, stateSecret string, loc *time.Location, logger *zap.Logger) *CalendarConnector {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarConnector{
		OAuth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		Tokens:      tokens,
		CalendarID:  calendarID,
		Location:    loc,
		StateSecret: []byte(stateSecret),
		Logger:      logger,
	}
}

func (cc *CalendarConnector) service(ctx context.Context) (*calendar.Service, error) {
	tok, err := cc.Tokens.LoadCalendarToken(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	client := cc.OAuth.Client(ctx, tok)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, cc.Options...)
	return calendar.NewService(ctx, opts...)
}

func (cc *CalendarConnector) loc() *time.Location {
	if cc.Location == nil {
		return time.UTC
	}
	return cc.Location
}

// BusyIntervals queries free/busy for the business day of date. Without a stored token the
// calendar contributes nothing.
func (cc *CalendarConnector) BusyIntervals(ctx context.Context, date time.Time) ([]availability.BusyInterval, error) {
	if cc == nil {
		return nil, nil
	}
	srv, err := cc.service(ctx)
	if err != nil || srv == nil {
		return nil, err
	}

	loc := cc.loc()
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp, err := srv.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin:  dayStart.Format(time.RFC3339),
		TimeMax:  dayEnd.Format(time.RFC3339),
		TimeZone: loc.String(),
		Items:    []*calendar.FreeBusyRequestItem{{Id: cc.CalendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google freebusy: %w", err)
	}
	cal, ok := resp.Calendars[cc.CalendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("google freebusy %s: %s", cc.CalendarID, cal.Errors[0].Reason)
	}
	return busyFromPeriods(dayStart, cal.Busy)
}

// busyFromPeriods clips RFC3339 periods to the day starting at dayStart and converts them to
// busy intervals on that day.
func busyFromPeriods(dayStart time.Time, periods []*calendar.TimePeriod) ([]availability.BusyInterval, error) {
	dayEnd := dayStart.AddDate(0, 0, 1)
	date := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 0, 0, 0, 0, time.UTC)

	var busy []availability.BusyInterval
	for _, p := range periods {
		if p == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("freebusy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("freebusy end %q: %w", p.End, err)
		}
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		minutes := int(end.Sub(start).Minutes())
		if minutes <= 0 {
			continue
		}
		busy = append(busy, availability.BusyInterval{
			Date:            date,
			Start:           availability.ClockOf(start.In(dayStart.Location())),
			DurationMinutes: minutes,
		})
	}
	return busy, nil
}

type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"`
}

func (cc *CalendarConnector) Calendars(ctx context.Context) ([]CalendarInfo, error) {
	srv, err := cc.service(ctx)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("google calendar: %w", ErrNotFound)
	}
	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google calendar list: %w", err)
	}
	out := make([]CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, CalendarInfo{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
			AccessRole:  item.AccessRole,
		})
	}
	return out, nil
}

func (cc *CalendarConnector) signState(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{"calendar-connect"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cc.StateSecret)
}

func (cc *CalendarConnector) verifyState(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return cc.StateSecret, nil
	}, jwt.WithAudience("calendar-connect"))
	return err
}

// GET /api/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	cc := a.Calendar
	if cc == nil {
		writeError(c, ErrCalendarDisabled)
		return
	}
	state, err := cc.signState(principalFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	url := cc.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	cc := a.Calendar
	if cc == nil {
		writeError(c, ErrCalendarDisabled)
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	if err := cc.verifyState(c.Query("state")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	ctx := c.Request.Context()
	token, err := cc.OAuth.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	if err := cc.Tokens.SaveCalendarToken(ctx, token); err != nil {
		writeError(c, err)
		return
	}
	a.logger().Info("google calendar connected", zap.String("calendar_id", cc.CalendarID))
	c.JSON(http.StatusOK, gin.H{"message": "calendar connected"})
}

// GET /api/calendar/calendars
func (a *App) GoogleCalendarListHandler(c *gin.Context) {
	if a.Calendar == nil {
		writeError(c, ErrCalendarDisabled)
		return
	}
	calendars, err := a.Calendar.Calendars(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendars": calendars, "count": len(calendars)})
}
