package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"barbershop-booking/internal/availability"
	"barbershop-booking/internal/config"
)

type memTokens struct {
	tok *oauth2.Token
}

func (m *memTokens) SaveCalendarToken(_ context.Context, tok *oauth2.Token) error {
	m.tok = tok
	return nil
}

func (m *memTokens) LoadCalendarToken(context.Context) (*oauth2.Token, error) {
	return m.tok, nil
}

func TestBusyFromPeriods(t *testing.T) {
	loc := saoPaulo()
	dayStart := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)

	busy, err := busyFromPeriods(dayStart, []*calendar.TimePeriod{
		{Start: "2026-01-28T10:00:00-03:00", End: "2026-01-28T11:30:00-03:00"},
		// UTC input converted to local time.
		{Start: "2026-01-28T17:00:00Z", End: "2026-01-28T17:45:00Z"},
		// Spills in from the previous evening.
		{Start: "2026-01-27T22:00:00-03:00", End: "2026-01-28T01:00:00-03:00"},
		// Entirely on another day.
		{Start: "2026-01-29T09:00:00-03:00", End: "2026-01-29T10:00:00-03:00"},
		nil,
	})
	require.NoError(t, err)
	require.Len(t, busy, 3)

	assert.Equal(t, availability.MustClock("10:00"), busy[0].Start)
	assert.Equal(t, 90, busy[0].DurationMinutes)
	assert.Equal(t, availability.MustClock("14:00"), busy[1].Start)
	assert.Equal(t, 45, busy[1].DurationMinutes)
	assert.Equal(t, availability.MustClock("00:00"), busy[2].Start)
	assert.Equal(t, 60, busy[2].DurationMinutes)
	for _, b := range busy {
		assert.Equal(t, "2026-01-28", availability.FormatDate(b.Date))
	}

	_, err = busyFromPeriods(dayStart, []*calendar.TimePeriod{{Start: "yesterday", End: "today"}})
	assert.Error(t, err)
}

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		var req calendar.FreeBusyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2026-01-28T00:00:00-03:00", req.TimeMin)
		assert.Equal(t, "2026-01-29T00:00:00-03:00", req.TimeMax)
		_ = json.NewEncoder(w).Encode(calendar.FreeBusyResponse{
			Calendars: map[string]calendar.FreeBusyCalendar{
				"primary": {Busy: []*calendar.TimePeriod{
					{Start: "2026-01-28T12:00:00-03:00", End: "2026-01-28T13:00:00-03:00"},
				}},
			},
		})
	})
	mux.HandleFunc("/users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(calendar.CalendarList{Items: []*calendar.CalendarListEntry{
			{Id: "primary", Summary: "Barbearia", Primary: true, AccessRole: "owner"},
		}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestConnector(t *testing.T, tokens *memTokens, endpoint string) *CalendarConnector {
	t.Helper()
	cc := NewCalendarConnector(config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/oauth2callback",
		CalendarID:   "primary",
	}, tokens, testSecret, saoPaulo(), nil)
	require.NotNil(t, cc)
	cc.Options = []option.ClientOption{option.WithEndpoint(endpoint + "/")}
	return cc
}

func TestCalendarConnector_BusyIntervals(t *testing.T) {
	srv := fakeGoogle(t)
	tokens := &memTokens{}
	cc := newTestConnector(t, tokens, srv.URL)
	day := date(t, "2026-01-28")

	busy, err := cc.BusyIntervals(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, busy, "no token stored yet")

	tokens.tok = &oauth2.Token{AccessToken: "access", TokenType: "Bearer"}
	busy, err = cc.BusyIntervals(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, availability.MustClock("12:00"), busy[0].Start)
	assert.Equal(t, 60, busy[0].DurationMinutes)

	a := newTestApp(newMemStore())
	a.External = MultiSource{cc}
	res, err := a.Availability(context.Background(), day, 60)
	require.NoError(t, err)
	assert.NotContains(t, res.Slots, "11:30")
	assert.NotContains(t, res.Slots, "12:00")
	assert.Contains(t, res.Slots, "13:00")
}

func TestCalendarConnector_Calendars(t *testing.T) {
	srv := fakeGoogle(t)
	tokens := &memTokens{}
	cc := newTestConnector(t, tokens, srv.URL)

	_, err := cc.Calendars(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	tokens.tok = &oauth2.Token{AccessToken: "access", TokenType: "Bearer"}
	cals, err := cc.Calendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.True(t, cals[0].Primary)
	assert.Equal(t, "Barbearia", cals[0].Summary)
}

func TestCalendarConnector_DisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewCalendarConnector(config.GoogleConfig{ClientID: "x"}, &memTokens{}, testSecret, nil, nil))

	var cc *CalendarConnector
	busy, err := cc.BusyIntervals(context.Background(), time.Now())
	assert.NoError(t, err)
	assert.Nil(t, busy)
}

func TestCalendarOAuthFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	h := newAPI(t)
	tokens := &memTokens{}
	cc := newTestConnector(t, tokens, tokenSrv.URL)
	cc.OAuth.Endpoint = oauth2.Endpoint{AuthURL: tokenSrv.URL + "/auth", TokenURL: tokenSrv.URL + "/token"}
	h.app.Calendar = cc

	w := h.do(http.MethodGet, "/api/calendar/auth", h.barber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	authURL, err := url.Parse(decode[map[string]string](t, w)["auth_url"])
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "offline", authURL.Query().Get("access_type"))

	w = h.do(http.MethodGet, "/oauth2callback?code=the-code&state=forged", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, tokens.tok)

	w = h.do(http.MethodGet, "/oauth2callback?state="+url.QueryEscape(state), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/oauth2callback?code=the-code&state="+url.QueryEscape(state), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, tokens.tok)
	assert.Equal(t, "refresh", tokens.tok.RefreshToken)
	assert.Contains(t, w.Body.String(), "connected")
}
