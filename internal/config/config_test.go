package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barbershop-booking/internal/availability"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("BARBER_DB_URL", "postgres://localhost/barber")
	t.Setenv("BARBER_AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("BARBER_SLOTS_STEP_MINUTES", "15")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/barber", cfg.DB.URL)
	assert.Equal(t, 15, cfg.Slots.StepMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "booking:changes", cfg.Cache.Channel)

	engine, err := cfg.Slots.Engine()
	require.NoError(t, err)
	assert.Equal(t, availability.Engine{Step: 15, Default: availability.DefaultWindow}, engine)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
db:
  url: postgres://db/barber
auth:
  jwt_secret: a-very-long-secret-value
slots:
  default_open: "08:00"
  default_close: "12:00"
  timezone: UTC
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	w, err := cfg.Slots.Window()
	require.NoError(t, err)
	assert.Equal(t, "08:00", w.Start.String())
	assert.Equal(t, "12:00", w.End.String())
	assert.Equal(t, time.UTC, cfg.Slots.Location())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080},
			DB:     DBConfig{URL: "postgres://x"},
			Auth:   AuthConfig{JWTSecret: "0123456789abcdef"},
			Slots:  SlotsConfig{StepMinutes: 30, DefaultOpen: "09:00", DefaultClose: "19:00", Timezone: "UTC"},
		}
	}

	c := valid()
	assert.NoError(t, c.Validate())

	c = valid()
	c.DB.URL = ""
	assert.Error(t, c.Validate())

	c = valid()
	c.Auth.JWTSecret = "short"
	assert.Error(t, c.Validate())

	c = valid()
	c.Slots.StepMinutes = 0
	assert.Error(t, c.Validate())

	c = valid()
	c.Slots.DefaultOpen = "20:00"
	assert.Error(t, c.Validate())

	c = valid()
	c.Slots.Timezone = "Mars/Olympus"
	assert.Error(t, c.Validate())
}
