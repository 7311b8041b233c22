package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"barbershop-booking/internal/availability"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
	Slots  SlotsConfig  `mapstructure:"slots"`
	Notify NotifyConfig `mapstructure:"notify"`
	Google GoogleConfig `mapstructure:"google"`
}

type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig throttles booking creation per client IP.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type DBConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Channel string        `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	StaticTokens []string `mapstructure:"static_tokens"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlotsConfig feeds the slot engine. DefaultOpen/DefaultClose apply to weekdays with no
// configured working hours.
type SlotsConfig struct {
	StepMinutes  int    `mapstructure:"step_minutes"`
	DefaultOpen  string `mapstructure:"default_open"`
	DefaultClose string `mapstructure:"default_close"`
	Timezone     string `mapstructure:"timezone"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
	CalendarID   string `mapstructure:"calendar_id"`
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

// Load reads defaults, then the optional config file, then BARBER_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit.rps", 2.0)
	v.SetDefault("server.rate_limit.burst", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.channel", "booking:changes")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("slots.step_minutes", availability.DefaultStepMinutes)
	v.SetDefault("slots.default_open", "09:00")
	v.SetDefault("slots.default_close", "19:00")
	v.SetDefault("slots.timezone", "America/Sao_Paulo")

	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("google.calendar_id", "primary")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BARBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"db.url", "redis.password", "auth.jwt_secret", "auth.static_tokens",
		"notify.webhook_url", "google.client_id", "google.client_secret", "google.redirect_url"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("config: db.url is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: auth.jwt_secret must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be within 1-65535")
	}
	if c.Slots.StepMinutes <= 0 {
		return fmt.Errorf("config: slots.step_minutes must be positive")
	}
	if _, err := c.Slots.Window(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Slots.Timezone); err != nil {
		return fmt.Errorf("config: slots.timezone: %w", err)
	}
	return nil
}

// Window parses the fallback opening hours.
func (s SlotsConfig) Window() (availability.Window, error) {
	open, err := availability.ParseClock(s.DefaultOpen)
	if err != nil {
		return availability.Window{}, fmt.Errorf("config: slots.default_open: %w", err)
	}
	closing, err := availability.ParseClock(s.DefaultClose)
	if err != nil {
		return availability.Window{}, fmt.Errorf("config: slots.default_close: %w", err)
	}
	if open >= closing {
		return availability.Window{}, fmt.Errorf("config: slots default window %s-%s is empty", open, closing)
	}
	return availability.Window{Start: open, End: closing}, nil
}

// Engine builds the slot engine described by the config.
func (s SlotsConfig) Engine() (availability.Engine, error) {
	w, err := s.Window()
	if err != nil {
		return availability.Engine{}, err
	}
	return availability.Engine{Step: s.StepMinutes, Default: w}, nil
}

func (s SlotsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
