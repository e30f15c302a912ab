package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode int

const (
	// ModeServe runs the bot, the API and the reminder worker.
	ModeServe Mode = iota
	ModeMigrate
	// ModePlan works on local files only.
	ModePlan
)

type Config struct {
	// Discord Bot
	DiscordToken string

	// Discord OAuth2
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Database
	DatabaseURL string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Session
	JWTSecret string

	LogLevel string
	// Currency is only used to label amounts.
	Currency        string
	ReminderTick    time.Duration
	PlanConcurrency int
}

var defaults = map[string]any{
	"DISCORD_REDIRECT_URI": "http://localhost:3000/api/auth/callback",
	"DATABASE_URL":         "sqlite://warikan.db",
	"WEB_BIND":             "0.0.0.0:3000",
	"JWT_SECRET":           "dev-only-change-me",
	"LOG_LEVEL":            "info",
	"CURRENCY":             "JPY",
	"REMINDER_TICK":        "1m",
	"PLAN_CONCURRENCY":     4,
}

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	cfg := &Config{
		DiscordToken:        v.GetString("DISCORD_TOKEN"),
		DiscordClientID:     v.GetString("DISCORD_CLIENT_ID"),
		DiscordClientSecret: v.GetString("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:  v.GetString("DISCORD_REDIRECT_URI"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		WebBind:             v.GetString("WEB_BIND"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		Currency:            v.GetString("CURRENCY"),
		ReminderTick:        v.GetDuration("REMINDER_TICK"),
		PlanConcurrency:     v.GetInt("PLAN_CONCURRENCY"),
	}
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)
	return cfg, nil
}

// Validate checks that everything mode needs is set.
func (c *Config) Validate(mode Mode) error {
	var errs []error
	if mode != ModePlan && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if mode == ModeServe {
		if c.DiscordToken == "" {
			errs = append(errs, errors.New("DISCORD_TOKEN is required"))
		}
		if c.DiscordClientID == "" {
			errs = append(errs, errors.New("DISCORD_CLIENT_ID is required"))
		}
		if c.DiscordClientSecret == "" {
			errs = append(errs, errors.New("DISCORD_CLIENT_SECRET is required"))
		}
		if c.ReminderTick <= 0 {
			errs = append(errs, fmt.Errorf("REMINDER_TICK must be positive, got %s", c.ReminderTick))
		}
	}
	if c.PlanConcurrency < 1 {
		errs = append(errs, fmt.Errorf("PLAN_CONCURRENCY must be at least 1, got %d", c.PlanConcurrency))
	}
	return errors.Join(errs...)
}

func extractBaseURL(redirectURI string) string {
	// "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
