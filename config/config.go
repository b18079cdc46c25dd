package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Authentication method selectors. The configured method decides which
// contact identifier (phone or email) is the canonical identity.
const (
	AuthMethodPhone = "phone"
	AuthMethodEmail = "email"
)

// Duration wraps time.Duration for TOML text (un)marshalling,
// e.g. token_validity = "3m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Jwt struct {
	AuthSecret        string   `toml:"auth_secret"`
	AuthTokenDuration Duration `toml:"auth_token_duration"`
}

type Scheduler struct {
	Interval              Duration `toml:"interval"`
	MaxJobsPerTick        int      `toml:"max_jobs_per_tick"`
	ConcurrencyMultiplier int      `toml:"concurrency_multiplier"`
}

type Smtp struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	FromName    string `toml:"from_name"`
	FromAddress string `toml:"from_address"`
}

type Sms struct {
	// URL of the gateway send endpoint, POSTed a JSON body.
	URL    string `toml:"url"`
	ApiKey string `toml:"api_key"`
	From   string `toml:"from"`
}

type Notify struct {
	WebhookURL string `toml:"webhook_url"`
	// AdminTopic is the broadcast topic for admin alerts.
	AdminTopic string `toml:"admin_topic"`
}

// Known OAuth2 provider names. Only providers with a mapping in the
// oauth2 package can be enabled.
const (
	OAuth2ProviderGoogle = "google"
	OAuth2ProviderGitHub = "github"
)

type OAuth2Provider struct {
	Name         string   `toml:"name"`
	DisplayName  string   `toml:"display_name"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	UserInfoURL  string   `toml:"user_info_url"`
	Scopes       []string `toml:"scopes"`
}

type RateLimits struct {
	// RegistrationOtpWindow is the trailing window inspected before issuing
	// a registration OTP; RegistrationOtpMax tokens are allowed per window.
	RegistrationOtpWindow Duration `toml:"registration_otp_window"`
	RegistrationOtpMax    int      `toml:"registration_otp_max"`
	// PasswordResetWindow/Max bound reset requests per user.
	PasswordResetWindow Duration `toml:"password_reset_window"`
	PasswordResetMax    int      `toml:"password_reset_max"`
}

type Config struct {
	ApplicationName string `toml:"application_name"`
	DBFile          string `toml:"db_file"`

	// AuthMethod selects the canonical identity: "phone" or "email".
	AuthMethod string `toml:"auth_method"`

	// TokenValidity is how long an issued OTP stays usable.
	TokenValidity Duration `toml:"token_validity"`

	// PasswordMinLength is the password policy minimum.
	PasswordMinLength int `toml:"password_min_length"`

	Jwt        Jwt        `toml:"jwt"`
	Scheduler  Scheduler  `toml:"scheduler"`
	Smtp       Smtp       `toml:"smtp"`
	Sms        Sms        `toml:"sms"`
	Notify     Notify     `toml:"notify"`
	RateLimits RateLimits `toml:"rate_limits"`

	OAuth2Providers map[string]OAuth2Provider `toml:"oauth2_providers"`
}

// Validate checks invariants the rest of the system relies on.
func Validate(cfg *Config) error {
	if cfg.AuthMethod != AuthMethodPhone && cfg.AuthMethod != AuthMethodEmail {
		return fmt.Errorf("auth_method must be %q or %q, got %q", AuthMethodPhone, AuthMethodEmail, cfg.AuthMethod)
	}
	if cfg.TokenValidity.Duration <= 0 {
		return fmt.Errorf("token_validity must be positive")
	}
	if cfg.PasswordMinLength < 1 {
		return fmt.Errorf("password_min_length must be at least 1")
	}
	if cfg.RateLimits.RegistrationOtpWindow.Duration <= 0 || cfg.RateLimits.PasswordResetWindow.Duration <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}
	if cfg.Scheduler.Interval.Duration <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	for name, provider := range cfg.OAuth2Providers {
		if provider.AuthURL == "" || provider.TokenURL == "" || provider.UserInfoURL == "" {
			return fmt.Errorf("oauth2 provider %q is missing endpoint urls", name)
		}
	}
	return nil
}

// Provider gives concurrent readers a consistent snapshot of the config and
// allows atomic replacement on reload.
type Provider struct {
	cfg atomic.Pointer[Config]
}

func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.cfg.Store(cfg)
	return p
}

// Get returns the current config snapshot. Callers must not mutate it.
func (p *Provider) Get() *Config {
	return p.cfg.Load()
}

// Update atomically replaces the config snapshot.
func (p *Provider) Update(cfg *Config) {
	p.cfg.Store(cfg)
}
