package config

import (
	"time"

	"github.com/caasmo/identity/crypto"
)

// NewDefaultConfig creates a new Config with sensible defaults.
// Secret values are randomly generated.
func NewDefaultConfig() *Config {
	return &Config{
		ApplicationName:   "identity",
		DBFile:            "identity.db",
		AuthMethod:        AuthMethodEmail,
		TokenValidity:     Duration{Duration: 3 * time.Minute},
		PasswordMinLength: 6,
		Jwt: Jwt{
			AuthSecret:        crypto.RandomString(32, crypto.AlphanumericAlphabet),
			AuthTokenDuration: Duration{Duration: 45 * time.Minute},
		},
		Scheduler: Scheduler{
			Interval:              Duration{Duration: 10 * time.Second},
			MaxJobsPerTick:        25,
			ConcurrencyMultiplier: 2,
		},
		Smtp: Smtp{
			Host:     "localhost",
			Port:     587,
			FromName: "identity",
		},
		Notify: Notify{
			AdminTopic: "adminnotifications",
		},
		RateLimits: RateLimits{
			RegistrationOtpWindow: Duration{Duration: 2 * time.Minute},
			RegistrationOtpMax:    1,
			PasswordResetWindow:   Duration{Duration: 1 * time.Hour},
			PasswordResetMax:      3,
		},
		OAuth2Providers: map[string]OAuth2Provider{
			OAuth2ProviderGoogle: {
				Name:        OAuth2ProviderGoogle,
				DisplayName: "Google",
				AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL:    "https://oauth2.googleapis.com/token",
				UserInfoURL: "https://www.googleapis.com/oauth2/v3/userinfo",
				Scopes: []string{
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
			},
			OAuth2ProviderGitHub: {
				Name:        OAuth2ProviderGitHub,
				DisplayName: "GitHub",
				AuthURL:     "https://github.com/login/oauth/authorize",
				TokenURL:    "https://github.com/login/oauth/access_token",
				UserInfoURL: "https://api.github.com/user",
				Scopes:      []string{"read:user", "user:email"},
			},
		},
	}
}
