package identity

import (
	"log/slog"

	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/core"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/mail"
	"github.com/caasmo/identity/notify/webhook"
	"github.com/caasmo/identity/queue"
	"github.com/caasmo/identity/queue/executor"
	"github.com/caasmo/identity/queue/handlers"
	scl "github.com/caasmo/identity/queue/scheduler"
	"github.com/caasmo/identity/sms"
)

// New creates the core App and its job scheduler from a config file. An
// empty path runs on defaults, useful for tests and local experiments.
// Delivery channels (SMTP, SMS gateway, admin webhook) are wired only when
// their config sections are filled in.
func New(configPath string, opts ...core.Option) (*core.App, *scl.Scheduler, error) {
	var cfg *config.Config
	var err error
	if configPath == "" {
		cfg = config.NewDefaultConfig()
	} else {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
	}

	configProvider := config.NewProvider(cfg)

	// Options run in order, so delivery defaults come first and anything
	// the caller passes wins.
	allOpts := []core.Option{core.WithConfigProvider(configProvider)}
	allOpts = append(allOpts, deliveryOptions(configProvider, cfg)...)
	allOpts = append(allOpts, opts...)

	app, err := core.NewApp(allOpts...)
	if err != nil {
		return nil, nil, err
	}

	scheduler := SetupScheduler(configProvider, app.DbToken(), app.DbQueue(), app.Logger())

	return app, scheduler, nil
}

// deliveryOptions builds the default mailer and SMS sender for the
// configured channels. Constructor failures are logged and skipped; the
// affected flows report delivery failure at call time instead.
func deliveryOptions(configProvider *config.Provider, cfg *config.Config) []core.Option {
	var opts []core.Option

	if cfg.Smtp.Host != "" && cfg.Smtp.FromAddress != "" {
		mailer, err := mail.New(configProvider, slog.Default())
		if err != nil {
			slog.Error("failed to create mailer", "err", err)
		} else {
			opts = append(opts, core.WithMailer(mailer))
		}
	}

	if cfg.Sms.URL != "" {
		sender, err := sms.New(configProvider, slog.Default())
		if err != nil {
			slog.Error("failed to create sms sender", "err", err)
		} else {
			opts = append(opts, core.WithSmsSender(sender))
		}
	}

	return opts
}

// SetupScheduler initializes the job scheduler with the background
// handlers: token expiry always, the admin broadcast only when a webhook
// endpoint is configured.
func SetupScheduler(configProvider *config.Provider, dbToken db.DbToken, dbQueue db.DbQueue, logger *slog.Logger) *scl.Scheduler {
	hdls := make(map[string]executor.JobHandler)

	hdls[queue.JobTypeTokenExpiry] = handlers.NewTokenExpiryHandler(dbToken, logger)

	cfg := configProvider.Get()
	if cfg.Notify.WebhookURL != "" {
		notifier, err := webhook.New(webhook.Options{URL: cfg.Notify.WebhookURL}, logger)
		if err != nil {
			logger.Error("failed to create webhook notifier, admin broadcasts disabled", "err", err)
		} else {
			hdls[queue.JobTypeAdminNotify] = handlers.NewAdminNotifyHandler(notifier, logger)
		}
	}

	return scl.NewScheduler(configProvider, dbQueue, executor.NewExecutor(hdls), logger)
}
