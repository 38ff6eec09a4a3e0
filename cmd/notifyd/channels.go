package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/push"
	"github.com/dmitrymomot/notifykit/pkg/sms"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// channelOptions builds engine options for every enabled external channel.
// in_app is always on. Push turns on when Firebase credentials are set.
func channelOptions(ctx context.Context, app appConfig, log *slog.Logger) ([]notifications.EngineOption, error) {
	var opts []notifications.EngineOption
	enabled := []string{string(notifications.ChannelInApp)}

	if app.EmailEnabled {
		var cfg email.Config
		if err := config.Load(&cfg); err != nil {
			return nil, fmt.Errorf("email config: %w", err)
		}
		sender, err := email.New(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notifications.WithTransport(notifications.ChannelEmail,
			email.NewTransport(sender,
				email.WithLinkBaseURL(cfg.LinkBaseURL),
				email.WithFooter(app.EmailFooter),
			)))
		enabled = append(enabled, string(notifications.ChannelEmail))
	}

	if app.SMSEnabled {
		var cfg sms.Config
		if err := config.Load(&cfg); err != nil {
			return nil, fmt.Errorf("sms config: %w", err)
		}
		sender, err := sms.New(cfg, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notifications.WithTransport(notifications.ChannelSMS, sms.NewTransport(sender, cfg.MaxLength)))
		enabled = append(enabled, string(notifications.ChannelSMS))
	}

	if app.WebhookEnabled {
		var cfg webhook.Config
		if err := config.Load(&cfg); err != nil {
			return nil, fmt.Errorf("webhook config: %w", err)
		}
		sender := webhook.NewSender(cfg.Options()...)
		opts = append(opts, notifications.WithTransport(notifications.ChannelWebhook, webhook.NewTransport(sender)))
		enabled = append(enabled, string(notifications.ChannelWebhook))
	}

	var pushCfg push.Config
	if err := config.Load(&pushCfg); err != nil {
		return nil, fmt.Errorf("push config: %w", err)
	}
	if pushCfg.Enabled() {
		client, err := push.NewMessagingClient(ctx, pushCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notifications.WithPushTransport(push.NewFCMTransport(client, push.WithLogger(log))))
		enabled = append(enabled, string(notifications.ChannelPush))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "delivery channels configured",
		logger.Component("notifyd"),
		slog.Any("channels", enabled),
	)
	return opts, nil
}
