package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/slackwire/internal/agent"
	"github.com/memohai/slackwire/internal/channel"
	slackadapter "github.com/memohai/slackwire/internal/channel/adapters/slack"
	"github.com/memohai/slackwire/internal/config"
	"github.com/memohai/slackwire/internal/logger"
)

// defaultBotID names the single bot the config file describes.
const defaultBotID = "default"

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideChannelRegistry,
			provideChannelStore,
			provideAgentGateway,
			provideChannelManager,
		),
		fx.Invoke(
			startChannelManager,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideChannelRegistry(log *slog.Logger) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(slackadapter.NewSlackAdapter(log))
	return registry
}

func provideChannelStore(log *slog.Logger, cfg config.Config) *channel.StaticStore {
	if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
		log.Warn("slack bot_token or app_token missing, no channel will connect")
		return channel.NewStaticStore()
	}
	now := time.Now()
	return channel.NewStaticStore(channel.ChannelConfig{
		ID:          "slack-" + defaultBotID,
		BotID:       defaultBotID,
		ChannelType: slackadapter.Type,
		Credentials: map[string]any{
			"botToken":       cfg.Slack.BotToken,
			"appToken":       cfg.Slack.AppToken,
			"dmEnabled":      cfg.Slack.DMEnabled,
			"dmPolicy":       cfg.Slack.DMPolicy,
			"dmAllowFrom":    cfg.Slack.DMAllowFrom,
			"groupPolicy":    cfg.Slack.GroupPolicy,
			"groupAllowFrom": cfg.Slack.GroupAllowFrom,
		},
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func provideAgentGateway(log *slog.Logger, cfg config.Config, registry *channel.Registry) *agent.Gateway {
	return agent.NewGateway(log, cfg.Agent.BaseURL(), cfg.Agent.Timeout(), registry)
}

func provideChannelManager(log *slog.Logger, registry *channel.Registry, store *channel.StaticStore, gateway *agent.Gateway) *channel.Manager {
	return channel.NewManager(log, registry, store, gateway)
}

func startChannelManager(lc fx.Lifecycle, channelManager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { channelManager.Start(ctx); return nil },
		OnStop:  func(stopCtx context.Context) error { cancel(); return channelManager.Shutdown(stopCtx) },
	})
}
