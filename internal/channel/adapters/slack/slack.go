package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/memohai/slackwire/internal/channel"
)

// ackEmoji is added to admitted messages while a reply is prepared.
const ackEmoji = "eyes"

// SlackAdapter implements the channel.Adapter, channel.Sender,
// channel.Reactor, and channel.Receiver interfaces for Slack, using Socket
// Mode for inbound events.
type SlackAdapter struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[string]*slack.Client // keyed by bot token
}

// NewSlackAdapter creates a SlackAdapter with the given logger.
func NewSlackAdapter(log *slog.Logger) *SlackAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &SlackAdapter{
		logger:  log.With(slog.String("adapter", "slack")),
		clients: make(map[string]*slack.Client),
	}
}

func (a *SlackAdapter) getOrCreateClient(cfg Config) *slack.Client {
	a.mu.RLock()
	client, ok := a.clients[cfg.BotToken]
	a.mu.RUnlock()
	if ok {
		return client
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if client, ok := a.clients[cfg.BotToken]; ok {
		return client
	}
	client = slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	a.clients[cfg.BotToken] = client
	return client
}

// Type returns the Slack channel type.
func (a *SlackAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Slack channel metadata. The text chunk limit covers
// a full multi-block message; splitting into individual blocks happens inside
// Send so a long reply still lands as one Slack message.
func (a *SlackAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Slack",
		Capabilities: channel.ChannelCapabilities{
			Text:        true,
			Markdown:    true,
			Attachments: true,
			Threads:     true,
			Reply:       true,
			Reactions:   true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextChunkLimit: maxBlockLength * maxBlocks,
			ChunkerMode:    channel.ChunkerModeMarkdown,
		},
		ConfigSchema: channel.ConfigSchema{
			Version: 1,
			Fields: map[string]channel.FieldSchema{
				"botToken": {
					Type:     channel.FieldSecret,
					Required: true,
					Title:    "Bot Token",
				},
				"appToken": {
					Type:     channel.FieldSecret,
					Required: true,
					Title:    "App-Level Token",
				},
				"dmEnabled":      {Type: channel.FieldBool, Title: "Allow Direct Messages"},
				"dmPolicy":       {Type: channel.FieldString, Title: "DM Policy"},
				"dmAllowFrom":    {Type: channel.FieldStringList, Title: "DM Allowlist"},
				"groupPolicy":    {Type: channel.FieldString, Title: "Channel Policy"},
				"groupAllowFrom": {Type: channel.FieldStringList, Title: "Channel Allowlist"},
			},
		},
		TargetSpec: channel.TargetSpec{
			Format: "channel_id | user_id",
			Hints: []channel.TargetHint{
				{Label: "Channel ID", Example: "C0123456789"},
				{Label: "User ID", Example: "U0123456789"},
			},
		},
	}
}

// NormalizeConfig validates and normalizes a Slack channel configuration map.
func (a *SlackAdapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	return normalizeConfig(raw)
}

// NormalizeTarget normalizes a Slack delivery target string.
func (a *SlackAdapter) NormalizeTarget(raw string) string {
	return normalizeTarget(raw)
}

// DiscoverSelf fetches the bot's own identity via auth.test.
func (a *SlackAdapter) DiscoverSelf(ctx context.Context, credentials map[string]any) (map[string]any, string, error) {
	cfg, err := parseConfig(credentials)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.getOrCreateClient(cfg).AuthTestContext(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("slack auth test: %w", err)
	}
	identity := map[string]any{
		"user_id": resp.UserID,
		"user":    resp.User,
		"team":    resp.Team,
		"team_id": resp.TeamID,
	}
	return identity, resp.UserID, nil
}

// Connect opens a Socket Mode connection and forwards admitted messages to
// the handler.
func (a *SlackAdapter) Connect(ctx context.Context, cfg channel.ChannelConfig, handler channel.InboundHandler) (channel.Connection, error) {
	if a.logger != nil {
		a.logger.Info("start", slog.String("config_id", cfg.ID))
	}
	slackCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		}
		return nil, err
	}
	api := slack.New(slackCfg.BotToken, slack.OptionAppLevelToken(slackCfg.AppToken))
	botUserID := channel.ReadString(cfg.SelfIdentity, "user_id")
	if resp, err := api.AuthTestContext(ctx); err != nil {
		// The socket can still come up if auth.test is flaky; without a
		// bot user ID, self-echo and mention checks degrade.
		if a.logger != nil {
			a.logger.Warn("auth test failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		}
	} else {
		botUserID = resp.UserID
		if a.logger != nil {
			a.logger.Info("authenticated",
				slog.String("config_id", cfg.ID),
				slog.String("bot_user", resp.User),
				slog.String("bot_user_id", resp.UserID),
			)
		}
	}

	socket := socketmode.New(api)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case evt, ok := <-socket.Events:
				if !ok {
					if a.logger != nil {
						a.logger.Info("socket events channel closed", slog.String("config_id", cfg.ID))
					}
					return
				}
				switch evt.Type {
				case socketmode.EventTypeConnecting:
					if a.logger != nil {
						a.logger.Debug("socket connecting", slog.String("config_id", cfg.ID))
					}
				case socketmode.EventTypeConnected:
					if a.logger != nil {
						a.logger.Info("socket connected", slog.String("config_id", cfg.ID))
					}
				case socketmode.EventTypeConnectionError:
					if a.logger != nil {
						a.logger.Warn("socket connection error", slog.String("config_id", cfg.ID), slog.Any("data", evt.Data))
					}
				case socketmode.EventTypeEventsAPI:
					apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
					if !ok {
						continue
					}
					if evt.Request != nil {
						socket.Ack(*evt.Request)
					}
					a.handleEventsAPI(connCtx, api, cfg, slackCfg, botUserID, apiEvent, handler)
				default:
					// Ack everything else so Slack does not redeliver.
					if evt.Request != nil {
						socket.Ack(*evt.Request)
					}
				}
			}
		}
	}()

	go func() {
		if err := socket.RunContext(connCtx); err != nil && connCtx.Err() == nil {
			if a.logger != nil {
				a.logger.Error("socket mode stopped", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}
	}()

	stop := func(context.Context) error {
		cancel()
		return nil
	}
	return channel.NewConnection(cfg, stop), nil
}

func (a *SlackAdapter) handleEventsAPI(ctx context.Context, api *slack.Client, cfg channel.ChannelConfig, slackCfg Config, botUserID string, apiEvent slackevents.EventsAPIEvent, handler channel.InboundHandler) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	var (
		event inboundEvent
		files []slack.File
	)
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		files = messageFiles(ev)
		event = inboundEvent{
			Type:        eventTypeMessage,
			User:        ev.User,
			Channel:     ev.Channel,
			ChannelType: ev.ChannelType,
			SubType:     ev.SubType,
			Text:        ev.Text,
			TS:          ev.TimeStamp,
			ThreadTS:    ev.ThreadTimeStamp,
			HasFiles:    len(files) > 0,
		}
	case *slackevents.AppMentionEvent:
		event = inboundEvent{
			Type:     eventTypeAppMention,
			User:     ev.User,
			Channel:  ev.Channel,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}
	default:
		return
	}
	if a.logger != nil {
		a.logger.Debug("event received",
			slog.String("config_id", cfg.ID),
			slog.String("type", event.Type),
			slog.String("channel", event.Channel),
			slog.String("channel_type", event.ChannelType),
			slog.String("subtype", event.SubType),
			slog.String("user", event.User),
		)
	}

	d := decide(slackCfg, event, botUserID)
	if !d.Admit {
		if a.logger != nil {
			a.logger.Debug("event not admitted",
				slog.String("config_id", cfg.ID),
				slog.String("reason", d.Reason),
			)
		}
		return
	}

	// Let the sender know the message was seen. Best effort.
	go func() {
		if err := api.AddReactionContext(ctx, ackEmoji, slack.NewRefToMessage(event.Channel, event.TS)); err != nil {
			if a.logger != nil {
				a.logger.Debug("ack reaction failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}
	}()

	attachments := a.collectAttachments(files)
	if d.Text == "" && len(attachments) == 0 {
		return
	}

	msg := channel.InboundMessage{
		Channel:     Type,
		BotID:       cfg.BotID,
		ReplyTarget: event.Channel,
		Sender: channel.Identity{
			SubjectID: event.User,
		},
		Conversation: channel.Conversation{
			ID:       event.Channel,
			Type:     event.ChannelType,
			ThreadID: d.ThreadTS,
		},
		Message: channel.Message{
			Format:      channel.MessageFormatPlain,
			Text:        d.Text,
			Attachments: attachments,
			Thread:      &channel.ThreadRef{ID: d.ThreadTS},
		},
		ReceivedAt: time.Now(),
		Source:     "slack",
		Metadata: map[string]any{
			"thread_ts":    d.ThreadTS,
			"channel_type": event.ChannelType,
			"event_ts":     event.TS,
		},
	}
	go func() {
		if err := handler(ctx, cfg, msg); err != nil {
			if a.logger != nil {
				a.logger.Error("handle inbound failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
			}
		}
	}()
}

// messageFiles returns the shared files on a message event. They ride on the
// unmarshalled message body, not the event envelope.
func messageFiles(ev *slackevents.MessageEvent) []slack.File {
	if ev == nil || ev.Message == nil {
		return nil
	}
	return ev.Message.Files
}

// Send posts an outbound message. Markdown text is converted to mrkdwn and
// laid out as section blocks; the raw mrkdwn doubles as the notification
// fallback text. Replies thread when a thread timestamp is present, except
// in DMs where threading reads oddly.
func (a *SlackAdapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	slackCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		if a.logger != nil {
			a.logger.Error("decode config failed", slog.String("config_id", cfg.ID), slog.Any("error", err))
		}
		return err
	}
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("slack target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	api := a.getOrCreateClient(slackCfg)

	text := msg.Message.Text
	if msg.Message.Format == channel.MessageFormatMarkdown {
		text = ConvertMarkdown(text)
	}
	for _, att := range msg.Message.Attachments {
		link := strings.TrimSpace(att.URL)
		if link == "" {
			continue
		}
		name := att.Name
		if name == "" {
			name = string(att.Type)
		}
		if text != "" {
			text += "\n"
		}
		text += "<" + link + "|" + name + ">"
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is required")
	}

	options := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(BuildMessageBlocks(text)...),
	}
	if ts := threadTimestamp(msg.Message); ts != "" {
		options = append(options, slack.MsgOptionTS(ts))
	}
	if _, _, err := api.PostMessageContext(ctx, target, options...); err != nil {
		if a.logger != nil {
			a.logger.Error("send failed", slog.String("config_id", cfg.ID), slog.String("target", target), slog.Any("error", err))
		}
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// threadTimestamp returns the thread to reply in, or empty to post at the
// conversation top level. DMs never thread.
func threadTimestamp(msg channel.Message) string {
	if channel.ReadString(msg.Metadata, "channel_type") == channelTypeIM {
		return ""
	}
	if msg.Thread != nil && strings.TrimSpace(msg.Thread.ID) != "" {
		return strings.TrimSpace(msg.Thread.ID)
	}
	return channel.ReadString(msg.Metadata, "thread_ts")
}

// React adds an emoji reaction to a message.
func (a *SlackAdapter) React(ctx context.Context, cfg channel.ChannelConfig, target, messageID, emoji string) error {
	slackCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	api := a.getOrCreateClient(slackCfg)
	if err := api.AddReactionContext(ctx, normalizeEmoji(emoji), slack.NewRefToMessage(target, messageID)); err != nil {
		return fmt.Errorf("slack add reaction: %w", err)
	}
	return nil
}

// Unreact removes an emoji reaction from a message.
func (a *SlackAdapter) Unreact(ctx context.Context, cfg channel.ChannelConfig, target, messageID, emoji string) error {
	slackCfg, err := parseConfig(cfg.Credentials)
	if err != nil {
		return err
	}
	api := a.getOrCreateClient(slackCfg)
	if err := api.RemoveReactionContext(ctx, normalizeEmoji(emoji), slack.NewRefToMessage(target, messageID)); err != nil {
		return fmt.Errorf("slack remove reaction: %w", err)
	}
	return nil
}

// normalizeEmoji strips the surrounding colons from an emoji name.
func normalizeEmoji(emoji string) string {
	return strings.Trim(strings.TrimSpace(emoji), ":")
}
