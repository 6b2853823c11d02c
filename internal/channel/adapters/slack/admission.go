package slack

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

const (
	eventTypeMessage    = "message"
	eventTypeAppMention = "app_mention"

	subtypeFileShare = "file_share"

	channelTypeIM = "im"
)

// inboundEvent is the platform-shape snapshot of a Slack event that the
// admission checks operate on.
type inboundEvent struct {
	Type        string
	User        string
	Channel     string
	ChannelType string
	SubType     string
	Text        string
	TS          string
	ThreadTS    string
	HasFiles    bool
}

// decision is the outcome of the admission checks for one event.
type decision struct {
	Admit    bool
	Reason   string
	Text     string
	ThreadTS string
}

func deny(reason string) decision {
	return decision{Reason: reason}
}

// decide runs the admission checks for an inbound event in order: event type,
// subtype, self-echo, duplicate mention delivery, required identifiers, and
// the configured access policy. Admitted events carry the cleaned text and
// the thread timestamp replies should target.
func decide(cfg Config, event inboundEvent, botUserID string) decision {
	if event.Type != eventTypeMessage && event.Type != eventTypeAppMention {
		return deny("unsupported event type")
	}
	if event.SubType != "" && event.SubType != subtypeFileShare {
		return deny("ignored subtype")
	}
	if botUserID != "" && event.User == botUserID {
		return deny("own message")
	}
	mention := ""
	if botUserID != "" {
		mention = "<@" + botUserID + ">"
	}
	// A mention inside a plain message event is also delivered as an
	// app_mention event; handle it there so the message is not processed
	// twice. file_share messages have no app_mention counterpart.
	if event.Type == eventTypeMessage && mention != "" && strings.Contains(event.Text, mention) && !event.HasFiles {
		return deny("mention handled by app_mention")
	}
	if event.User == "" || event.Channel == "" {
		return deny("missing user or channel")
	}
	if event.ChannelType == channelTypeIM {
		if !cfg.DMEnabled {
			return deny("dm disabled")
		}
		if cfg.DMPolicy == dmPolicyAllowlist && !slices.Contains(cfg.DMAllowFrom, event.User) {
			return deny("sender not in dm allowlist")
		}
	} else {
		switch cfg.GroupPolicy {
		case groupPolicyOpen:
		case groupPolicyMention:
			mentioned := event.Type == eventTypeAppMention ||
				(mention != "" && strings.Contains(event.Text, mention))
			if !mentioned {
				return deny("not mentioned")
			}
		case groupPolicyAllowlist:
			if !slices.Contains(cfg.GroupAllowFrom, event.Channel) {
				return deny("channel not in group allowlist")
			}
		default:
			return deny("unknown group policy")
		}
	}
	threadTS := event.ThreadTS
	if threadTS == "" {
		threadTS = event.TS
	}
	return decision{
		Admit:    true,
		Text:     stripMention(event.Text, botUserID),
		ThreadTS: threadTS,
	}
}

// mentionRes caches compiled mention patterns by bot user ID. The ID is fixed
// for the lifetime of a connection, so the cache stays at one entry per bot.
var mentionRes sync.Map

func mentionPattern(botUserID string) *regexp.Regexp {
	if cached, ok := mentionRes.Load(botUserID); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(botUserID) + `>\s*`)
	mentionRes.Store(botUserID, re)
	return re
}

// stripMention removes bot mention tokens and surrounding whitespace.
func stripMention(text, botUserID string) string {
	if botUserID != "" {
		text = mentionPattern(botUserID).ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
