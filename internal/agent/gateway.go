// Package agent forwards admitted channel messages to an external agent
// service over HTTP and relays the agent's reply back to the channel.
package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/slackwire/internal/channel"
)

const messagesPath = "/v1/messages"

// Request is the payload posted to the agent service for each inbound message.
type Request struct {
	RequestID        string       `json:"request_id"`
	BotID            string       `json:"bot_id"`
	Channel          string       `json:"channel"`
	ConversationID   string       `json:"conversation_id"`
	ConversationType string       `json:"conversation_type,omitempty"`
	SenderID         string       `json:"sender_id"`
	RouteKey         string       `json:"route_key"`
	Text             string       `json:"text"`
	ThreadID         string       `json:"thread_id,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// Attachment describes a file shared with the inbound message. Content holds
// the base64-encoded file bytes when the channel resolved them; URL is only a
// fallback reference and may require channel credentials to fetch.
type Attachment struct {
	Type    string `json:"type"`
	URL     string `json:"url,omitempty"`
	Name    string `json:"name,omitempty"`
	Mime    string `json:"mime,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Content string `json:"content,omitempty"`
}

// Response is the agent service's reply. An empty text means no reply should
// be sent back to the channel.
type Response struct {
	Text string `json:"text"`
}

// AttachmentResolvers looks up the attachment resolver for a channel type.
// *channel.Registry satisfies it.
type AttachmentResolvers interface {
	GetAttachmentResolver(channelType channel.ChannelType) (channel.AttachmentResolver, bool)
}

// Gateway implements channel.InboundProcessor against an HTTP agent service.
type Gateway struct {
	logger    *slog.Logger
	baseURL   string
	client    *http.Client
	resolvers AttachmentResolvers
}

// NewGateway creates a Gateway for the agent service at baseURL. Attachments
// on inbound messages are downloaded through resolvers before dispatch, since
// the agent has no channel credentials of its own; a nil resolvers forwards
// references as-is.
func NewGateway(log *slog.Logger, baseURL string, timeout time.Duration, resolvers AttachmentResolvers) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gateway{
		logger:    log.With(slog.String("component", "agent")),
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		resolvers: resolvers,
	}
}

// HandleInbound forwards one inbound message and sends the agent's reply, if
// any, through the reply sender. The reply goes to the message's reply
// target as markdown, threaded onto the inbound message's thread.
func (g *Gateway) HandleInbound(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage, sender channel.ReplySender) error {
	req := Request{
		RequestID:        uuid.NewString(),
		BotID:            msg.BotID,
		Channel:          msg.Channel.String(),
		ConversationID:   msg.Conversation.ID,
		ConversationType: msg.Conversation.Type,
		SenderID:         msg.Sender.SubjectID,
		RouteKey:         msg.RoutingKey(),
		Text:             msg.Message.Text,
		Attachments:      g.buildAttachments(ctx, cfg, msg),
	}
	if msg.Message.Thread != nil {
		req.ThreadID = msg.Message.Thread.ID
	}

	resp, err := g.dispatch(ctx, req)
	if err != nil {
		return err
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		if g.logger != nil {
			g.logger.Debug("agent returned no reply", slog.String("request_id", req.RequestID))
		}
		return nil
	}
	if sender == nil {
		return fmt.Errorf("reply sender is required")
	}
	out := channel.OutboundMessage{
		Target: msg.ReplyTarget,
		Message: channel.Message{
			Format:   channel.MessageFormatMarkdown,
			Text:     reply,
			Thread:   msg.Message.Thread,
			Metadata: msg.Metadata,
		},
	}
	return sender.Send(ctx, out)
}

func (g *Gateway) dispatch(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode agent request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if g.logger != nil {
		g.logger.Info("dispatch to agent",
			slog.String("request_id", req.RequestID),
			slog.String("channel", req.Channel),
			slog.String("route_key", req.RouteKey),
		)
	}
	start := time.Now()
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("agent request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return Response{}, fmt.Errorf("agent returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode agent response: %w", err)
	}
	if g.logger != nil {
		g.logger.Debug("agent responded",
			slog.String("request_id", req.RequestID),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	return resp, nil
}

func (g *Gateway) buildAttachments(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) []Attachment {
	attachments := msg.Message.Attachments
	if len(attachments) == 0 {
		return nil
	}
	items := make([]Attachment, 0, len(attachments))
	for _, att := range attachments {
		item := Attachment{
			Type: string(att.Type),
			URL:  att.URL,
			Name: att.Name,
			Mime: att.Mime,
			Size: att.Size,
		}
		if payload, err := g.resolveAttachment(ctx, cfg, msg.Channel, att); err != nil {
			if g.logger != nil {
				g.logger.Warn("resolve attachment failed",
					slog.String("channel", msg.Channel.String()),
					slog.String("platform_key", att.PlatformKey),
					slog.Any("error", err),
				)
			}
		} else if payload != nil {
			item.Content = base64.StdEncoding.EncodeToString(payload.content)
			if payload.mime != "" {
				item.Mime = payload.mime
			}
			if item.Name == "" {
				item.Name = payload.name
			}
			item.Size = int64(len(payload.content))
			// The private URL needs channel credentials, so once the
			// content is inline it only adds noise.
			item.URL = ""
		}
		items = append(items, item)
	}
	return items
}

type resolvedAttachment struct {
	content []byte
	mime    string
	name    string
}

// resolveAttachment downloads one attachment through the channel's resolver.
// A nil result with a nil error means no resolver applies and the reference
// should be forwarded untouched.
func (g *Gateway) resolveAttachment(ctx context.Context, cfg channel.ChannelConfig, channelType channel.ChannelType, att channel.Attachment) (*resolvedAttachment, error) {
	if g.resolvers == nil || strings.TrimSpace(att.PlatformKey) == "" {
		return nil, nil
	}
	resolver, ok := g.resolvers.GetAttachmentResolver(channelType)
	if !ok {
		return nil, nil
	}
	payload, err := resolver.ResolveAttachment(ctx, cfg, att)
	if err != nil {
		return nil, err
	}
	if payload.Reader == nil {
		return nil, fmt.Errorf("resolved attachment reader is nil")
	}
	defer payload.Reader.Close()
	content, err := io.ReadAll(payload.Reader)
	if err != nil {
		return nil, fmt.Errorf("read attachment payload: %w", err)
	}
	return &resolvedAttachment{
		content: content,
		mime:    payload.Mime,
		name:    payload.Name,
	}, nil
}
