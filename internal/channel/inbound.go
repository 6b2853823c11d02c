package channel

import (
	"context"
	"fmt"
	"log/slog"
)

// InboundProcessor consumes admitted inbound messages and may reply through the sender.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage, sender ReplySender) error
}

type inboundTask struct {
	cfg ChannelConfig
	msg InboundMessage
}

// startInboundWorkers launches the worker pool that drains the inbound queue.
// Safe to call more than once; only the first call has effect.
func (m *Manager) startInboundWorkers(ctx context.Context) {
	m.inboundOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		m.inboundCtx, m.inboundCancel = context.WithCancel(context.WithoutCancel(ctx))
		for i := 0; i < m.inboundWorkers; i++ {
			go m.inboundWorker(m.inboundCtx)
		}
	})
}

func (m *Manager) inboundWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.inboundQueue:
			if err := m.processInbound(ctx, task.cfg, task.msg); err != nil && m.logger != nil {
				m.logger.Error("inbound processing failed",
					slog.String("channel", task.cfg.ChannelType.String()),
					slog.String("bot_id", task.cfg.BotID),
					slog.Any("error", err))
			}
		}
	}
}

// handleInbound is the terminal InboundHandler behind the middleware chain.
// With workers running it enqueues; otherwise it processes inline so that
// callers without a started manager still get synchronous dispatch.
func (m *Manager) handleInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error {
	if m.inboundCtx == nil {
		return m.processInbound(ctx, cfg, msg)
	}
	select {
	case m.inboundQueue <- inboundTask{cfg: cfg, msg: msg}:
		return nil
	case <-m.inboundCtx.Done():
		return fmt.Errorf("inbound queue closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) processInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error {
	if m.processor == nil {
		return fmt.Errorf("inbound processor not configured")
	}
	if m.logger != nil {
		m.logger.Info("inbound dispatch",
			slog.String("channel", msg.Channel.String()),
			slog.String("bot_id", msg.BotID),
			slog.String("conversation_id", msg.Conversation.ID),
			slog.String("route_key", msg.RoutingKey()))
	}
	sender := m.newReplySender(cfg, cfg.ChannelType)
	return m.processor.HandleInbound(ctx, cfg, msg, sender)
}
