package channel

import (
	"context"
	"errors"
	"testing"
)

func TestStaticStoreListConfigsByType(t *testing.T) {
	t.Parallel()

	store := NewStaticStore(
		ChannelConfig{ID: "a", BotID: "bot-1", ChannelType: ChannelType("slack")},
		ChannelConfig{ID: "b", BotID: "bot-2", ChannelType: ChannelType("slack"), Disabled: true},
		ChannelConfig{ID: "c", BotID: "bot-3", ChannelType: ChannelType("other")},
	)
	configs, err := store.ListConfigsByType(context.Background(), ChannelType("slack"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(configs) != 1 || configs[0].ID != "a" {
		t.Fatalf("unexpected configs: %+v", configs)
	}
}

func TestStaticStoreResolveEffectiveConfig(t *testing.T) {
	t.Parallel()

	store := NewStaticStore(
		ChannelConfig{ID: "a", BotID: "bot-1", ChannelType: ChannelType("slack")},
	)
	cfg, err := store.ResolveEffectiveConfig(context.Background(), "bot-1", ChannelType("slack"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ID != "a" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = store.ResolveEffectiveConfig(context.Background(), "", ChannelType("slack"))
	if err != nil {
		t.Fatalf("expected blank bot id to match any config, got %v", err)
	}
	if cfg.ID != "a" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := store.ResolveEffectiveConfig(context.Background(), "bot-2", ChannelType("slack")); !errors.Is(err, ErrChannelConfigNotFound) {
		t.Fatalf("expected ErrChannelConfigNotFound, got %v", err)
	}
}

func TestStaticStorePutReplaces(t *testing.T) {
	t.Parallel()

	store := NewStaticStore(ChannelConfig{ID: "a", BotID: "bot-1", ChannelType: ChannelType("slack")})
	store.Put(ChannelConfig{ID: "a2", BotID: "bot-1", ChannelType: ChannelType("slack")})
	cfg, err := store.ResolveEffectiveConfig(context.Background(), "bot-1", ChannelType("slack"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ID != "a2" {
		t.Fatalf("expected replaced config, got %+v", cfg)
	}
}
