package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrChannelConfigNotFound is returned when no config matches a lookup.
var ErrChannelConfigNotFound = errors.New("channel config not found")

// StaticStore is a ManagerStore backed by an in-memory, config-file-derived
// set of channel configs. It satisfies both ConfigLister and ConfigResolver.
type StaticStore struct {
	mu      sync.RWMutex
	configs []ChannelConfig
}

// NewStaticStore builds a store from a fixed set of channel configs.
func NewStaticStore(configs ...ChannelConfig) *StaticStore {
	return &StaticStore{configs: append([]ChannelConfig(nil), configs...)}
}

// Put inserts or replaces the config identified by bot ID and channel type.
func (s *StaticStore) Put(config ChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.configs {
		if existing.BotID == config.BotID && existing.ChannelType == config.ChannelType {
			s.configs[i] = config
			return
		}
	}
	s.configs = append(s.configs, config)
}

// ListConfigsByType returns all enabled configs of the given channel type.
func (s *StaticStore) ListConfigsByType(ctx context.Context, channelType ChannelType) ([]ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configs := make([]ChannelConfig, 0)
	for _, config := range s.configs {
		if config.ChannelType != channelType || config.Disabled {
			continue
		}
		configs = append(configs, config)
	}
	return configs, nil
}

// ResolveEffectiveConfig returns the config for the given bot and channel type.
func (s *StaticStore) ResolveEffectiveConfig(ctx context.Context, botID string, channelType ChannelType) (ChannelConfig, error) {
	botID = strings.TrimSpace(botID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, config := range s.configs {
		if config.ChannelType != channelType {
			continue
		}
		if botID != "" && config.BotID != botID {
			continue
		}
		if config.Disabled {
			return ChannelConfig{}, ErrChannelConfigNotFound
		}
		return config, nil
	}
	return ChannelConfig{}, ErrChannelConfigNotFound
}
