package channel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeConfigMap unmarshals a JSON payload into a config map.
// A nil or "null" payload decodes to an empty map.
func DecodeConfigMap(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ReadString reads a config value as a trimmed string, coercing numeric
// values. Keys are tried in order; the first non-empty value wins.
func ReadString(raw map[string]any, keys ...string) string {
	if raw == nil {
		return ""
	}
	for _, key := range keys {
		value := readStringValue(raw[key])
		if value != "" {
			return value
		}
	}
	return ""
}

func readStringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ReadBool reads a config value as a bool, falling back to def when the key
// is absent or not coercible.
func ReadBool(raw map[string]any, key string, def bool) bool {
	if raw == nil {
		return def
	}
	switch value := raw[key].(type) {
	case bool:
		return value
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// ReadStringList reads a config value as a list of trimmed, non-empty
// strings. Keys are tried in order; the first key with entries wins.
func ReadStringList(raw map[string]any, keys ...string) []string {
	if raw == nil {
		return nil
	}
	for _, key := range keys {
		if items := readStringListValue(raw[key]); items != nil {
			return items
		}
	}
	return nil
}

func readStringListValue(value any) []string {
	appendItem := func(items []string, value string) []string {
		value = strings.TrimSpace(value)
		if value == "" {
			return items
		}
		return append(items, value)
	}
	switch value := value.(type) {
	case []string:
		items := make([]string, 0, len(value))
		for _, item := range value {
			items = appendItem(items, item)
		}
		return items
	case []any:
		items := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				items = appendItem(items, s)
			}
		}
		return items
	default:
		return nil
	}
}
