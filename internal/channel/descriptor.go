package channel

// ChannelCapabilities declares which message features a channel supports.
type ChannelCapabilities struct {
	Text        bool `json:"text"`
	Markdown    bool `json:"markdown"`
	Attachments bool `json:"attachments"`
	Media       bool `json:"media"`
	Threads     bool `json:"threads"`
	Reply       bool `json:"reply"`
	Reactions   bool `json:"reactions"`
}

// FieldType identifies the kind of a configuration field.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldSecret     FieldType = "secret"
	FieldBool       FieldType = "bool"
	FieldStringList FieldType = "string_list"
)

// FieldSchema describes a single configuration field.
type FieldSchema struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Title    string    `json:"title,omitempty"`
}

// ConfigSchema describes the shape of a channel configuration map.
type ConfigSchema struct {
	Version int                    `json:"version"`
	Fields  map[string]FieldSchema `json:"fields,omitempty"`
}

// TargetHint is a labeled example of a valid delivery target.
type TargetHint struct {
	Label   string `json:"label"`
	Example string `json:"example,omitempty"`
}

// TargetSpec documents the delivery target format for a channel.
type TargetSpec struct {
	Format string       `json:"format,omitempty"`
	Hints  []TargetHint `json:"hints,omitempty"`
}

// Descriptor holds read-only metadata for a registered channel type.
// It contains no behavior; all behavior is expressed through optional interfaces.
type Descriptor struct {
	Type           ChannelType
	DisplayName    string
	Capabilities   ChannelCapabilities
	OutboundPolicy OutboundPolicy
	ConfigSchema   ConfigSchema
	TargetSpec     TargetSpec
}
