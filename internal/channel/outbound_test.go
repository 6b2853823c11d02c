package channel

import (
	"strings"
	"testing"
)

func TestNormalizeOutboundPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy := NormalizeOutboundPolicy(OutboundPolicy{})
	if policy.TextChunkLimit != 2000 {
		t.Fatalf("expected default chunk limit 2000, got %d", policy.TextChunkLimit)
	}
	if policy.MediaOrder != OutboundOrderMediaFirst {
		t.Fatalf("expected media_first order, got %s", policy.MediaOrder)
	}
	if policy.ChunkerMode != ChunkerModeText {
		t.Fatalf("expected text chunker mode, got %s", policy.ChunkerMode)
	}
	if policy.RetryMax != 3 || policy.RetryBackoffMs != 500 {
		t.Fatalf("unexpected retry defaults: max=%d backoff=%d", policy.RetryMax, policy.RetryBackoffMs)
	}
	if policy.Chunker == nil {
		t.Fatal("expected default chunker to be set")
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "empty", text: "   ", limit: 10, want: nil},
		{name: "fits", text: "hello world", limit: 20, want: []string{"hello world"}},
		{name: "splits at newline", text: "aaaa\nbbbb\ncccc", limit: 9, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "long line split", text: strings.Repeat("x", 25), limit: 10, want: []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ChunkText(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d chunks, got %d: %q", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("chunk %d mismatch: got %q want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkMarkdownTextKeepsParagraphs(t *testing.T) {
	t.Parallel()

	text := "first paragraph\n\nsecond paragraph\n\nthird"
	chunks := ChunkMarkdownText(text, 34)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != "first paragraph\n\nsecond paragraph" {
		t.Fatalf("unexpected first chunk: %q", chunks[0])
	}
	if chunks[1] != "third" {
		t.Fatalf("unexpected second chunk: %q", chunks[1])
	}
}

func TestChunkTextCountsRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("世", 12)
	chunks := ChunkText(text, 5)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks[:2] {
		if runeLen(chunk) != 5 {
			t.Fatalf("chunk %d rune length = %d, want 5", i, runeLen(chunk))
		}
	}
}

func TestBuildOutboundMessagesSplitsText(t *testing.T) {
	t.Parallel()

	policy := NormalizeOutboundPolicy(OutboundPolicy{TextChunkLimit: 10})
	msg := OutboundMessage{
		Target:  "C123",
		Message: Message{Format: MessageFormatPlain, Text: "aaaa\nbbbb\ncccc\ndddd"},
	}
	out, err := buildOutboundMessages(msg, policy)
	if err != nil {
		t.Fatalf("buildOutboundMessages failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	for _, item := range out {
		if item.Target != "C123" {
			t.Fatalf("target not preserved: %q", item.Target)
		}
	}
}

func TestBuildOutboundMessagesMediaOrder(t *testing.T) {
	t.Parallel()

	msg := OutboundMessage{
		Target: "C123",
		Message: Message{
			Format:      MessageFormatPlain,
			Text:        "caption",
			Attachments: []Attachment{{Type: AttachmentImage, URL: "https://example.com/a.png"}},
		},
	}

	policy := NormalizeOutboundPolicy(OutboundPolicy{})
	out, err := buildOutboundMessages(msg, policy)
	if err != nil {
		t.Fatalf("buildOutboundMessages failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if len(out[0].Message.Attachments) != 1 {
		t.Fatal("expected attachments first with media_first order")
	}

	policy.MediaOrder = OutboundOrderTextFirst
	out, err = buildOutboundMessages(msg, policy)
	if err != nil {
		t.Fatalf("buildOutboundMessages failed: %v", err)
	}
	if out[0].Message.Text != "caption" {
		t.Fatal("expected text first with text_first order")
	}
}

func TestBuildOutboundMessagesRejectsEmpty(t *testing.T) {
	t.Parallel()

	policy := NormalizeOutboundPolicy(OutboundPolicy{})
	if _, err := buildOutboundMessages(OutboundMessage{Target: "C1"}, policy); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestNormalizeAttachmentRefs(t *testing.T) {
	t.Parallel()

	if _, err := normalizeAttachmentRefs([]Attachment{{Type: AttachmentImage}}); err == nil {
		t.Fatal("expected error for attachment without reference")
	}
	got, err := normalizeAttachmentRefs([]Attachment{{Type: AttachmentFile, URL: "  https://example.com/f.pdf  "}})
	if err != nil {
		t.Fatalf("normalizeAttachmentRefs failed: %v", err)
	}
	if got[0].URL != "https://example.com/f.pdf" {
		t.Fatalf("expected trimmed URL, got %q", got[0].URL)
	}
}
