package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

const (
	// maxBlockLength is Slack's character limit for a section block's text.
	maxBlockLength = 3000
	// maxBlocks is Slack's limit on blocks per message.
	maxBlocks = 50
)

// ChunkMrkdwn splits mrkdwn text into pieces that each fit a section block.
// Splits happen at paragraph boundaries first, then line boundaries, and a
// single line longer than the limit is truncated with an ellipsis. Limits are
// measured in runes to match how Slack counts characters.
func ChunkMrkdwn(text string) []string {
	if runeLen(text) <= maxBlockLength {
		return []string{text}
	}
	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0
	for _, para := range strings.Split(text, "\n\n") {
		paraLen := runeLen(para) + 2
		switch {
		case paraLen > maxBlockLength:
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, "\n\n"))
				current = current[:0]
				currentLen = 0
			}
			chunks = append(chunks, chunkLines(para)...)
		case currentLen+paraLen > maxBlockLength:
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, "\n\n"))
			}
			current = []string{para}
			currentLen = paraLen
		default:
			current = append(current, para)
			currentLen += paraLen
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}
	return chunks
}

// chunkLines splits an oversized paragraph at line boundaries.
func chunkLines(para string) []string {
	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0
	for _, line := range strings.Split(para, "\n") {
		lineLen := runeLen(line)
		if currentLen+lineLen+1 > maxBlockLength {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, "\n"))
				current = current[:0]
			}
			if lineLen > maxBlockLength {
				chunks = append(chunks, truncateLine(line))
				currentLen = 0
				continue
			}
			current = append(current, line)
			currentLen = lineLen
			continue
		}
		current = append(current, line)
		currentLen += lineLen + 1
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

func truncateLine(line string) string {
	runes := []rune(line)
	return string(runes[:maxBlockLength-3]) + "..."
}

func runeLen(value string) int {
	return len([]rune(value))
}

// BuildMessageBlocks converts mrkdwn text into Slack section blocks, capped
// at the per-message block limit. When chunks are dropped a trailing context
// block notes how many were omitted.
func BuildMessageBlocks(text string) []slack.Block {
	chunks := ChunkMrkdwn(text)
	keep := chunks
	if len(keep) > maxBlocks {
		keep = keep[:maxBlocks]
	}
	blocks := make([]slack.Block, 0, len(keep)+1)
	for _, chunk := range keep {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false),
			nil, nil,
		))
	}
	if len(chunks) > maxBlocks {
		note := fmt.Sprintf("_Message truncated (%d blocks omitted)_", len(chunks)-maxBlocks)
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, note, false, false),
		))
	}
	return blocks
}
