package slack

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headerRe     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	strikeRe     = regexp.MustCompile(`~~([^~]+)~~`)
	boldStarRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__([^_]+)__`)
	singleStarRe = regexp.MustCompile(`\*([^*\n]+)\*`)
	bulletRe     = regexp.MustCompile(`(?m)^(\s*)- `)
)

// ConvertMarkdown rewrites generic markdown into Slack mrkdwn. Headers become
// bold lines, links become <url|label>, double markers collapse to Slack's
// single markers, and leading hyphen bullets become stars. Constructs mrkdwn
// has no equivalent for are left untouched.
func ConvertMarkdown(text string) string {
	text = headerRe.ReplaceAllString(text, "*$1*")
	text = linkRe.ReplaceAllString(text, "<$2|$1>")
	text = strikeRe.ReplaceAllString(text, "~$1~")
	text = boldStarRe.ReplaceAllString(text, "*$1*")
	text = boldUnderRe.ReplaceAllString(text, "*$1*")

	// Single-star spans at this point are either converted bold or Slack
	// bold the author already wrote. Park them behind placeholders so the
	// italic rewrite below cannot touch them, then put them back.
	var spans []string
	text = singleStarRe.ReplaceAllStringFunc(text, func(match string) string {
		spans = append(spans, match)
		return fmt.Sprintf("\x00B%d\x00", len(spans)-1)
	})
	// $1_ would parse as a group named "1_", so the closing marker needs
	// the braced form.
	text = singleStarRe.ReplaceAllString(text, "_${1}_")
	for i, span := range spans {
		text = strings.Replace(text, fmt.Sprintf("\x00B%d\x00", i), span, 1)
	}

	text = bulletRe.ReplaceAllString(text, "$1* ")
	return text
}
