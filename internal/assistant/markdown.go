package assistant

import (
	"regexp"
	"strings"
)

// Speech output can't render markdown, so responses destined for a voice
// channel are flattened to plain text.

var (
	mdHeaderPattern     = regexp.MustCompile(`#+\s+`)
	mdEmphasisPattern   = regexp.MustCompile("\\*\\*|\\*|__|\\^|~~|`")
	mdBulletPattern     = regexp.MustCompile(`(?m)^\s*[*\-+]\s+`)
	mdNumberedPattern   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	mdCodeBlockPattern  = regexp.MustCompile("(?s)```.*?```")
	mdInlineCodePattern = regexp.MustCompile("`([^`]*)`")
	mdBlockquotePattern = regexp.MustCompile(`(?m)^\s*>\s+`)
	mdHRulePattern      = regexp.MustCompile(`\n\s*[\-*_]{3,}\s*\n`)
	mdLinkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHTMLTagPattern    = regexp.MustCompile(`<[^>]*>`)
	mdDoubleSpace       = regexp.MustCompile(`[ \t]{2,}`)
	mdManyNewlines      = regexp.MustCompile(`\n{3,}`)
)

// StripMarkdown removes markdown formatting for speech output.
func StripMarkdown(text string) string {
	if text == "" {
		return text
	}
	text = mdCodeBlockPattern.ReplaceAllString(text, "")
	text = mdHeaderPattern.ReplaceAllString(text, "")
	text = mdInlineCodePattern.ReplaceAllString(text, "$1")
	text = mdEmphasisPattern.ReplaceAllString(text, "")
	text = mdBulletPattern.ReplaceAllString(text, "")
	text = mdNumberedPattern.ReplaceAllString(text, "")
	text = mdBlockquotePattern.ReplaceAllString(text, "")
	text = mdHRulePattern.ReplaceAllString(text, "\n\n")
	text = mdLinkPattern.ReplaceAllString(text, "$1")
	text = mdHTMLTagPattern.ReplaceAllString(text, "")
	text = mdDoubleSpace.ReplaceAllString(text, " ")
	text = mdManyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// FormatForOutput keeps markdown for display channels and strips it for
// speech.
func FormatForOutput(text string, isSpeech bool) string {
	if isSpeech {
		return StripMarkdown(text)
	}
	return text
}
