package ai

import (
	"regexp"
	"strings"
)

var thinkBlocks = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanReply strips reasoning blocks some models leak and trims whitespace.
func cleanReply(s string) string {
	s = thinkBlocks.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
