package extractor

import (
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```(?:json)?\\s*\\n?")
	trailingFence = regexp.MustCompile("\\n?```\\s*$")
)

// StripFences removes a markdown code fence wrapped around a model reply.
// Text that does not start with a fence is only trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = leadingFence.ReplaceAllString(s, "")
	return trailingFence.ReplaceAllString(s, "")
}
