package llm

import (
	"regexp"
	"strings"
)

var (
	fenceStart = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*")
	fenceEnd   = regexp.MustCompile("(?s)\\s*```\\s*$")
)

// cleanSummary quita BOM y un fence ``` que envuelva toda la respuesta.
// Los fences internos se respetan.
func cleanSummary(raw string) string {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF"))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) > 6 {
		s = fenceStart.ReplaceAllString(s, "")
		s = fenceEnd.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}
