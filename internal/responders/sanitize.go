package responders

import (
	"regexp"
	"strings"
)

var (
	nonASCII = regexp.MustCompile(`[^\x00-\x7F]+`)
	boldSpan = regexp.MustCompile(`\*\*.*?\*\*`)
	spaces   = regexp.MustCompile(`[ \t]{2,}`)
)

const (
	thinkClose = "</think>"
	terminate  = "TERMINATE"
)

// Sanitize makes model output safe to speak: reasoning preambles, markdown
// bold spans, non-ASCII glyphs and anything after a TERMINATE marker go.
func Sanitize(msg string) string {
	if i := strings.LastIndex(msg, thinkClose); i >= 0 {
		msg = msg[i+len(thinkClose):]
	}
	if i := strings.Index(msg, terminate); i >= 0 {
		msg = msg[:i]
	}
	msg = nonASCII.ReplaceAllString(msg, "")
	msg = boldSpan.ReplaceAllString(msg, "")
	msg = spaces.ReplaceAllString(msg, " ")
	return strings.TrimSpace(msg)
}
