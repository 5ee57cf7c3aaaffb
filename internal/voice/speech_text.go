package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// maxSpokenRunes bounds one utterance. Longer replies are cut at the last
// sentence end inside the limit; the full text still goes to history.
const maxSpokenRunes = 600

var (
	spokenURLPattern    = regexp.MustCompile(`https?://\S+`)
	spokenLinkPattern   = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	spokenBulletPattern = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	spokenHeadingPrefix = regexp.MustCompile(`(?m)^\s*#+\s*`)
)

// speakableText turns a guide reply into plain sentences for synthesis.
// List items and headings become sentences of their own.
func speakableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = spokenLinkPattern.ReplaceAllString(raw, "$1")
	raw = spokenURLPattern.ReplaceAllString(raw, " ")
	raw = spokenHeadingPrefix.ReplaceAllString(raw, "")
	raw = spokenBulletPattern.ReplaceAllString(raw, "")
	raw = endLines(raw)
	raw = strings.NewReplacer("*", " ", "_", " ", "`", " ", "|", " ", "~", " ", "<", " ", ">", " ").Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true
	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
		case unicode.In(r, unicode.So, unicode.Sk):
			// emoji and pictographs
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return truncateAtSentence(strings.TrimSpace(b.String()), maxSpokenRunes)
}

// endLines closes every non-empty line that lacks terminal punctuation so
// list items are read as separate sentences.
func endLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !endsSentence(line) && len(lines) > 1 {
			line += "."
		}
		out = append(out, line)
	}
	return strings.Join(out, " ")
}

func endsSentence(s string) bool {
	switch last := []rune(s); last[len(last)-1] {
	case '.', '!', '?', ':', ';', '。', '！', '？', '।', '؟':
		return true
	}
	return false
}

func truncateAtSentence(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i > 0; i-- {
		if endsSentence(string(cut[i])) {
			return string(cut[:i+1])
		}
	}
	return strings.TrimSpace(string(cut))
}
