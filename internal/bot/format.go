package bot

import (
	"strings"
	"unicode"

	"github.com/bull/znatok/internal/rag"
)

// MaxMessageLength is Telegram's limit for one message, in characters.
const MaxMessageLength = 4096

// FormatAnswer renders an answer with its sources for chat delivery.
func FormatAnswer(header string, resp *rag.AskResponse, sourcesTitle string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(resp.Answer)
	if len(resp.Sources) > 0 {
		b.WriteString("\n\n")
		b.WriteString(sourcesTitle)
		b.WriteString("\n")
		seen := make(map[string]bool, len(resp.Sources))
		first := true
		for _, s := range resp.Sources {
			if seen[s.Source] {
				continue
			}
			seen[s.Source] = true
			if !first {
				b.WriteString("\n")
			}
			first = false
			b.WriteString("• ")
			b.WriteString(s.Source)
		}
	}
	return b.String()
}

// SplitMessage cuts text into parts of at most max characters, breaking at
// the last newline of each window, else the last space, else hard.
func SplitMessage(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	runes := []rune(text)
	var parts []string
	for len(runes) > max {
		window := runes[:max]
		pos := lastIndex(window, '\n')
		if pos <= 0 {
			pos = lastIndex(window, ' ')
		}
		if pos <= 0 {
			pos = max
		}
		parts = append(parts, string(runes[:pos]))
		runes = trimLeftSpace(runes[pos:])
	}
	if len(runes) > 0 || len(parts) == 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

func trimLeftSpace(rs []rune) []rune {
	for len(rs) > 0 && unicode.IsSpace(rs[0]) {
		rs = rs[1:]
	}
	return rs
}
