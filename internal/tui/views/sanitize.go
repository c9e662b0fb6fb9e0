package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal removes codepoints that tcell/tview render badly and
// flattens line breaks so one message preview stays on one line.
//   - Skin tone modifiers (U+1F3FB..U+1F3FF)
//   - Zero Width Joiner (U+200D)
//   - Variation Selectors (U+FE00..U+FE0F, U+E0100..U+E01EF)
//   - other control characters
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case isProblematicRune(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	case r == utf8.RuneError:
		return true
	default:
		return unicode.IsControl(r)
	}
}
