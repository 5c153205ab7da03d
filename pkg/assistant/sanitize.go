package assistant

import (
	"strings"
	"unicode"
)

var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
}

// Sanitize normalizes a model reply for speech output: emoji and other
// symbol runes are removed, whitespace is collapsed, repeated sentences and
// duplicate self-introductions are dropped, and at most two sentences are
// kept.
func Sanitize(s, name string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.So, r) {
			continue
		}
		if r == '\n' || r == '\r' {
			r = ' '
		}
		b.WriteRune(r)
	}
	clean := strings.Join(strings.Fields(b.String()), " ")

	parts := splitSentences(clean)
	parts = dedupeSentences(parts)
	parts = removeIntroDuplicate(parts, name)
	if len(parts) == 0 {
		return strings.TrimSpace(clean)
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}

func splitSentences(s string) []string {
	var parts []string
	var current strings.Builder
	for _, r := range s {
		current.WriteRune(r)
		if sentenceEnders[r] {
			if seg := strings.TrimSpace(current.String()); seg != "" {
				parts = append(parts, seg)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// dedupeSentences drops repeats, comparing with spaces removed so the model
// cannot smuggle a duplicate past the check by varying spacing.
func dedupeSentences(parts []string) []string {
	seen := make(map[string]bool, len(parts))
	kept := parts[:0]
	for _, p := range parts {
		key := strings.ReplaceAll(p, " ", "")
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, p)
	}
	return kept
}

func removeIntroDuplicate(parts []string, name string) []string {
	if name == "" {
		return parts
	}
	intro := "我是你的桌面助手" + name
	kept := parts[:0]
	found := false
	for _, p := range parts {
		if strings.Contains(p, intro) {
			if found {
				continue
			}
			found = true
		}
		kept = append(kept, p)
	}
	return kept
}
