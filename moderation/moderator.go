// Package moderation screens user message content before delivery.
// System messages bypass it entirely.
package moderation

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks forbidden words in message content. Matching is
// case-insensitive over an Aho-Corasick automaton built once at startup.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

func NewModerator(censoredWords []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		word = strings.TrimSpace(strings.ToLower(word))
		if word == "" {
			continue
		}
		patterns = append(patterns, []rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement}, nil
}

// Censor replaces every matched span with the replacement character and
// reports whether anything was masked.
func (m *Moderator) Censor(content string) (string, bool) {
	runes := []rune(content)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	spans := m.matcher.MultiPatternSearch(lowered, false)
	if len(spans) == 0 {
		return content, false
	}

	for _, span := range spans {
		for i := span.Pos; i < span.Pos+len(span.Word) && i < len(runes); i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes), true
}

// DetectLanguage returns the ISO 639-1 code of the content's likely
// language, or empty when detection is unreliable.
func DetectLanguage(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
