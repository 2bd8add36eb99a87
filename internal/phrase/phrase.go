// Package phrase detects configured spoken commands in transcripts.
package phrase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Normalize lowercases text, turns everything but letters, digits and
// apostrophes into spaces and collapses runs of whitespace.
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

type pattern struct {
	phrase string
	re     *regexp.Regexp
}

// Matcher is an ordered set of word-boundary patterns. The first pattern
// that matches wins.
type Matcher struct {
	patterns []pattern
}

func Compile(phrases []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range phrases {
		words := strings.Fields(Normalize(p))
		if len(words) == 0 {
			continue
		}

		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(w)
		}

		re, err := regexp.Compile(`\b` + strings.Join(quoted, `\s+`) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile phrase %q: %w", p, err)
		}
		m.patterns = append(m.patterns, pattern{phrase: p, re: re})
	}
	return m, nil
}

func MustCompile(phrases []string) *Matcher {
	m, err := Compile(phrases)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports the first configured phrase found in text.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil {
		return "", false
	}

	norm := Normalize(text)
	for _, p := range m.patterns {
		if p.re.MatchString(norm) {
			return p.phrase, true
		}
	}
	return "", false
}

func (m *Matcher) Phrases() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.phrase
	}
	return out
}
