// Package sanitize turns raw model output into short text fit for speech.
package sanitize

import (
	"regexp"
	"strings"

	"windy/internal/phrase"
)

const (
	Clarify     = "I didn't catch that. Could you repeat?"
	Specificity = "That's an interesting question. Could you be more specific?"
)

const (
	DefaultMaxWords  = 30
	DefaultHardLimit = 35
	DefaultMinLength = 3
)

// MinHardLimit is the smallest ceiling the canned replies fit under.
var MinHardLimit = max(len(strings.Fields(Clarify)), len(strings.Fields(Specificity)))

var (
	boldRe     = regexp.MustCompile(`\*{1,3}([^*]+?)\*{1,3}`)
	italicRe   = regexp.MustCompile(`_{1,2}([^_]+?)_{1,2}`)
	symbolsRe  = regexp.MustCompile("[#=~`\\[\\]{}()<>*_|^\\\\]")
	boundaryRe = regexp.MustCompile(`[.!?]+["']*\s+`)
	sayRe      = regexp.MustCompile(`\b(say|saying|said)\b`)
)

type Options struct {
	MaxWords  int
	HardLimit int
	MinLength int
	// Phrases a reply must never coach the listener to say, usually the
	// wake and sleep phrases.
	Phrases []string
}

type Sanitizer struct {
	maxWords  int
	hardLimit int
	minLength int
	coached   *phrase.Matcher
}

func New(opt Options) *Sanitizer {
	if opt.MaxWords <= 0 {
		opt.MaxWords = DefaultMaxWords
	}
	if opt.HardLimit < opt.MaxWords {
		opt.HardLimit = max(DefaultHardLimit, opt.MaxWords)
	}
	opt.HardLimit = max(opt.HardLimit, MinHardLimit)
	if opt.MinLength <= 0 {
		opt.MinLength = DefaultMinLength
	}

	// Compile only fails on a broken pattern, phrases are quoted
	m, _ := phrase.Compile(opt.Phrases)

	return &Sanitizer{
		maxWords:  opt.MaxWords,
		hardLimit: opt.HardLimit,
		minLength: opt.MinLength,
		coached:   m,
	}
}

// Sanitize is pure and idempotent.
func (s *Sanitizer) Sanitize(raw string) string {
	if raw == Clarify || raw == Specificity {
		return raw
	}
	if strings.TrimSpace(raw) == "" {
		return Clarify
	}

	text := boldRe.ReplaceAllString(raw, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = symbolsRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "-", " ")

	text = strings.Join(strings.Fields(text), " ")
	text = s.dropInstructions(text)

	text = s.truncate(text)

	if len(strings.TrimRight(text, ",;: ")) < s.minLength {
		return Clarify
	}

	text = terminate(text)

	if len(strings.Fields(text)) > s.hardLimit {
		return Specificity
	}

	return text
}

// dropInstructions removes sentences telling the listener what to say to
// wake or dismiss the assistant.
func (s *Sanitizer) dropInstructions(text string) string {
	var kept []string
	for _, sent := range splitSentences(text) {
		sent = strings.TrimSpace(sent)
		if sent == "" || s.isInstruction(sent) {
			continue
		}
		kept = append(kept, sent)
	}
	return strings.Join(kept, " ")
}

// splitSentences breaks after terminal punctuation followed by whitespace,
// so "3.5" stays whole. Whitespace is already collapsed.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range boundaryRe.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	return append(out, text[start:])
}

func (s *Sanitizer) isInstruction(sentence string) bool {
	norm := phrase.Normalize(sentence)
	if !sayRe.MatchString(norm) {
		return false
	}
	if strings.Contains(norm, "wake word") || strings.Contains(norm, "wake up") {
		return true
	}
	_, ok := s.coached.Match(norm)
	return ok
}

func (s *Sanitizer) truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= s.maxWords {
		return text
	}

	text = strings.Join(words[:s.maxWords], " ")
	if endsSentence(text) {
		return text
	}
	if i := strings.LastIndexAny(text, ".!?"); i >= 0 {
		return strings.TrimSpace(text[:i+1])
	}
	return strings.TrimRight(text, ",;:") + "."
}

func terminate(text string) string {
	if endsSentence(text) {
		return text
	}
	return strings.TrimRight(text, ",;: ") + "."
}

func endsSentence(text string) bool {
	return strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?")
}
