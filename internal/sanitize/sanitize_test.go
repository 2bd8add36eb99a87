package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestSanitizer() *Sanitizer {
	return New(Options{
		MaxWords:  30,
		HardLimit: 35,
		MinLength: 3,
		Phrases:   []string{"hi windy", "bye windy", "goodbye windy"},
	})
}

func TestSanitize(t *testing.T) {
	s := newTestSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "The capital of France is Paris.", "The capital of France is Paris."},
		{"bold and italic", "This is **very** _important_ and __clear__.", "This is very important and clear."},
		{"headers and code", "# Answer\n`ls -la` lists files", "Answer ls la lists files."},
		{"brackets", "Use [this](link) {now} <ok>", "Use thislink now ok."},
		{"decimal kept", "Version 3.5 is out.", "Version 3.5 is out."},
		{"hyphens", "A well-known fact --- really", "A well known fact really."},
		{"newlines", "One.\n\n\nTwo.\n  Three", "One. Two. Three."},
		{"coaching dropped", `Sure! Just say "hi windy" to wake me. The weather is fine.`, "Sure! The weather is fine."},
		{"coaching across lines dropped", "To start just say\n\"hi windy\" and I will listen.", Clarify},
		{"coaching after line break dropped", "Hello\nworld. Say\nhi windy.", "Hello world."},
		{"wake word coaching dropped", "Say the wake word anytime. Bye for now!", "Bye for now!"},
		{"mention without say kept", "Hi windy is my name.", "Hi windy is my name."},
		{"trailing comma", "Well, maybe,", "Well, maybe."},
		{"empty", "", Clarify},
		{"blank", " \n\t ", Clarify},
		{"symbols only", "### *** ---", Clarify},
		{"too short", "ok", Clarify},
		{"only coaching", `Say "bye windy" to stop.`, Clarify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.in))
		})
	}
}

func TestSanitizeTruncatesAtSentence(t *testing.T) {
	s := New(Options{MaxWords: 8, HardLimit: 10})

	in := "First sentence is here. Second sentence goes on and on and on."
	assert.Equal(t, "First sentence is here.", s.Sanitize(in))
}

func TestSanitizeTruncatesWithoutPunctuation(t *testing.T) {
	s := New(Options{MaxWords: 5, HardLimit: 10})

	in := "one two three four five six seven"
	assert.Equal(t, "one two three four five.", s.Sanitize(in))
}

func TestSanitizeNeverExceedsHardLimit(t *testing.T) {
	s := newTestSanitizer()

	inputs := []string{
		strings.Repeat("word ", 500),
		strings.Repeat("Short one. ", 100),
		strings.Repeat("**bold** _it_ - ", 80),
		"",
	}
	for _, in := range inputs {
		out := s.Sanitize(in)
		assert.LessOrEqual(t, len(strings.Fields(out)), 35)
		assert.True(t, endsSentence(out), out)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	s := newTestSanitizer()

	inputs := []string{
		"The capital of France is Paris.",
		"This is **very** _important_,",
		"Version 3.5 of the thing, released in twenty twenty four, adds many features that people have wanted for a long time and some they never asked for at all really.",
		strings.Repeat("word ", 50),
		`Say "hi windy" first. Then ask.`,
		"ab",
		"abc",
		",,,",
		"?? what",
		"A.B.C",
		"To start just say\n\"hi windy\" and I will listen.",
		"Hello\nworld. Say\nhi windy.",
		"Fine.\nJust say bye\nwindy when done!\nOk",
		"",
		Clarify,
		Specificity,
	}

	for _, in := range inputs {
		once := s.Sanitize(in)
		assert.Equal(t, once, s.Sanitize(once), "input %q", in)
	}
}

func TestCannedRepliesFitUnderCeiling(t *testing.T) {
	s := New(Options{MaxWords: 2, HardLimit: 2})
	assert.Equal(t, MinHardLimit, s.hardLimit)

	for _, in := range []string{"", Clarify, Specificity, "one two three four five six"} {
		out := s.Sanitize(in)
		assert.LessOrEqual(t, len(strings.Fields(out)), s.hardLimit, out)
	}
	assert.Equal(t, Clarify, s.Sanitize(""))
	assert.Equal(t, Clarify, s.Sanitize(Clarify))
}

func TestNewDefaults(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, DefaultMaxWords, s.maxWords)
	assert.Equal(t, DefaultHardLimit, s.hardLimit)
	assert.Equal(t, DefaultMinLength, s.minLength)
}
