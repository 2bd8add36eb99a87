// Package transcribe turns captured audio into text through an ordered chain
// of speech recognition engines.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"windy/internal/backend"
)

var ErrEmptyTranscript = errors.New("empty transcript")

// nonSpeechRe matches the markers recognizers emit for silence or noise,
// such as [BLANK_AUDIO] or (music).
var nonSpeechRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

type Engine interface {
	backend.Backend
	Transcribe(ctx context.Context, path string) (string, error)
}

// Chain tries each engine in order and returns the first non-blank
// transcript.
type Chain struct {
	engines []Engine
	timeout time.Duration
	log     *slog.Logger
}

func NewChain(engines []Engine, timeout time.Duration, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{engines: engines, timeout: timeout, log: log}
}

func (c *Chain) Engines() []string {
	names := make([]string, len(c.engines))
	for i, e := range c.engines {
		names[i] = e.Name()
	}
	return names
}

// Transcribe never fails outward: if every engine errors or hears nothing
// the result is "".
func (c *Chain) Transcribe(ctx context.Context, path string) string {
	for _, e := range c.engines {
		text, err := c.run(ctx, e, path)
		if err != nil {
			c.log.Warn("Transcription failed", "engine", e.Name(), "err", err)
			continue
		}

		c.log.Debug("Transcribed", "engine", e.Name(), "text", text)
		return text
	}

	return ""
}

func (c *Chain) run(ctx context.Context, e Engine, path string) (text string, err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	text, err = e.Transcribe(ctx, path)
	if err != nil {
		return "", err
	}

	text = nonSpeechRe.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
