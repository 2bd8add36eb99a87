// Package tts synthesizes assistant replies into playable audio files.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"windy/internal/backend"
)

var ErrSynthesisFailure = errors.New("synthesis failed")

type Engine interface {
	backend.Backend
	// Ext is the extension of the files the engine writes, with the dot.
	Ext() string
	Synthesize(ctx context.Context, text, path string) error
}

// Cascade synthesizes with the chosen engine and, when that is not the local
// engine, retries once with the local one before giving up.
type Cascade struct {
	primary Engine
	local   Engine
	fs      afero.Fs
	timeout time.Duration
	log     *slog.Logger
}

func NewCascade(primary, local Engine, fs afero.Fs, timeout time.Duration, log *slog.Logger) *Cascade {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	if primary == nil {
		primary = local
	}
	return &Cascade{primary: primary, local: local, fs: fs, timeout: timeout, log: log}
}

// Ext is the extension callers should give output paths.
func (c *Cascade) Ext() string {
	if c.primary == nil {
		return ".wav"
	}
	return c.primary.Ext()
}

func (c *Cascade) Synthesize(ctx context.Context, text, path string) error {
	if c.primary == nil {
		return fmt.Errorf("%w: no engine", ErrSynthesisFailure)
	}

	err := c.run(ctx, c.primary, text, path)
	if err == nil {
		return nil
	}

	if c.local == nil || c.local.Name() == c.primary.Name() {
		return fmt.Errorf("%w: %s: %w", ErrSynthesisFailure, c.primary.Name(), err)
	}

	c.log.Warn("Synthesis failed, using local engine", "engine", c.primary.Name(), "local", c.local.Name(), "err", err)

	if lerr := c.run(ctx, c.local, text, path); lerr != nil {
		return fmt.Errorf("%w: %s: %w; %s: %w", ErrSynthesisFailure, c.primary.Name(), err, c.local.Name(), lerr)
	}
	return nil
}

func (c *Cascade) run(ctx context.Context, e Engine, text, path string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	_ = c.fs.Remove(path)

	if err := e.Synthesize(ctx, text, path); err != nil {
		return err
	}

	fi, err := c.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("no output: %w", err)
	}
	if fi.Size() == 0 {
		return errors.New("empty output")
	}
	return nil
}
