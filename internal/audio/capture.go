package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"windy/internal/config"
)

// MethodPrimary names artifacts recorded by the Listener.
const MethodPrimary = "microphone"

// Listener is the primary capture mechanism. Recorder implements it over
// portaudio.
type Listener interface {
	Calibrate(ctx context.Context, d time.Duration) (float64, error)
	Listen(ctx context.Context, p Profile, threshold float64) ([]int16, error)
}

type Options struct {
	SampleRate       int
	Retries          int
	DeviceBackoff    time.Duration
	MinArtifactBytes int64
	Fallback         bool
	FallbackAttempts int
}

func OptionsFromConfig(cfg config.AudioConfig) Options {
	return Options{
		SampleRate:       cfg.SampleRate,
		Retries:          cfg.Retries,
		DeviceBackoff:    cfg.DeviceBackoff,
		MinArtifactBytes: cfg.MinArtifactBytes,
		Fallback:         cfg.Fallback.Enabled,
		FallbackAttempts: cfg.Fallback.Attempts,
	}
}

// Result describes a validated audio artifact.
type Result struct {
	Path     string
	Data     []byte
	Size     int64
	Method   string
	Attempts int
}

type Capturer struct {
	listener Listener
	methods  []Method
	fs       afero.Fs
	opts     Options
	log      *slog.Logger
}

func NewCapturer(l Listener, methods []Method, fs afero.Fs, opts Options, log *slog.Logger) *Capturer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.FallbackAttempts < 1 {
		opts.FallbackAttempts = 1
	}

	return &Capturer{
		listener: l,
		methods:  methods,
		fs:       fs,
		opts:     opts,
		log:      log,
	}
}

// Capture records one utterance into path. The primary listener is tried
// first; once its retries are spent the fallback methods run in order and the
// first one that leaves a valid artifact wins.
func (c *Capturer) Capture(ctx context.Context, p Profile, path string) (*Result, error) {
	attempts := 0

	primary := RetryPolicy{
		MaxAttempts: c.opts.Retries,
		Backoff:     c.opts.DeviceBackoff,
		Retryable: func(err error) bool {
			return errors.Is(err, ErrCaptureTimeout) ||
				errors.Is(err, ErrCaptureDevice) ||
				errors.Is(err, ErrInvalidArtifact)
		},
		BackoffOn: func(err error) bool {
			return errors.Is(err, ErrCaptureDevice)
		},
	}

	err := primary.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		err := c.listenOnce(ctx, p, path)
		if err != nil {
			c.logFailure(p, attempt, err)
		}
		return err
	})
	if err == nil {
		return c.result(path, MethodPrimary, attempts)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if !c.opts.Fallback || !p.Fallback || len(c.methods) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrCaptureExhausted, err)
	}

	c.log.Warn("Primary capture exhausted, trying fallbacks", "attempts", attempts, "err", err)

	for _, m := range c.methods {
		stage := RetryPolicy{MaxAttempts: c.opts.FallbackAttempts}

		serr := stage.Do(ctx, func(ctx context.Context, attempt int) error {
			attempts++
			_ = c.fs.Remove(path)

			if err := m.Record(ctx, path); err != nil {
				return fmt.Errorf("%s: %w", m.Name(), err)
			}
			return c.validate(path)
		})
		if serr == nil {
			c.log.Info("Captured via fallback", "method", m.Name())
			return c.result(path, m.Name(), attempts)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.log.Warn("Fallback capture failed", "method", m.Name(), "err", serr)
		err = serr
	}

	_ = c.fs.Remove(path)

	return nil, fmt.Errorf("%w: %w", ErrCaptureExhausted, err)
}

func (c *Capturer) listenOnce(ctx context.Context, p Profile, path string) error {
	if c.listener == nil {
		return fmt.Errorf("%w: no listener", ErrCaptureDevice)
	}

	threshold := p.EnergyThreshold
	if p.DynamicEnergy && p.CalibrationDuration > 0 {
		t, err := c.listener.Calibrate(ctx, p.CalibrationDuration)
		switch {
		case err != nil:
			c.log.Debug("Calibration failed, using static threshold", "err", err)
		case t > 0:
			threshold = t
		}
	}

	pcm, err := c.listener.Listen(ctx, p, threshold)
	if err != nil {
		return err
	}

	if err := writeWAV(c.fs, path, pcm, c.opts.SampleRate); err != nil {
		return err
	}

	return c.validate(path)
}

func (c *Capturer) validate(path string) error {
	fi, err := c.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if fi.Size() <= c.opts.MinArtifactBytes {
		return fmt.Errorf("%w: %s is %d bytes", ErrInvalidArtifact, path, fi.Size())
	}
	return nil
}

func (c *Capturer) result(path, method string, attempts int) (*Result, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	return &Result{
		Path:     path,
		Data:     data,
		Size:     int64(len(data)),
		Method:   method,
		Attempts: attempts,
	}, nil
}

func (c *Capturer) logFailure(p Profile, attempt int, err error) {
	switch {
	case errors.Is(err, ErrCaptureTimeout) && p.Kind == KindWake:
		// nobody spoke, the normal case while sleeping
		c.log.Debug("No speech before timeout", "profile", p.Kind, "attempt", attempt)
	case errors.Is(err, ErrCaptureTimeout):
		c.log.Warn("No speech before timeout", "profile", p.Kind, "attempt", attempt)
	default:
		c.log.Warn("Capture attempt failed", "profile", p.Kind, "attempt", attempt, "err", err)
	}
}
