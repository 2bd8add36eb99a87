package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Recorder is the primary capture mechanism: the default portaudio input
// device, mono 16-bit.
type Recorder struct {
	sampleRate int
	frameSize  int
	log        *slog.Logger
}

func NewRecorder(sampleRate, frameSize int, log *slog.Logger) *Recorder {
	if frameSize <= 0 {
		frameSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sampleRate: sampleRate, frameSize: frameSize, log: log}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func (r *Recorder) frameDuration() time.Duration {
	return time.Duration(r.frameSize) * time.Second / time.Duration(r.sampleRate)
}

// Calibrate samples ambient noise for d and returns a speech threshold.
func (r *Recorder) Calibrate(ctx context.Context, d time.Duration) (float64, error) {
	buf := make([]int16, r.frameSize)

	stream, err := r.open(buf)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	defer stream.Stop()

	frames := int(d / r.frameDuration())
	if frames < 1 {
		frames = 1
	}

	energies := make([]float64, 0, frames)
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := r.read(stream); err != nil {
			return 0, err
		}
		energies = append(energies, frameRMS(buf))
	}

	return ambientThreshold(energies), nil
}

// Listen blocks until one phrase is captured or the profile timeout passes.
func (r *Recorder) Listen(ctx context.Context, p Profile, threshold float64) ([]int16, error) {
	buf := make([]int16, r.frameSize)

	stream, err := r.open(buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	defer stream.Stop()

	seg := newSegmenter(p, threshold, r.frameDuration())

	r.log.Debug("Listening", "profile", p.Kind, "threshold", seg.threshold)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := r.read(stream); err != nil {
			return nil, err
		}

		done, err := seg.feed(buf)
		if err != nil {
			return nil, err
		}
		if done {
			return append([]int16(nil), seg.samples()...), nil
		}
	}
}

func (r *Recorder) open(buf []int16) (*portaudio.Stream, error) {
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %w", ErrCaptureDevice, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %w", ErrCaptureDevice, err)
	}

	return stream, nil
}

func (r *Recorder) read(stream *portaudio.Stream) error {
	err := stream.Read()
	if err == nil {
		return nil
	}

	// a dropped buffer is not worth failing the phrase over
	if errors.Is(err, portaudio.InputOverflowed) {
		r.log.Debug("Input overflowed")
		return nil
	}

	return fmt.Errorf("%w: read input stream: %w", ErrCaptureDevice, err)
}
