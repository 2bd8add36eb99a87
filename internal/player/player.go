package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/spf13/afero"

	"windy/internal/config"
)

const outputRate beep.SampleRate = 44100

var ErrUnknownFormat = errors.New("unknown audio format")

// Player plays synthesized WAV or MP3 files on the default output device.
type Player struct {
	fs     afero.Fs
	ducker *Ducker
	log    *slog.Logger

	once    sync.Once
	initErr error
	mu      sync.Mutex
}

func New(fs afero.Fs, ducker *Ducker, log *slog.Logger) *Player {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Player{fs: fs, ducker: ducker, log: log}
}

// FromConfig builds a Player, with ducking of other streams when enabled.
func FromConfig(cfg config.PlayerConfig, log *slog.Logger) *Player {
	var d *Ducker
	if cfg.Duck {
		d = NewDucker(Pactl{}, cfg.SelfNames, cfg.DuckFactor, cfg.DuckMinVolume, cfg.DuckFade)
	}
	return New(nil, d, log)
}

// Play blocks until the file has been played or ctx is done.
func (p *Player) Play(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	streamer, format, err := p.open(path)
	if err != nil {
		return err
	}
	defer streamer.Close()

	p.once.Do(func() {
		p.initErr = speaker.Init(outputRate, outputRate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("init speaker: %w", p.initErr)
	}

	if p.ducker != nil {
		if err := p.ducker.Duck(ctx); err != nil {
			p.log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := p.ducker.Restore(context.WithoutCancel(ctx)); err != nil {
				p.log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	var s beep.Streamer = streamer
	if format.SampleRate != outputRate {
		s = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (p *Player) open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open %s: %w", path, err)
	}

	head := make([]byte, 12)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("rewind %s: %w", path, err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch detectFormat(head[:n]) {
	case "wav":
		s, format, err = wav.Decode(f)
	case "mp3":
		s, format, err = mp3.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return s, format, nil
}

// detectFormat sniffs the container from the first bytes of a file.
func detectFormat(head []byte) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav"
	case bytes.HasPrefix(head, []byte("ID3")):
		return "mp3"
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return ""
	}
}
