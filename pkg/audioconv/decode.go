// Package audioconv decodes audio artifacts into the mono 16 kHz float PCM
// that speech recognizers expect.
package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/pekim/opus"
	"github.com/spf13/afero"
)

// TargetRate is the sample rate of every decoded buffer.
const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
)

type Options struct {
	// MaxSamples truncates the output; 0 keeps everything.
	MaxSamples int
}

// DecodeFile decodes path from fs. The container is sniffed from the
// content, the extension only breaks ties.
func DecodeFile(fs afero.Fs, path string, opt Options) ([]float32, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, filepath.Ext(path), opt)
}

// Decode reads a whole WAV, MP3 or Ogg (Vorbis or Opus) stream.
func Decode(r io.ReadSeeker, ext string, opt Options) ([]float32, error) {
	head := make([]byte, 12)
	n, _ := io.ReadFull(r, head)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	format := Sniff(head[:n])
	if format == FormatUnknown {
		format = fromExt(ext)
	}

	var (
		pcm []float32
		err error
	)
	switch format {
	case FormatWAV:
		pcm, err = decodeWAV(r)
	case FormatMP3:
		pcm, err = decodeMP3(r)
	case FormatOgg:
		pcm, err = decodeOgg(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}

	return pcm, nil
}

// Sniff identifies a container by its magic bytes.
func Sniff(head []byte) Format {
	switch {
	case len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WAVE":
		return FormatWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

func fromExt(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav", "wave":
		return FormatWAV
	case "mp3":
		return FormatMP3
	case "ogg", "oga", "opus":
		return FormatOgg
	default:
		return FormatUnknown
	}
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav header")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	channels, rate := int(dec.NumChans), int(dec.SampleRate)
	if buf.Format != nil {
		channels, rate = buf.Format.NumChannels, buf.Format.SampleRate
	}

	return normalize(scaleInts(buf.Data, depth), channels, rate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, err
	}

	// go-mp3 always yields interleaved stereo
	return normalize(FromInt16(samples), 2, dec.SampleRate()), nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker) ([]float32, error) {
	pcm, format, verr := oggvorbis.ReadAll(r)
	if verr == nil && format != nil && format.Channels > 0 {
		return normalize(pcm, format.Channels, format.SampleRate), nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	out, oerr := decodeOpus(r)
	if oerr != nil {
		return nil, fmt.Errorf("not vorbis (%v) nor opus: %w", verr, oerr)
	}
	return out, nil
}

func decodeOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := opus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	const opusRate = 48000

	var pcm []float32
	buf := make([]int16, opusRate/2*channels)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, FromInt16(buf[:n*channels])...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return normalize(pcm, channels, opusRate), nil
}

func normalize(pcm []float32, channels, rate int) []float32 {
	if channels > 1 {
		pcm = Downmix(pcm, channels)
	}
	if rate <= 0 {
		rate = TargetRate
	}
	return Resample(pcm, rate, TargetRate)
}
