package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	openai "github.com/openai/openai-go/v3"
	"github.com/spf13/afero"

	"windy/internal/backend"
	"windy/internal/config"
	"windy/internal/oai"
	"windy/pkg/stt"
)

// Whisper runs whisper.cpp locally. The model is loaded on first use.
type Whisper struct {
	modelPath string
	opt       stt.Options

	mu sync.Mutex
	w  *stt.Whisper
}

func NewWhisper(cfg config.WhisperConfig) *Whisper {
	return &Whisper{
		modelPath: cfg.ModelPath,
		opt: stt.Options{
			Language: cfg.Language,
			Threads:  cfg.Threads,
		},
	}
}

func (e *Whisper) Name() string { return "whisper" }

func (e *Whisper) Available() error {
	return backend.RequireFile(e.modelPath)
}

func (e *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	e.mu.Lock()
	if e.w == nil {
		w, err := stt.NewWhisper(e.modelPath, e.opt)
		if err != nil {
			e.mu.Unlock()
			return "", err
		}
		e.w = w
	}
	w := e.w
	e.mu.Unlock()

	res, err := w.TranscribeFile(ctx, path)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (e *Whisper) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.w == nil {
		return nil
	}
	err := e.w.Close()
	e.w = nil
	return err
}

// Remote uploads the artifact to an OpenAI-compatible transcription
// endpoint.
type Remote struct {
	name     string
	client   openai.Client
	model    string
	language string
	fs       afero.Fs
}

func NewRemote(name string, client openai.Client, cfg config.RemoteSTTConfig, fs afero.Fs) *Remote {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Remote{
		name:     name,
		client:   client,
		model:    cfg.Model,
		language: cfg.Language,
		fs:       fs,
	}
}

func (e *Remote) Name() string { return e.name }

func (e *Remote) Available() error {
	if env := oai.KeyEnv(e.name); env != "" {
		return backend.RequireEnv(env)
	}
	return nil
}

func (e *Remote) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, filepath.Base(path), "audio/wav"),
		Model: openai.AudioModel(e.model),
	}
	if e.language != "" {
		params.Language = openai.String(e.language)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s transcription: %w", e.name, err)
	}

	return resp.Text, nil
}

// FromConfig resolves the configured engine order. Engines that cannot run
// here are skipped with a warning. The returned closer releases local models.
func FromConfig(cfg config.TranscriptionConfig, hc *http.Client, log *slog.Logger) (*Chain, func() error) {
	reg := backend.NewRegistry[Engine]("transcription")

	whisper := NewWhisper(cfg.Whisper)
	reg.Register(whisper)
	reg.Register(NewRemote("openai", oai.ClientFor("openai", oai.OpenAIBaseURL, hc), cfg.OpenAI, nil))
	reg.Register(NewRemote("groq", oai.ClientFor("groq", oai.GroqBaseURL, hc), cfg.Groq, nil))

	return NewChain(reg.ResolveChain(cfg.Engines, log), cfg.Timeout, log), whisper.Close
}
