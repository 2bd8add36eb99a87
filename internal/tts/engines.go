package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/spf13/afero"

	"windy/internal/backend"
	"windy/internal/config"
	"windy/internal/oai"
)

// Runner runs a program, feeding stdin when it is not empty.
type Runner func(ctx context.Context, stdin, name string, args ...string) error

func execRunner(ctx context.Context, stdin, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Piper is the neural local engine. Text goes in on stdin.
type Piper struct {
	Executable string
	ModelPath  string
	Run        Runner
}

func (p *Piper) Name() string { return "piper" }
func (p *Piper) Ext() string  { return ".wav" }

func (p *Piper) Available() error {
	if err := backend.RequireExecutable(p.Executable); err != nil {
		return err
	}
	return backend.RequireFile(p.ModelPath)
}

func (p *Piper) Synthesize(ctx context.Context, text, path string) error {
	run := p.Run
	if run == nil {
		run = execRunner
	}
	return run(ctx, text, p.Executable, "-m", p.ModelPath, "-f", path)
}

// Espeak is the always-there local engine.
type Espeak struct {
	Executable string
	Voice      string
	Run        Runner
}

func (e *Espeak) Name() string { return "espeak" }
func (e *Espeak) Ext() string  { return ".wav" }

func (e *Espeak) Available() error {
	return backend.RequireExecutable(e.Executable)
}

func (e *Espeak) Synthesize(ctx context.Context, text, path string) error {
	run := e.Run
	if run == nil {
		run = execRunner
	}

	args := []string{"-w", path}
	if e.Voice != "" {
		args = append(args, "-v", e.Voice)
	}
	// "--" keeps a reply starting with a dash from being read as a flag
	args = append(args, "--", text)

	return run(ctx, "", e.Executable, args...)
}

// OpenAISpeech renders MP3 through the OpenAI speech endpoint.
type OpenAISpeech struct {
	client openai.Client
	model  string
	voice  string
	fs     afero.Fs
}

func NewOpenAISpeech(client openai.Client, cfg config.OpenAITTSConfig, fs afero.Fs) *OpenAISpeech {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &OpenAISpeech{client: client, model: cfg.Model, voice: cfg.Voice, fs: fs}
}

func (o *OpenAISpeech) Name() string { return "openai" }
func (o *OpenAISpeech) Ext() string  { return ".mp3" }

func (o *OpenAISpeech) Available() error {
	return backend.RequireEnv(oai.KeyEnv("openai"))
}

func (o *OpenAISpeech) Synthesize(ctx context.Context, text, path string) error {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.model),
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	f, err := o.fs.Create(path)
	if err != nil {
		return err
	}

	_, cerr := io.Copy(f, resp.Body)
	if err := errors.Join(cerr, f.Close()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// FromConfig resolves the configured engine and the local engine it
// cascades to.
func FromConfig(cfg config.SpeechConfig, hc *http.Client, log *slog.Logger) (*Cascade, error) {
	if log == nil {
		log = slog.Default()
	}

	reg := backend.NewRegistry[Engine]("speech")
	reg.Register(&Piper{Executable: cfg.Piper.Executable, ModelPath: cfg.Piper.ModelPath})
	reg.Register(&Espeak{Executable: cfg.Espeak.Executable, Voice: cfg.Espeak.Voice})
	reg.Register(NewOpenAISpeech(oai.ClientFor("openai", oai.OpenAIBaseURL, hc), cfg.OpenAI, nil))

	primary, perr := reg.Resolve(cfg.Engine)
	local, lerr := reg.Resolve(cfg.Local)

	switch {
	case perr != nil && lerr != nil:
		return nil, errors.Join(perr, lerr)
	case perr != nil:
		log.Warn("Speech engine unavailable, using local engine", "engine", cfg.Engine, "local", cfg.Local, "err", perr)
		primary = nil
	case lerr != nil:
		log.Warn("Local speech engine unavailable", "local", cfg.Local, "err", lerr)
		local = nil
	}

	return NewCascade(primary, local, nil, cfg.Timeout, log), nil
}
