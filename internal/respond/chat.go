package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/openai/openai-go/v3"

	"windy/internal/backend"
	"windy/internal/config"
	"windy/internal/oai"
	"windy/internal/session"
)

// Chat talks to any OpenAI-compatible chat completions endpoint.
type Chat struct {
	name        string
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func NewChat(name string, client openai.Client, model string, maxTokens int64, temperature float64) *Chat {
	return &Chat{
		name:        name,
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (c *Chat) Name() string { return c.name }

func (c *Chat) Available() error {
	if env := oai.KeyEnv(c.name); env != "" {
		return backend.RequireEnv(env)
	}
	return nil
}

func (c *Chat) Complete(ctx context.Context, turns []session.Turn) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case session.RoleUser:
			msgs = append(msgs, openai.UserMessage(t.Content))
		case session.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

// FromConfig resolves the configured backend and its fallback. If the chosen
// backend cannot run here the fallback takes its place.
func FromConfig(cfg config.ResponseConfig, hc *http.Client, log *slog.Logger) (*Responder, error) {
	if log == nil {
		log = slog.Default()
	}

	reg := backend.NewRegistry[Backend]("response")
	for name, bc := range map[string]config.ChatBackendConfig{
		"openai": cfg.OpenAI,
		"groq":   cfg.Groq,
		"ollama": cfg.Ollama,
	} {
		reg.Register(NewChat(name, oai.ClientFor(name, bc.BaseURL, hc), bc.Model, cfg.MaxTokens, cfg.Temperature))
	}

	primary, perr := reg.Resolve(cfg.Backend)
	fallback, ferr := reg.Resolve(cfg.Fallback)

	switch {
	case perr != nil && ferr != nil:
		return nil, errors.Join(perr, ferr)
	case perr != nil:
		log.Warn("Response backend unavailable, using fallback", "backend", cfg.Backend, "fallback", cfg.Fallback, "err", perr)
		primary, fallback = fallback, nil
	case ferr != nil:
		log.Warn("Response fallback unavailable", "fallback", cfg.Fallback, "err", ferr)
		fallback = nil
	}

	return New(primary, fallback, cfg.MaxHistory, cfg.Timeout, log), nil
}
