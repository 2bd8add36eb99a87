package respond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windy/internal/config"
	"windy/internal/oai"
	"windy/internal/session"
)

type fakeBackend struct {
	name  string
	reply string
	err   error
	seen  []session.Turn
	calls int
}

func (f *fakeBackend) Name() string     { return f.name }
func (f *fakeBackend) Available() error { return nil }

func (f *fakeBackend) Complete(ctx context.Context, turns []session.Turn) (string, error) {
	f.calls++
	f.seen = turns
	return f.reply, f.err
}

func conversation() []session.Turn {
	return []session.Turn{
		{Role: session.RoleSystem, Content: "sys"},
		{Role: session.RoleUser, Content: "u1"},
		{Role: session.RoleAssistant, Content: "a1"},
		{Role: session.RoleUser, Content: "u2"},
	}
}

func TestRespondPrimary(t *testing.T) {
	p := &fakeBackend{name: "groq", reply: " Sure thing. "}
	f := &fakeBackend{name: "ollama", reply: "unused"}

	r := New(p, f, 0, time.Second, nil)

	assert.Equal(t, "Sure thing.", r.Respond(context.Background(), conversation()))
	assert.Zero(t, f.calls)
	assert.Len(t, p.seen, 4)
}

func TestRespondFallsBack(t *testing.T) {
	p := &fakeBackend{name: "openai", err: errors.New("503")}
	f := &fakeBackend{name: "ollama", reply: "Local answer."}

	r := New(p, f, 0, 0, nil)
	assert.Equal(t, "Local answer.", r.Respond(context.Background(), conversation()))
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 1, f.calls)
}

func TestRespondEmptyReplyFallsBack(t *testing.T) {
	p := &fakeBackend{name: "openai", reply: "   "}
	f := &fakeBackend{name: "ollama", reply: "Local answer."}

	r := New(p, f, 0, 0, nil)
	assert.Equal(t, "Local answer.", r.Respond(context.Background(), conversation()))
}

func TestRespondApologyOnTotalFailure(t *testing.T) {
	p := &fakeBackend{name: "openai", err: errors.New("down")}
	f := &fakeBackend{name: "ollama", err: errors.New("also down")}

	assert.Equal(t, Apology, New(p, f, 0, 0, nil).Respond(context.Background(), conversation()))
	assert.Equal(t, Apology, New(nil, nil, 0, 0, nil).Respond(context.Background(), conversation()))
}

func TestRespondSameFallbackNotRetried(t *testing.T) {
	p := &fakeBackend{name: "ollama", err: errors.New("down")}

	assert.Equal(t, Apology, New(p, p, 0, 0, nil).Respond(context.Background(), conversation()))
	assert.Equal(t, 1, p.calls)
}

func TestRespondHistoryWindow(t *testing.T) {
	p := &fakeBackend{name: "groq", reply: "ok"}

	New(p, nil, 1, 0, nil).Respond(context.Background(), conversation())

	require.Len(t, p.seen, 2)
	assert.Equal(t, session.RoleSystem, p.seen[0].Role)
	assert.Equal(t, "u2", p.seen[1].Content)
}

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, reply string, got *chatRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
}

func TestChatComplete(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, "It is sunny.", &got)
	defer srv.Close()

	c := NewChat("ollama", oai.NewClient(srv.URL+"/v1/", "", srv.Client()), "phi3.5", 100, 0.7)

	reply, err := c.Complete(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", reply)

	assert.Equal(t, "phi3.5", got.Model)
	assert.Equal(t, int64(100), got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "u2", got.Messages[3].Content)
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewChat("ollama", oai.NewClient(srv.URL+"/v1/", "", srv.Client()), "m", 0, 0)
	_, err := c.Complete(context.Background(), conversation())
	assert.Error(t, err)
}

func TestFromConfigFallsBackWhenPrimaryUnavailable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	var got chatRequest
	srv := chatServer(t, "From ollama.", &got)
	defer srv.Close()

	cfg := config.ResponseConfig{
		Backend:  "openai",
		Fallback: "ollama",
		OpenAI:   config.ChatBackendConfig{BaseURL: srv.URL + "/v1/", Model: "gpt"},
		Ollama:   config.ChatBackendConfig{BaseURL: srv.URL + "/v1/", Model: "local"},
	}

	r, err := FromConfig(cfg, srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, "From ollama.", r.Respond(context.Background(), conversation()))
	assert.Equal(t, "local", got.Model)
}

func TestFromConfigNothingAvailable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")

	_, err := FromConfig(config.ResponseConfig{Backend: "openai", Fallback: "groq"}, nil, nil)
	assert.Error(t, err)
}
