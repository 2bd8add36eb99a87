// Package oai builds clients for OpenAI-compatible endpoints (OpenAI, Groq,
// Ollama).
package oai

import (
	"net/http"
	"os"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1/"
	GroqBaseURL   = "https://api.groq.com/openai/v1/"
	OllamaBaseURL = "http://localhost:11434/v1/"
)

// KeyEnv maps a provider to the variable holding its token. Ollama needs
// none.
func KeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// NewClient returns a client for baseURL. The SDK retries are disabled, the
// callers have their own fallback chains.
func NewClient(baseURL, apiKey string, hc *http.Client) openai.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if apiKey == "" {
		// local servers ignore the key but the SDK wants one
		apiKey = "unused"
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	if hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}

	return openai.NewClient(opts...)
}

// ClientFor builds a client for a named provider, reading its key from the
// environment.
func ClientFor(provider, baseURL string, hc *http.Client) openai.Client {
	var key string
	if env := KeyEnv(provider); env != "" {
		key = os.Getenv(env)
	}
	return NewClient(baseURL, key, hc)
}
