package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// DefaultOllamaModel is the vision model used when none is configured.
const DefaultOllamaModel = "llava"

const ollamaPrompt = "Read the text shown on this display. Reply with exactly the characters " +
	"you see, including digits, decimal point, sign and unit. Do not add anything else."

// chatter is the part of *api.Client used by Ollama.
type chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
	Version(ctx context.Context) (string, error)
}

// Ollama recognizes text by asking a vision model served by Ollama.
type Ollama struct {
	client chatter
	model  string
	base   string
}

// NewOllama creates an engine talking to the Ollama server at baseURL
// (for example http://localhost:11434). Any path on baseURL is ignored.
func NewOllama(baseURL, model string) (*Ollama, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", baseURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
		base:   base.String(),
	}, nil
}

// Name implements Engine.
func (o *Ollama) Name() string { return "ollama" }

// Recognize implements Engine. The language is not used.
func (o *Ollama) Recognize(ctx context.Context, img *imaging.Buffer, _ string) (string, error) {
	if img.Empty() {
		return "", imaging.ErrEmptyBuffer
	}
	data, err := img.EncodePNG()
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: ollamaPrompt,
				Images:  []api.ImageData{api.ImageData(data)},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": 0},
	}

	var sb strings.Builder
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("empty response from ollama")
	}
	return text, nil
}

// Info reports the server version, or the error reaching it.
func (o *Ollama) Info(ctx context.Context) Info {
	info := Info{Engine: o.Name(), Model: o.model}
	version, err := o.client.Version(ctx)
	if err != nil {
		info.Error = fmt.Sprintf("%s: %v", o.base, err)
		return info
	}
	info.Available = true
	info.Version = version
	return info
}
