package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// GeminiChatAdapter implements ports.ChatService using Google's Gemini API.
type GeminiChatAdapter struct {
	client *genai.Client
	model  string
}

// GeminiConfig configures a GeminiChatAdapter. BaseURL is only needed to
// point the client at a proxy or a test server.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NewGeminiChatAdapter creates a Gemini chat adapter.
func NewGeminiChatAdapter(ctx context.Context, cfg GeminiConfig) (*GeminiChatAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiChatAdapter{client: client, model: cfg.Model}, nil
}

// Chat sends the conversation and returns the model's reply. System messages
// become the system instruction; assistant turns are sent with the model role.
func (a *GeminiChatAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case entities.RoleSystem:
			system = append(system, m.Content)
		case entities.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", errors.New("no user message to send")
	}

	var config *genai.GenerateContentConfig
	if len(system) > 0 {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(strings.Join(system, "\n\n"))}},
		}
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("calling Gemini: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("Gemini returned an empty response")
	}
	return text, nil
}
