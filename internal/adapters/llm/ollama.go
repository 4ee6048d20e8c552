// Package llm provides language-model chat adapters.
// Clean Architecture: Adapters implementing ports.ChatService.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// DefaultTimeout bounds a single chat call.
const DefaultTimeout = 60 * time.Second

// OllamaChatAdapter implements ports.ChatService using the Ollama chat API.
type OllamaChatAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaChatAdapter creates a new Ollama chat adapter.
func NewOllamaChatAdapter(baseURL, model string, timeout time.Duration) *OllamaChatAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaChatAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// ollamaChatRequest is the Ollama chat API request.
type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []entities.ChatMessage `json:"messages"`
	Stream   bool                   `json:"stream"`
}

// ollamaChatResponse is the Ollama chat API response.
type ollamaChatResponse struct {
	Message entities.ChatMessage `json:"message"`
	Done    bool                 `json:"done"`
	Error   string               `json:"error,omitempty"`
}

// Chat sends the conversation and returns the assistant's reply.
func (a *OllamaChatAdapter) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    a.model,
		Messages: messages,
		Stream:   false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("Ollama error: %s", chatResp.Error)
	}

	return chatResp.Message.Content, nil
}
