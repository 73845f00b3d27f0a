package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"chat-ai-orchestrator/internal/domain/model"
)

const defaultAnthropicMaxTokens = 4096

// buildRequest assembles the flavor-specific streaming chat request.
func buildRequest(ctx context.Context, flavor, endpoint, modelID, apiKey string, history []model.Message, cfg model.SessionConfig) (*http.Request, error) {
	var body any
	switch flavor {
	case FlavorOpenAI:
		body = struct {
			Model       string          `json:"model"`
			Messages    []model.Message `json:"messages"`
			Temperature float64         `json:"temperature"`
			Stream      bool            `json:"stream"`
		}{modelID, history, cfg.Temperature, true}

	case FlavorAnthropic:
		// Anthropic-style APIs reject system-role messages in the list;
		// the system prompt travels in a dedicated field.
		messages, system := splitSystem(history)
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultAnthropicMaxTokens
		}
		body = struct {
			Model       string          `json:"model"`
			Messages    []model.Message `json:"messages"`
			System      string          `json:"system,omitempty"`
			MaxTokens   int             `json:"max_tokens"`
			Temperature float64         `json:"temperature"`
			Stream      bool            `json:"stream"`
		}{modelID, messages, system, maxTokens, cfg.Temperature, true}

	default: // FlavorOllama
		body = struct {
			Model    string          `json:"model"`
			Messages []model.Message `json:"messages"`
			Stream   bool            `json:"stream"`
		}{modelID, history, true}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+chatPath(flavor), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch flavor {
	case FlavorOpenAI:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	case FlavorAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	}
	return req, nil
}

// splitSystem strips system-role messages out of history, returning the
// remaining messages and the joined system text.
func splitSystem(history []model.Message) ([]model.Message, string) {
	messages := make([]model.Message, 0, len(history))
	var system []string
	for _, m := range history {
		if m.Role == model.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}
	return messages, strings.Join(system, "\n")
}
