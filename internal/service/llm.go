package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/memelab/memeforge/internal/config"
)

// ChatService is a client for OpenAI-compatible chat completion endpoints.
// All text-model providers (OpenAI, Groq, Cerebras, Perplexity, Gemini's
// compatibility endpoint) are reached through the same request shape.
type ChatService struct {
	client      *resty.Client
	model       string
	endpoint    string
	temperature float32
}

// ChatConfig holds configuration for a chat completion client.
type ChatConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// NewChatService creates a new chat completion client.
// Parameters:
//   - cfg: chat configuration including model, API key, and base URL.
//
// Returns:
//   - *ChatService: initialized chat client wrapper.
func NewChatService(cfg *ChatConfig) *ChatService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Set timeout to prevent hanging requests
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	endpoint := baseURL + "/chat/completions"

	return &ChatService{
		client:      client,
		model:       cfg.Model,
		endpoint:    endpoint,
		temperature: cfg.Temperature,
	}
}

// NewChatServiceForModel creates a chat client for a model name, resolving
// the provider API key and base URL from the LLM configuration.
// Parameters:
//   - llm: LLM configuration holding per-provider keys.
//   - model: model name to route (e.g. "gpt-4o-mini", "llama-3.3-70b").
//
// Returns:
//   - *ChatService: initialized chat client for the resolved provider.
//   - error: non-nil if no API key is configured for the model's provider.
func NewChatServiceForModel(llm *config.LLMConfig, model string) (*ChatService, error) {
	apiKey, err := llm.APIKey(model)
	if err != nil {
		return nil, err
	}

	return NewChatService(&ChatConfig{
		Model:       model,
		APIKey:      apiKey,
		BaseURL:     llm.BaseURL(model),
		Temperature: llm.Temperature,
	}), nil
}

// GetModel returns the model name being used.
func (s *ChatService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user prompt pair and returns the raw completion text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - system: system prompt.
//   - user: user prompt.
//   - maxTokens: completion token cap (0 omits the field).
//
// Returns:
//   - string: completion text.
//   - error: non-nil if the API request fails or returns no choices.
func (s *ChatService) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: s.temperature,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call LLM API: %w", err)
	}

	// Check HTTP status code
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		// Try to get error message from response body
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else {
			// Include response body for debugging
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("LLM API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("LLM API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		errorMsg := fmt.Sprintf("no choices in response (status: %d)", httpResp.StatusCode())
		if len(httpResp.Body()) > 0 {
			errorMsg += fmt.Sprintf(", response body: %s", string(httpResp.Body()))
		}
		return "", fmt.Errorf("no response from LLM API: %s", errorMsg)
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON sends a prompt pair and unmarshals the completion's JSON
// payload into out. Reasoning-model pre-ambles (<think> blocks) and markdown
// fences around the JSON are tolerated.
func (s *ChatService) CompleteJSON(ctx context.Context, system, user string, maxTokens int, out interface{}) error {
	content, err := s.Complete(ctx, system, user, maxTokens)
	if err != nil {
		return err
	}

	jsonStr, err := extractJSON(content)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// extractJSON pulls the first JSON object or array out of LLM output.
// Strips a leading <think>...</think> block, then brace-matches from the
// first opening delimiter.
func extractJSON(content string) (string, error) {
	// Drop thinking pre-amble
	if start := strings.Index(content, "<think>"); start != -1 {
		if end := strings.Index(content, "</think>"); end != -1 {
			content = content[end+len("</think>"):]
		}
	}

	// Find JSON start: object or array, whichever comes first
	objStart := strings.Index(content, "{")
	arrStart := strings.Index(content, "[")

	jsonStart := objStart
	open, close := byte('{'), byte('}')
	if jsonStart == -1 || (arrStart != -1 && arrStart < jsonStart) {
		jsonStart = arrStart
		open, close = '[', ']'
	}
	if jsonStart == -1 {
		return "", fmt.Errorf("no JSON found in response")
	}

	// Find matching closing delimiter
	depth := 0
	jsonEnd := -1
	inString := false
	escaped := false
findJSON:
	for i := jsonStart; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				jsonEnd = i + 1
				break findJSON
			}
		}
	}

	if jsonEnd == -1 {
		return "", fmt.Errorf("incomplete JSON in response")
	}

	return content[jsonStart:jsonEnd], nil
}
