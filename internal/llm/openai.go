package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default values for the OpenAI provider.
const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultOpenAIModel     = "gpt-4-turbo"
	defaultOpenAIMaxTokens = 4096
)

// chatRequest represents the OpenAI Chat Completions API request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat specifies the output format for the API response.
type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents the OpenAI Chat Completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage contains token usage information.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openAIErrorResponse represents an error response from the OpenAI API.
type openAIErrorResponse struct {
	Error openAIErrorDetail `json:"error"`
}

// openAIErrorDetail contains error details from the OpenAI API.
type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAIProvider implements TextGenerator using the OpenAI Chat Completions API.
type OpenAIProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
}

// OpenAIConfig holds the parameters needed to create an OpenAI provider.
// This is defined in the llm package to avoid importing the config package.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model identifier (e.g., "gpt-4-turbo").
	Model string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
}

// NewOpenAIProvider creates a new OpenAI text generation provider.
//
// The provider performs a single API attempt per Generate call. Retry
// behavior is left to the caller so that attempts can be coordinated with
// rate limiting and error classification in one place.
func NewOpenAIProvider(cfg OpenAIConfig, temperature float64, timeout time.Duration) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: temperature,
	}
}

// Generate performs a single call to the Chat Completions API and returns the
// generated text. API failures are returned as *APIError with the HTTP status
// code preserved for classification.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOpenAIMaxTokens
	}

	chatReq := chatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   maxTokens,
	}
	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, chatMessage{Role: "system", Content: req.System})
	}
	chatReq.Messages = append(chatReq.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSONOutput {
		chatReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	return p.doRequest(ctx, chatReq)
}

// Provider returns the name of the LLM provider.
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Model returns the model identifier being used.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// doRequest performs a single API request to the OpenAI Chat Completions endpoint.
func (p *OpenAIProvider) doRequest(ctx context.Context, chatReq chatRequest) (*GenerateResult, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Network errors carry StatusCode 0 so callers classify them as transient.
		return nil, &APIError{
			Provider:   "openai",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider:   "openai",
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseOpenAIAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("openai: failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	model := chatResp.Model
	if model == "" {
		model = p.model
	}

	return &GenerateResult{
		Text:         chatResp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// parseOpenAIAPIError parses an OpenAI API error from the response status code and body.
func parseOpenAIAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "openai",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}
