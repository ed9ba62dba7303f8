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

const (
	// anthropicAPIVersion is the Anthropic API version header value.
	anthropicAPIVersion = "2023-06-01"

	// defaultAnthropicBaseURL is the default Anthropic API base URL.
	defaultAnthropicBaseURL = "https://api.anthropic.com"

	// defaultAnthropicModel is the default Anthropic model identifier.
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"

	// defaultAnthropicMaxTokens is the default max tokens for the Messages API response.
	defaultAnthropicMaxTokens = 4096
)

// messagesRequest is the request body for the Anthropic Messages API.
type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

// anthropicMessage represents a single message in the Anthropic Messages API.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// contentBlock represents a content block in the Anthropic Messages API response.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesResponse is the response body from the Anthropic Messages API.
type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

// anthropicUsage contains token usage information from the Anthropic API.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicAPIErrorDetail represents the nested error object in an Anthropic API error response.
type anthropicAPIErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicErrorResponse wraps the error payload from the Anthropic API.
type anthropicErrorResponse struct {
	Type  string                  `json:"type"`
	Error anthropicAPIErrorDetail `json:"error"`
}

// AnthropicProvider implements TextGenerator using the Anthropic Messages API.
type AnthropicProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
}

// AnthropicConfig holds the parameters needed to create an Anthropic provider.
// This is defined in the llm package to avoid importing the config package.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string
	// Model is the model identifier.
	Model string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
}

// NewAnthropicProvider creates a new Anthropic text generation provider.
// The timeout parameter controls the HTTP client timeout for API calls.
// Each Generate call performs exactly one API attempt.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, timeout time.Duration) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &AnthropicProvider{
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

// Generate performs a single call to the Anthropic Messages API and returns
// the text of the first text content block.
//
// The Messages API has no enforced JSON output mode; when req.JSONOutput is
// set the instruction is appended to the system prompt instead.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	system := req.System
	if req.JSONOutput {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single valid JSON object and nothing else."
	}

	apiReq := messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: req.Prompt,
			},
		},
		Temperature: p.temperature,
	}

	resp, err := p.sendRequest(ctx, apiReq)
	if err != nil {
		return nil, err
	}

	return p.parseResponse(resp)
}

// Provider returns the provider name.
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Model returns the model identifier being used.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// sendRequest sends a single request to the Anthropic Messages API and returns
// the parsed response or an error.
func (p *AnthropicProvider) sendRequest(ctx context.Context, apiReq messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	endpoint := p.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Network errors carry StatusCode 0 so callers classify them as transient.
		return nil, &APIError{
			Provider:   "anthropic",
			StatusCode: 0,
			Message:    fmt.Sprintf("request failed: %v", err),
			Type:       "network_error",
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{
			Provider:   "anthropic",
			StatusCode: 0,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			Type:       "network_error",
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAnthropicAPIError(httpResp.StatusCode, respBody)
	}

	var resp messagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// parseResponse extracts the generated text from the first text content block
// of the Anthropic API response.
func (p *AnthropicProvider) parseResponse(resp *messagesResponse) (*GenerateResult, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: response contains no content blocks")
	}

	var textContent string
	for _, block := range resp.Content {
		if block.Type == "text" {
			textContent = block.Text
			break
		}
	}

	if textContent == "" {
		return nil, fmt.Errorf("anthropic: response contains no text content blocks")
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}

	return &GenerateResult{
		Text:         textContent,
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// parseAnthropicAPIError parses an Anthropic API error from the response status code and body.
func parseAnthropicAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "anthropic",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
	}

	return apiErr
}
