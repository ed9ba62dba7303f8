package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time check that OpenAIProvider implements TextGenerator.
var _ TextGenerator = (*OpenAIProvider)(nil)

// newOpenAITestServer creates an httptest server that responds with the given handler.
func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newOpenAITestProvider creates an OpenAIProvider configured to use the test server.
func newOpenAITestProvider(t *testing.T, serverURL string) *OpenAIProvider {
	t.Helper()
	cfg := OpenAIConfig{
		APIKey:  "test-api-key",
		Model:   "gpt-4-turbo",
		BaseURL: serverURL,
	}
	return NewOpenAIProvider(cfg, 0.3, 10*time.Second)
}

func TestOpenAIProvider_Generate(t *testing.T) {
	t.Run("successful generation returns text and metadata", func(t *testing.T) {
		var receivedReq chatRequest
		var receivedAuthHeader string
		var receivedContentType string

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			receivedAuthHeader = r.Header.Get("Authorization")
			receivedContentType = r.Header.Get("Content-Type")

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()

			err = json.Unmarshal(body, &receivedReq)
			require.NoError(t, err)

			resp := chatResponse{
				ID:    "chatcmpl-abc123",
				Model: "gpt-4-turbo",
				Choices: []chatChoice{
					{
						Index: 0,
						Message: chatMessage{
							Role:    "assistant",
							Content: "Fusion power converts light nuclei into heavier ones, releasing energy.",
						},
						FinishReason: "stop",
					},
				},
				Usage: chatUsage{
					PromptTokens:     150,
					CompletionTokens: 45,
					TotalTokens:      195,
				},
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		provider := newOpenAITestProvider(t, server.URL)
		req := GenerateRequest{
			System:    "You are a research writer.",
			Prompt:    "Explain fusion power in one sentence.",
			MaxTokens: 256,
		}

		result, err := provider.Generate(context.Background(), req)

		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, "Fusion power converts light nuclei into heavier ones, releasing energy.", result.Text)
		assert.Equal(t, "gpt-4-turbo", result.Model)
		assert.Equal(t, 150, result.InputTokens)
		assert.Equal(t, 45, result.OutputTokens)

		// Verify request was correctly formed.
		assert.Equal(t, "Bearer test-api-key", receivedAuthHeader)
		assert.Equal(t, "application/json", receivedContentType)
		assert.Equal(t, "gpt-4-turbo", receivedReq.Model)
		assert.Equal(t, float64(0.3), receivedReq.Temperature)
		assert.Equal(t, 256, receivedReq.MaxTokens)
		assert.Nil(t, receivedReq.ResponseFormat)

		require.Len(t, receivedReq.Messages, 2)
		assert.Equal(t, "system", receivedReq.Messages[0].Role)
		assert.Equal(t, "You are a research writer.", receivedReq.Messages[0].Content)
		assert.Equal(t, "user", receivedReq.Messages[1].Role)
		assert.Equal(t, "Explain fusion power in one sentence.", receivedReq.Messages[1].Content)
	})

	t.Run("JSON output requests json_object response format", func(t *testing.T) {
		var receivedReq chatRequest

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()

			err = json.Unmarshal(body, &receivedReq)
			require.NoError(t, err)

			resp := chatResponse{
				ID: "chatcmpl-json",
				Choices: []chatChoice{
					{
						Message:      chatMessage{Role: "assistant", Content: `{"queries": ["fusion reactor designs"]}`},
						FinishReason: "stop",
					},
				},
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		provider := newOpenAITestProvider(t, server.URL)
		result, err := provider.Generate(context.Background(), GenerateRequest{
			Prompt:     "Generate search queries as JSON.",
			JSONOutput: true,
		})

		require.NoError(t, err)
		assert.Equal(t, `{"queries": ["fusion reactor designs"]}`, result.Text)
		require.NotNil(t, receivedReq.ResponseFormat)
		assert.Equal(t, "json_object", receivedReq.ResponseFormat.Type)
	})

	t.Run("omits system message when empty", func(t *testing.T) {
		var receivedReq chatRequest

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()

			err = json.Unmarshal(body, &receivedReq)
			require.NoError(t, err)

			resp := chatResponse{
				Choices: []chatChoice{
					{Message: chatMessage{Role: "assistant", Content: "ok"}},
				},
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		provider := newOpenAITestProvider(t, server.URL)
		_, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "hello"})

		require.NoError(t, err)
		require.Len(t, receivedReq.Messages, 1)
		assert.Equal(t, "user", receivedReq.Messages[0].Role)
	})

	t.Run("context cancellation stops request", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			// Simulate a slow server that never responds in time.
			time.Sleep(5 * time.Second)
			w.WriteHeader(http.StatusOK)
		})

		provider := newOpenAITestProvider(t, server.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := provider.Generate(ctx, GenerateRequest{Prompt: "test"})
		require.Error(t, err)

		// Network-level failures are surfaced as transient APIErrors.
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 0, apiErr.StatusCode)
		assert.True(t, apiErr.IsTransient())
	})
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		responseBody   string
		wantErrContain string
		wantTransient  bool
	}{
		{
			name:       "401 unauthorized with structured error",
			statusCode: http.StatusUnauthorized,
			responseBody: `{
				"error": {
					"message": "Incorrect API key provided: test-a...key.",
					"type": "invalid_request_error",
					"code": "invalid_api_key"
				}
			}`,
			wantErrContain: "Incorrect API key provided",
			wantTransient:  false,
		},
		{
			name:       "400 bad request",
			statusCode: http.StatusBadRequest,
			responseBody: `{
				"error": {
					"message": "Invalid model specified.",
					"type": "invalid_request_error",
					"code": "model_not_found"
				}
			}`,
			wantErrContain: "Invalid model specified",
			wantTransient:  false,
		},
		{
			name:           "429 rate limit",
			statusCode:     http.StatusTooManyRequests,
			responseBody:   `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error", "code": "rate_limit_exceeded"}}`,
			wantErrContain: "Rate limit exceeded",
			wantTransient:  true,
		},
		{
			name:           "500 internal server error",
			statusCode:     http.StatusInternalServerError,
			responseBody:   `{"error": {"message": "Internal server error", "type": "server_error", "code": "server_error"}}`,
			wantErrContain: "Internal server error",
			wantTransient:  true,
		},
		{
			name:           "non-JSON error body",
			statusCode:     http.StatusForbidden,
			responseBody:   "Forbidden: access denied",
			wantErrContain: "Forbidden: access denied",
			wantTransient:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestCount := 0
			server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				requestCount++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.responseBody))
			})

			provider := newOpenAITestProvider(t, server.URL)
			_, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "test"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrContain)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.wantTransient, apiErr.IsTransient())

			// The provider never retries on its own.
			assert.Equal(t, 1, requestCount)
		})
	}
}

func TestOpenAIProvider_Generate_MalformedResponse(t *testing.T) {
	t.Run("API returns non-JSON body", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`not valid json at all`))
		})

		provider := newOpenAITestProvider(t, server.URL)
		_, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai: failed to unmarshal response")
	})

	t.Run("API returns empty choices array", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			resp := chatResponse{
				ID:      "chatcmpl-nochoices",
				Choices: []chatChoice{},
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		provider := newOpenAITestProvider(t, server.URL)
		_, err := provider.Generate(context.Background(), GenerateRequest{Prompt: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai: empty choices in response")
	})
}

func TestOpenAIProvider_Provider(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{}, 0.5, 30*time.Second)
	assert.Equal(t, "openai", provider.Provider())
}

func TestOpenAIProvider_Model(t *testing.T) {
	t.Run("returns configured model", func(t *testing.T) {
		provider := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"}, 0.5, 30*time.Second)
		assert.Equal(t, "gpt-4o", provider.Model())
	})

	t.Run("returns default model when not configured", func(t *testing.T) {
		provider := NewOpenAIProvider(OpenAIConfig{}, 0.5, 30*time.Second)
		assert.Equal(t, defaultOpenAIModel, provider.Model())
	})
}

func TestNewOpenAIProvider(t *testing.T) {
	t.Run("applies default values for empty config", func(t *testing.T) {
		provider := NewOpenAIProvider(OpenAIConfig{}, 0.7, 0)

		assert.Equal(t, defaultOpenAIBaseURL, provider.baseURL)
		assert.Equal(t, defaultOpenAIModel, provider.model)
		assert.Equal(t, 0.7, provider.temperature)
		assert.NotNil(t, provider.httpClient)
	})

	t.Run("uses provided config values", func(t *testing.T) {
		cfg := OpenAIConfig{
			APIKey:  "sk-test-key",
			Model:   "gpt-4o-mini",
			BaseURL: "https://custom-api.example.com/v1",
		}
		provider := NewOpenAIProvider(cfg, 0.2, 45*time.Second)

		assert.Equal(t, "https://custom-api.example.com/v1", provider.baseURL)
		assert.Equal(t, "gpt-4o-mini", provider.model)
		assert.Equal(t, "sk-test-key", provider.apiKey)
		assert.Equal(t, 0.2, provider.temperature)
	})
}

func TestAPIError(t *testing.T) {
	t.Run("Error() formats message correctly with type", func(t *testing.T) {
		err := &APIError{
			Provider:   "openai",
			StatusCode: 401,
			Message:    "Invalid API key",
			Type:       "invalid_request_error",
			Code:       "invalid_api_key",
		}
		assert.Equal(t, "openai: API error (status 401, type invalid_request_error): Invalid API key", err.Error())
	})

	t.Run("Error() formats message correctly without type", func(t *testing.T) {
		err := &APIError{
			Provider:   "openai",
			StatusCode: 401,
			Message:    "Invalid API key",
		}
		assert.Equal(t, "openai: API error (status 401): Invalid API key", err.Error())
	})

	t.Run("IsTransient returns true for status 0 (network error)", func(t *testing.T) {
		err := &APIError{StatusCode: 0}
		assert.True(t, err.IsTransient())
	})

	t.Run("IsTransient returns true for 429", func(t *testing.T) {
		err := &APIError{StatusCode: http.StatusTooManyRequests}
		assert.True(t, err.IsTransient())
	})

	t.Run("IsTransient returns true for 503", func(t *testing.T) {
		err := &APIError{StatusCode: http.StatusServiceUnavailable}
		assert.True(t, err.IsTransient())
	})

	t.Run("IsTransient returns false for 400", func(t *testing.T) {
		err := &APIError{StatusCode: http.StatusBadRequest}
		assert.False(t, err.IsTransient())
	})

	t.Run("IsRateLimited returns true only for 429", func(t *testing.T) {
		assert.True(t, (&APIError{StatusCode: http.StatusTooManyRequests}).IsRateLimited())
		assert.False(t, (&APIError{StatusCode: http.StatusInternalServerError}).IsRateLimited())
		assert.False(t, (&APIError{StatusCode: 0}).IsRateLimited())
	})
}
