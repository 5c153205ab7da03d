// Package llm provides the DeepSeek chat-completions client used to phrase
// assistant replies. The core pipeline never depends on it; it only consumes
// the pipeline's outputs as conversational context.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/odvcencio/deskpilot/pkg/errors"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"
	defaultTimeout = 60 * time.Second
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client calls the DeepSeek chat-completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient builds a client using the supplied API key.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientFromEnv builds a client from DEEPSEEK_API_KEY / DEEPSEEK_API_BASE.
func NewClientFromEnv() *Client {
	return NewClient(
		strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")),
		strings.TrimSpace(os.Getenv("DEEPSEEK_API_BASE")),
	)
}

// Chat runs one completion and returns the assistant's reply text.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", errors.New(errors.ErrCodeLLMAPIError, "missing API key").
			WithUserMessage("缺少 DEEPSEEK_API_KEY").
			WithRemediation("set the DEEPSEEK_API_KEY environment variable")
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMAPIError, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMAPIError, "creating request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMAPIError, "chat completion request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.ErrCodeLLMAPIError, "chat completion request failed").
			WithContext("status", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMAPIError, "decoding response")
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New(errors.ErrCodeLLMAPIError, "empty completion").
			WithUserMessage("DeepSeek 返回为空")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
