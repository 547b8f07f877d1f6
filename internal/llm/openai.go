package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

const maxErrorBody = 4 << 10

type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	defaults   SamplingOptions
}

func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		defaults: SamplingOptions{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	}
}

type openAITool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type openAIErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *OpenAIClient) Chat(ctx context.Context, msgs []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error) {
	reqBody := openAIRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(msgs),
		Temperature: c.defaults.Temperature,
		MaxTokens:   c.defaults.MaxTokens,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, openAITool{Type: "function", Function: t})
	}
	if options != nil {
		reqBody.Temperature = options.Temperature
		if options.MaxTokens > 0 {
			reqBody.MaxTokens = options.MaxTokens
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLLMAPI, err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLLMAPI, err, "create chat request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, ctx.Err(), "model call abandoned")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeLLMAPI, err, "chat request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, resp.Header.Get("Retry-After"), body)
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeLLMAPI, err, "decode chat response")
	}
	if len(oaiResp.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeLLMAPI, "empty choices in chat response")
	}
	choice := oaiResp.Choices[0].Message

	out := &Response{Content: choice.Content, Usage: oaiResp.Usage}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(msgs []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openAIMessage{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			call := openAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, call)
		}
		out = append(out, om)
	}
	return out
}

// statusError maps a non-200 reply onto the llm error codes.
func statusError(status int, retryAfter string, body []byte) error {
	var parsed openAIErrorBody
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	detail := fmt.Sprintf("model api status %d: %s", status, msg)

	switch {
	case parsed.Error.Code == "insufficient_quota" || parsed.Error.Type == "insufficient_quota":
		return pkgerrors.New(pkgerrors.CodeQuotaExceeded, detail)
	case status == http.StatusTooManyRequests:
		return pkgerrors.New(pkgerrors.CodeRateLimit, detail).WithRetryAfter(parseRetryAfter(retryAfter))
	case parsed.Error.Code == "context_length_exceeded":
		return pkgerrors.New(pkgerrors.CodeContextLength, detail)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return pkgerrors.New(pkgerrors.CodeTimeout, detail)
	}
	return ClassifyError(fmt.Errorf("%s", detail))
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
