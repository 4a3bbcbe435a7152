// Package llm is a direct client for OpenAI-compatible chat completion APIs.
// Stateless: it holds no history and no session — the agent loop owns both.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ricmello/garra/internal/task"
)

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args decodes the JSON arguments. Malformed arguments decode to an empty
// map; the registry's validation reports what is missing.
func (f FunctionCall) Args() map[string]any {
	args := map[string]any{}
	json.Unmarshal([]byte(f.Arguments), &args)
	return args
}

// ToolSchema is the wire format of one tool definition.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a callable to the model.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParametersField `json:"parameters"`
}

// ParametersField is the JSON-Schema object holding parameter definitions.
type ParametersField struct {
	Type       string                   `json:"type"`
	Properties map[string]PropertyField `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// PropertyField describes one parameter.
type PropertyField struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Response is the parsed model reply: either final text or tool calls.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // stop, tool_calls, length
}

// IsFinal reports whether the response carries no tool calls.
func (r *Response) IsFinal() bool { return len(r.ToolCalls) == 0 }

// Config holds the connection settings for the model backend.
type Config struct {
	APIBase     string // Root of the API, e.g. https://api.groq.com/openai/v1
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// New creates a client. The base URL must point at the API root; the client
// appends /chat/completions itself.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		return nil, fmt.Errorf("llm: api_base não configurado (ex.: https://api.openai.com/v1)")
	}
	if !strings.HasSuffix(base, "/chat/completions") {
		base += "/chat/completions"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Client{
		endpoint:    base,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Chat sends the message list (plus optional tool schemas) to the model and
// returns the parsed response.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolSchema) (*Response, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}
	if len(tools) > 0 {
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm api status %d: %s", httpResp.StatusCode, task.Truncate(string(respBody), 500))
	}

	return parseResponse(respBody)
}

func parseResponse(data []byte) (*Response, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Content   string     `json:"content"`
				ToolCalls []ToolCall `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return &Response{FinishReason: "stop"}, nil
	}

	choice := result.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
	}, nil
}
