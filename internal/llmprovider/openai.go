// Package llmprovider implements the one concrete LLM vendor adapter
// cmd/server wires up by default: an OpenAI-compatible chat-completions
// HTTP client. Grounded on the teacher's
// pkg/executor/builtin.OpenAIResponsesProvider (hand-rolled net/http call,
// no vendor SDK) and pkg/executor/builtin.LLMExecutor's provider-registry
// shape. Vendor-specific request shapes are an explicit Non-goal
// (spec.md §1); this package exists only so internal/component.Provider
// and internal/component.Classifier have one real implementation to bind
// against — any other vendor adapter plugs in behind the same two
// interfaces without the orchestrator or component runtime changing.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/llmcost"
	"github.com/flowforge/core/internal/state"
)

// ChatProvider calls an OpenAI-compatible /chat/completions endpoint. It
// implements both component.Provider (agent tool-calling turns) and
// component.Classifier (categorizer nodes).
type ChatProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New builds a ChatProvider. baseURL defaults to OpenAI's API when empty,
// so any OpenAI-compatible gateway (Azure, local vLLM, ...) can be pointed
// to instead via configuration.
func New(apiKey, baseURL string) *ChatProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ChatProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete implements component.Provider.
func (p *ChatProvider) Complete(ctx context.Context, req component.CompletionRequest) (component.CompletionResponse, error) {
	body := chatRequest{
		Model:       req.ModelName,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls})
	}
	for _, t := range req.Tools {
		ct := chatTool{Type: "function"}
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, ct)
	}

	resp, err := p.send(ctx, body)
	if err != nil {
		return component.CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return component.CompletionResponse{}, fmt.Errorf("llmprovider: empty choices in response")
	}

	choice := resp.Choices[0].Message
	out := component.CompletionResponse{
		Message: state.Message{Role: choice.Role, Content: choice.Content},
		Usage:   usageFromResponse(resp, req.ModelName),
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, component.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// Classify implements component.Classifier: a single-turn completion asked
// to return one bare category word, used by categorizer nodes.
func (p *ChatProvider) Classify(ctx context.Context, systemPrompt string, input map[string]interface{}) (string, state.TokenUsage, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", state.TokenUsage{}, fmt.Errorf("llmprovider: marshal classify input: %w", err)
	}
	body := chatRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
		Temperature: 0,
	}
	resp, err := p.send(ctx, body)
	if err != nil {
		return "", state.TokenUsage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", state.TokenUsage{}, fmt.Errorf("llmprovider: empty choices in classify response")
	}
	return resp.Choices[0].Message.Content, usageFromResponse(resp, body.Model), nil
}

func (p *ChatProvider) send(ctx context.Context, body chatRequest) (*chatResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("llmprovider: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llmprovider: read response: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("llmprovider: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return nil, fmt.Errorf("llmprovider: %s: %s", out.Error.Code, out.Error.Message)
		}
		return nil, fmt.Errorf("llmprovider: unexpected status %d", resp.StatusCode)
	}
	return &out, nil
}

func usageFromResponse(resp *chatResponse, model string) state.TokenUsage {
	inputUSD, outputUSD := llmcost.Cost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return state.TokenUsage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
		TotalTokens:  int64(resp.Usage.TotalTokens),
		CostUSD:      inputUSD + outputUSD,
		LLMCalls:     1,
	}
}
