/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package anthropic translates the universal chat-completion schema to and
// from the Anthropic Messages API.
package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/llm"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/sse"
)

const (
	// ProviderName identifies this provider in logs and metrics.
	ProviderName = "anthropic"

	defaultHost  = "api.anthropic.com"
	messagesPath = "/v1/messages"

	apiVersionHeader = "anthropic-version"
	apiVersion       = "2023-06-01"
	apiKeyHeader     = "x-api-key"
)

// Config holds provider settings.
type Config struct {
	// Host overrides the default API host when set.
	Host string

	// Model forces a model regardless of what the client requested.
	Model string

	// APIKey is sent in the x-api-key header.
	APIKey string
}

// Provider implements llm.Provider for the Anthropic Messages API.
type Provider struct {
	host   string
	model  string
	apiKey string
}

// New creates a Provider from cfg.
func New(cfg Config) *Provider {
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	return &Provider{
		host:   host,
		model:  cfg.Model,
		apiKey: cfg.APIKey,
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return ProviderName }

// Host implements llm.Provider.
func (p *Provider) Host() string { return p.host }

// Path implements llm.Provider.
func (p *Provider) Path() string { return messagesPath }

// SetupRequest sets the API key and version headers.
func (p *Provider) SetupRequest(req *http.Request) error {
	req.Header.Set(apiVersionHeader, apiVersion)
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set(apiKeyHeader, p.apiKey)
	}
	return nil
}

// ProcessRequest translates a universal request into a Messages API request.
//
// System messages are joined with newlines into the top-level system field
// and removed from the message list. Remaining roles collapse to the two the
// API accepts: assistant stays assistant, everything else becomes user.
func (p *Provider) ProcessRequest(req *llm.Request) ([]byte, error) {
	var system []string
	messages := make([]messageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, messageParam{
			Role:    role,
			Content: []contentBlock{{Type: "text", Text: m.Content}},
		})
	}

	model := p.model
	if model == "" && req.Model != nil {
		model = *req.Model
	}

	out := messagesRequest{
		Model:         model,
		Messages:      messages,
		MaxTokens:     req.MaxTokensValue(),
		System:        strings.Join(system, "\n"),
		StopSequences: req.Stop,
		Stream:        req.Stream,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
	}

	if req.User != nil {
		out.Metadata = &metadata{UserID: *req.User}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, toolDef{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	if tc := req.ToolChoice; tc != nil {
		out.ToolChoice = translateToolChoice(tc)
	}

	return json.Marshal(&out)
}

func translateToolChoice(tc *llm.ToolChoice) *toolChoice {
	if tc.FunctionName != "" {
		return &toolChoice{Type: "tool", Name: tc.FunctionName}
	}
	switch tc.Mode {
	case llm.ToolChoiceAuto:
		return &toolChoice{Type: "auto"}
	case llm.ToolChoiceRequired:
		return &toolChoice{Type: "any"}
	case llm.ToolChoiceNone:
		return &toolChoice{Type: "none"}
	default:
		return nil
	}
}

// ProcessResponse translates a Messages API response into a universal
// Response.
func (p *Provider) ProcessResponse(body []byte) (*llm.Response, error) {
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
	}

	// The first text block becomes the message content; a response with no
	// text block keeps content null. Image blocks are dropped.
	var content *string
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if content == nil {
				text := block.Text
				content = &text
			}
		case "tool_use":
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: llm.ToolCallFunction{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	out := &llm.Response{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: uint32(time.Now().Unix()),
		Model:   resp.Model,
		Choices: []llm.Choice{{
			Index: 0,
			Message: llm.ResponseMessage{
				Role:      llm.RoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: translateStopReason(resp.StopReason),
		}},
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	return out, nil
}

func translateStopReason(reason *string) string {
	if reason == nil {
		return ""
	}
	switch *reason {
	case stopReasonEndTurn, stopReasonStopSequence:
		return llm.FinishReasonStop
	case stopReasonMaxTokens:
		return llm.FinishReasonLength
	case stopReasonToolUse:
		return llm.FinishReasonToolCalls
	case stopReasonRefusal:
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReasonStop
	}
}

// ProcessError translates a provider error body into the universal envelope.
// Only the message carries over; the universal error type is fixed. A body
// that does not decode is an error for the caller to surface.
func (p *Provider) ProcessError(statusCode int, body []byte) (*llm.ErrorResponse, error) {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode anthropic error response (status %d): %w", statusCode, err)
	}
	return &llm.ErrorResponse{Error: llm.ErrorDetail{
		Message: resp.Error.Message,
		Type:    "invalid_request_error",
	}}, nil
}

// streamState carries translation state across SSE frames of one response.
type streamState struct {
	messageID   string
	model       string
	created     uint32
	inputTokens uint64
	sawToken    bool
}

// ProcessStreaming rewrites a Messages API SSE stream into universal
// chat.completion.chunk frames.
//
// message_start seeds the accounting log but emits nothing. Text deltas
// become content chunks; the first one records the first-token timestamp.
// message_delta closes the response with a usage chunk. Other events and
// frames that fail to decode produce no output.
func (p *Provider) ProcessStreaming(log *llm.ResponseLog, body io.ReadCloser) io.ReadCloser {
	state := &streamState{created: uint32(time.Now().Unix())}

	return sse.JSONTransform(body, func(ev *streamEvent, err error) *llm.StreamResponse {
		if err != nil {
			return nil
		}
		switch ev.Type {
		case eventMessageStart:
			if ev.Message == nil {
				return nil
			}
			state.messageID = ev.Message.ID
			state.model = ev.Message.Model
			state.inputTokens = ev.Message.Usage.InputTokens
			log.SetProviderModel(ev.Message.Model)
			log.SetInputTokensFromResponse(ev.Message.Usage.InputTokens)
			log.SetOutputTokens(ev.Message.Usage.OutputTokens)
			return nil

		case eventContentBlockDelta:
			if ev.Delta == nil || ev.Delta.Type != deltaTypeText {
				return nil
			}
			if !state.sawToken {
				state.sawToken = true
				log.MarkFirstToken()
			}
			return &llm.StreamResponse{
				ID:      state.messageID,
				Object:  "chat.completion.chunk",
				Created: state.created,
				Model:   state.model,
				Choices: []llm.StreamChoice{{
					Index: 0,
					Delta: llm.StreamDelta{Content: ev.Delta.Text},
				}},
			}

		case eventMessageDelta:
			var outputTokens uint64
			if ev.Usage != nil {
				outputTokens = ev.Usage.OutputTokens
				log.SetOutputTokens(outputTokens)
				log.SetTotalTokens(state.inputTokens + outputTokens)
			}
			// the closing chunk carries usage only, with no choices
			return &llm.StreamResponse{
				ID:      state.messageID,
				Object:  "chat.completion.chunk",
				Created: state.created,
				Model:   state.model,
				Choices: []llm.StreamChoice{},
				Usage: &llm.Usage{
					PromptTokens:     state.inputTokens,
					CompletionTokens: outputTokens,
					TotalTokens:      state.inputTokens + outputTokens,
				},
			}

		default:
			return nil
		}
	})
}
