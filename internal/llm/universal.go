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

// Package llm defines the universal chat-completion schema the gateway speaks
// on its client side and the provider contract for translating it to and from
// upstream LLM APIs.
package llm

import (
	"encoding/json"
	"fmt"
)

// Message roles in the universal schema.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons in the universal schema.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// DefaultMaxTokens is applied when the client does not set max_tokens and the
// upstream API requires one.
const DefaultMaxTokens = 1024

// Request is a universal chat-completion request. Optional fields are
// pointers so absent and zero are distinguishable when re-encoding.
type Request struct {
	Model       *string     `json:"model,omitempty"`
	Messages    []Message   `json:"messages"`
	MaxTokens   *uint64     `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	TopP        *float64    `json:"top_p,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
	Stop        Stop        `json:"stop,omitempty"`
	Tools       []Tool      `json:"tools,omitempty"`
	ToolChoice  *ToolChoice `json:"tool_choice,omitempty"`
	User        *string     `json:"user,omitempty"`
}

// Message is a single chat message with plain text content.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stop accepts either a single string or a list of strings on the wire.
type Stop []string

// UnmarshalJSON decodes "stop" from a string or an array of strings.
func (s *Stop) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Stop{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings: %w", err)
	}
	*s = Stop(many)
	return nil
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function signature of a tool.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// ToolChoice is either a mode string ("auto", "required", "none") or a named
// function selection.
type ToolChoice struct {
	Mode string
	// FunctionName is set when a specific tool was named.
	FunctionName string
}

type namedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// UnmarshalJSON decodes "tool_choice" from a mode string or a named function
// object.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		switch mode {
		case ToolChoiceAuto, ToolChoiceRequired, ToolChoiceNone:
			tc.Mode = mode
			return nil
		default:
			return fmt.Errorf("unknown tool_choice mode: %q", mode)
		}
	}
	var named namedToolChoice
	if err := json.Unmarshal(data, &named); err != nil {
		return fmt.Errorf("tool_choice must be a mode string or a named function: %w", err)
	}
	if named.Function.Name == "" {
		return fmt.Errorf("tool_choice function name is required")
	}
	tc.FunctionName = named.Function.Name
	return nil
}

// MarshalJSON re-encodes the tool choice in its wire form.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.FunctionName != "" {
		var named namedToolChoice
		named.Type = "function"
		named.Function.Name = tc.FunctionName
		return json.Marshal(named)
	}
	return json.Marshal(tc.Mode)
}

// Response is a universal non-streaming chat-completion response.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created uint32   `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage is the assistant message of a completion. Content is a
// pointer so a completion with no text encodes as null rather than "".
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is an invocation of a declared tool.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the called function name and its JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is the universal token accounting block.
type Usage struct {
	PromptTokens     uint64 `json:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens"`
	TotalTokens      uint64 `json:"total_tokens"`
}

// StreamResponse is one universal streaming chunk.
type StreamResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created uint32         `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// StreamChoice is one candidate delta within a streaming chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// StreamDelta carries incremental content.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ErrorResponse is the universal error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one upstream failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// MaxTokensValue returns the requested completion budget, falling back to
// DefaultMaxTokens.
func (r *Request) MaxTokensValue() uint64 {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return DefaultMaxTokens
}
