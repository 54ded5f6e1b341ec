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

package llm_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/llm"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/llm/anthropic"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// roundTripperFunc lets a test stand in for the upstream API
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func stubClient(fn roundTripperFunc) *http.Client {
	return &http.Client{Transport: fn}
}

func httpResponse(status int, contentType, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestChatProxyNonStreaming(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	client := stubClient(func(r *http.Request) (*http.Response, error) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		return httpResponse(200, "application/json", `{
			"id": "msg_01",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type":"text","text":"Hi!"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 4, "output_tokens": 2}
		}`), nil
	})

	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{APIKey: "sk-test"}), client)

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hello"}]}`
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	// upstream got a translated Messages API request
	require.NotNil(t, captured)
	assert.Equal(t, "api.anthropic.com", captured.URL.Host)
	assert.Equal(t, "/v1/messages", captured.URL.Path)
	assert.Equal(t, "sk-test", captured.Header.Get("x-api-key"))
	assert.Contains(t, string(capturedBody), `"max_tokens":1024`)

	var resp llm.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp.Object)
	require.NotNil(t, resp.Choices[0].Message.Content)
	assert.Equal(t, "Hi!", *resp.Choices[0].Message.Content)
	assert.Equal(t, uint64(6), resp.Usage.TotalTokens)
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))
}

func TestChatProxyStreaming(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"type":"message_start","message":{"id":"msg_02","model":"claude-3-5-sonnet","usage":{"input_tokens":8,"output_tokens":1}}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"streamed"}}`,
		``,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`,
		``,
	}, "\n")

	client := stubClient(func(r *http.Request) (*http.Response, error) {
		return httpResponse(200, "text/event-stream", upstream), nil
	})

	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{}), client)

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"go"}],"stream":true}`
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, `"content":"streamed"`)
	assert.Contains(t, out, `"prompt_tokens":8`)
	assert.Contains(t, out, `"completion_tokens":3`)
}

func TestChatProxyUpstreamError(t *testing.T) {
	client := stubClient(func(r *http.Request) (*http.Response, error) {
		return httpResponse(429, "application/json",
			`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`), nil
	})

	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{}), client)

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hello"}]}`
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp llm.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "slow down", resp.Error.Message)
	assert.Equal(t, "invalid_request_error", resp.Error.Type)
}

func TestChatProxyUpstreamErrorUndecodable(t *testing.T) {
	client := stubClient(func(r *http.Request) (*http.Response, error) {
		return httpResponse(502, "text/html", "<html>bad gateway</html>"), nil
	})

	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{}), client)

	body := `{"model":"claude-3-5-sonnet","messages":[{"role":"user","content":"hello"}]}`
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))

	// an upstream error body that is not the provider envelope surfaces as
	// a parse failure rather than being wrapped silently
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp llm.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "response_parsing", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "failed to decode")
}

func TestChatProxyInvalidBody(t *testing.T) {
	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{}), stubClient(func(r *http.Request) (*http.Response, error) {
		t.Fatal("upstream should not be called")
		return nil, nil
	}))

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{broken")))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp llm.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request_error", resp.Error.Type)
}

func TestChatProxyMethodNotAllowed(t *testing.T) {
	proxy := llm.NewChatProxy(anthropic.New(anthropic.Config{}), nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
