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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/tracing"
)

// ChatProxy terminates universal chat-completion requests, translates them
// through a Provider and round-trips the upstream response or stream.
type ChatProxy struct {
	provider Provider
	client   *http.Client
	tracer   trace.Tracer
}

// NewChatProxy creates a proxy for provider. client controls upstream
// transport and timeouts; nil uses http.DefaultClient.
func NewChatProxy(provider Provider, client *http.Client) *ChatProxy {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChatProxy{
		provider: provider,
		client:   client,
		tracer:   otel.Tracer("ai-gateway/llm"),
	}
}

// ServeHTTP implements http.Handler for POST /v1/chat/completions.
func (p *ChatProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	ctx, span := p.tracer.Start(tracing.ExtractTraceContext(r), "llm.chat_completion",
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("request.id", requestID),
		))
	defer span.End()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.writeError(w, http.StatusBadRequest, &ErrorResponse{Error: ErrorDetail{
			Message: fmt.Sprintf("invalid request body: %v", err),
			Type:    "invalid_request_error",
		}})
		p.countRequest(modelLabel(&req), "invalid_request")
		return
	}

	model := modelLabel(&req)
	span.SetAttributes(attribute.String("llm.model", model))

	body, err := p.provider.ProcessRequest(&req)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to translate request",
			"provider", p.provider.Name(),
			"request_id", requestID,
			"error", err)
		p.writeError(w, http.StatusBadRequest, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "invalid_request_error",
		}})
		p.countRequest(model, "translation_error")
		return
	}

	url := fmt.Sprintf("https://%s%s", p.provider.Host(), p.provider.Path())
	upstream, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "internal_error",
		}})
		p.countRequest(model, "internal_error")
		return
	}
	if err := p.provider.SetupRequest(upstream); err != nil {
		p.writeError(w, http.StatusInternalServerError, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "internal_error",
		}})
		p.countRequest(model, "internal_error")
		return
	}
	upstream.Header.Set("x-request-id", requestID)

	start := time.Now()
	resp, err := p.client.Do(upstream)
	if err != nil {
		slog.ErrorContext(ctx, "Upstream request failed",
			"provider", p.provider.Name(),
			"request_id", requestID,
			"error", err)
		p.writeError(w, http.StatusBadGateway, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "upstream_unreachable",
		}})
		p.countRequest(model, "upstream_unreachable")
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		out, perr := p.provider.ProcessError(resp.StatusCode, raw)
		if perr != nil {
			slog.ErrorContext(ctx, "Failed to decode upstream error",
				"provider", p.provider.Name(),
				"request_id", requestID,
				"status", resp.StatusCode,
				"error", perr)
			p.writeError(w, http.StatusBadGateway, &ErrorResponse{Error: ErrorDetail{
				Message: perr.Error(),
				Type:    "response_parsing",
			}})
			p.countRequest(model, "upstream_error")
			return
		}
		p.writeError(w, resp.StatusCode, out)
		p.countRequest(model, "upstream_error")
		return
	}

	if req.Stream {
		p.serveStream(ctx, w, resp.Body, model, start, requestID)
		return
	}

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		p.writeError(w, http.StatusBadGateway, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "upstream_read_error",
		}})
		p.countRequest(model, "upstream_read_error")
		return
	}

	out, err := p.provider.ProcessResponse(raw)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to translate response",
			"provider", p.provider.Name(),
			"request_id", requestID,
			"error", err)
		p.writeError(w, http.StatusBadGateway, &ErrorResponse{Error: ErrorDetail{
			Message: err.Error(),
			Type:    "translation_error",
		}})
		p.countRequest(model, "translation_error")
		return
	}

	metrics.LLMTokensTotal.WithLabelValues(p.provider.Name(), "prompt").Add(float64(out.Usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(p.provider.Name(), "completion").Add(float64(out.Usage.CompletionTokens))
	p.countRequest(out.Model, "success")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("x-request-id", requestID)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.WarnContext(ctx, "Failed to write response", "request_id", requestID, "error", err)
	}
}

// serveStream copies the translated SSE stream to the client, flushing per
// write, then records accounting from the response log.
func (p *ChatProxy) serveStream(ctx context.Context, w http.ResponseWriter, body io.ReadCloser, model string, start time.Time, requestID string) {
	log := &ResponseLog{}
	stream := p.provider.ProcessStreaming(log, body)
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("x-request-id", requestID)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.WarnContext(ctx, "Stream ended with error", "request_id", requestID, "error", err)
			}
			break
		}
	}

	snap := log.Snapshot()
	if !snap.FirstToken.IsZero() {
		metrics.LLMTimeToFirstTokenSecs.
			WithLabelValues(p.provider.Name(), snap.ProviderModel).
			Observe(snap.FirstToken.Sub(start).Seconds())
	}
	metrics.LLMTokensTotal.WithLabelValues(p.provider.Name(), "prompt").Add(float64(snap.InputTokensFromResponse))
	metrics.LLMTokensTotal.WithLabelValues(p.provider.Name(), "completion").Add(float64(snap.OutputTokens))
	if snap.ProviderModel != "" {
		model = snap.ProviderModel
	}
	p.countRequest(model, "success")
}

func (p *ChatProxy) writeError(w http.ResponseWriter, status int, out *ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (p *ChatProxy) countRequest(model, status string) {
	metrics.LLMRequestsTotal.WithLabelValues(p.provider.Name(), model, status).Inc()
}

func modelLabel(req *Request) string {
	if req.Model != nil {
		return *req.Model
	}
	return "unknown"
}
