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

package tracing

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/config"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(&config.Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestInitTracerNilConfig(t *testing.T) {
	shutdown, err := InitTracer(nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestInitTracerEnabled(t *testing.T) {
	// the OTLP gRPC exporter connects lazily, so init succeeds without a
	// collector listening
	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:            true,
			Endpoint:           "localhost:4317",
			Insecure:           true,
			BatchTimeout:       time.Second,
			MaxExportBatchSize: 16,
			SamplingRate:       0.5,
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestExtractTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	ctx := ExtractTraceContext(req)
	span := trace.SpanContextFromContext(ctx)
	require.True(t, span.IsValid())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", span.TraceID().String())
	assert.True(t, span.IsRemote())
}

func TestExtractTraceContextMissingHeader(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	ctx := ExtractTraceContext(req)
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
