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

package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/config"
)

func TestNewServer(t *testing.T) {
	cfg := &config.MetricsConfig{
		Enabled: true,
		Port:    9100,
	}

	server := NewServer(cfg)

	require.NotNil(t, server)
	assert.Equal(t, 9100, server.port)
	require.NotNil(t, server.srv)
	assert.Equal(t, ":9100", server.srv.Addr)
}

func TestServer_StartStop(t *testing.T) {
	cfg := &config.MetricsConfig{
		Enabled: true,
		Port:    9101,
	}

	server := NewServer(cfg)

	startCtx := context.Background()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(startCtx)
	}()

	// Wait for server to be ready with retries
	var resp *http.Response
	var err error
	for i := 0; i < 10; i++ {
		time.Sleep(50 * time.Millisecond)
		resp, err = http.Get("http://localhost:9101/health")
		if err == nil {
			resp.Body.Close()
			break
		}
	}
	require.NoError(t, err, "server should be reachable after startup")

	resp, err = http.Get("http://localhost:9101/metrics")
	require.NoError(t, err, "metrics endpoint should be reachable")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Stop(stopCtx)
	assert.NoError(t, err)

	select {
	case startErr := <-errCh:
		if startErr != nil && startErr != http.ErrServerClosed {
			t.Errorf("unexpected error from Start: %v", startErr)
		}
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after Stop")
	}
}

func TestInit(t *testing.T) {
	registry := Init()
	require.NotNil(t, registry)

	// Init is idempotent
	assert.Same(t, registry, Init())
	assert.Same(t, registry, GetRegistry())
}

func TestMetricsUsable(t *testing.T) {
	Init()

	XDSConnectionTerminationsTotal.WithLabelValues("Reconnect").Inc()
	XDSResponsesTotal.WithLabelValues("type.googleapis.com/agentgateway.dev.resource.Resource").Inc()
	LLMRequestsTotal.WithLabelValues("anthropic", "claude-3-5-sonnet", "success").Inc()
	LLMTokensTotal.WithLabelValues("anthropic", "prompt").Add(12)
	LLMTimeToFirstTokenSecs.WithLabelValues("anthropic", "claude-3-5-sonnet").Observe(0.42)
	ConfigReloadsTotal.WithLabelValues("success").Inc()
}

func TestUpdateMemoryMetrics(t *testing.T) {
	Init()
	UpdateMemoryMetrics()
}

func TestStartMemoryMetricsUpdater(t *testing.T) {
	Init()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	StartMemoryMetricsUpdater(ctx, 50*time.Millisecond)

	<-ctx.Done()
}
