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

package admin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/config"
)

func TestIsIPAllowed(t *testing.T) {
	tests := []struct {
		name       string
		clientIP   string
		allowedIPs []string
		want       bool
	}{
		{"exact match", "127.0.0.1", []string{"127.0.0.1"}, true},
		{"ipv6 loopback", "::1", []string{"127.0.0.1", "::1"}, true},
		{"not in list", "10.0.0.1", []string{"127.0.0.1"}, false},
		{"wildcard star", "10.0.0.1", []string{"*"}, true},
		{"wildcard cidr", "10.0.0.1", []string{"0.0.0.0/0"}, true},
		{"empty list", "127.0.0.1", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isIPAllowed(tt.clientIP, tt.allowedIPs))
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:54321"
	assert.Equal(t, "192.168.1.5", extractClientIP(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", extractClientIP(req))
}

func TestIPWhitelistMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := ipWhitelistMiddleware([]string{"127.0.0.1"}, inner)

	req := httptest.NewRequest(http.MethodGet, "/config_dump", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.RemoteAddr = "10.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServerStartStop(t *testing.T) {
	cfg := &config.AdminConfig{
		Enabled:    true,
		Port:       9200,
		AllowedIPs: []string{"127.0.0.1", "::1"},
	}
	srv := NewServer(cfg, seededStores(t))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()

	// wait for the listener
	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Port)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/config_dump", cfg.Port))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "bind/8080")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
