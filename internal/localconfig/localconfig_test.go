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

package localconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
binds:
  - name: bind/8080
    port: 8080
    listeners:
      - name: http
        protocol: HTTP
        routes:
          - name: chat
            path: /v1/chat/completions
            backends: [anthropic]
policies:
  - name: auth
    target: bind/8080
    spec:
      mode: strict
backends:
  - name: anthropic
    host: api.anthropic.com
    port: 443
    provider: anthropic
    model: claude-sonnet-4-20250514
services:
  - name: ns/chat-svc
    hostname: chat-svc.ns.svc.cluster.local
    vips: ["10.96.0.10"]
    ports:
      - servicePort: 80
        targetPort: 8080
workloads:
  - uid: ns/pod-1
    name: pod-1
    namespace: ns
    addresses: ["10.1.0.5"]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Binds, 1)
	assert.Equal(t, uint32(8080), cfg.Binds[0].Port)
	require.Len(t, cfg.Binds[0].Listeners, 1)
	require.Len(t, cfg.Binds[0].Listeners[0].Routes, 1)
	assert.Equal(t, []string{"anthropic"}, cfg.Binds[0].Listeners[0].Routes[0].Backends)

	require.Len(t, cfg.Policies, 1)
	assert.Equal(t, "strict", cfg.Policies[0].Spec["mode"])

	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Backends[0].Model)

	require.Len(t, cfg.Services, 1)
	assert.Equal(t, uint32(8080), cfg.Services[0].Ports[0].TargetPort)

	require.Len(t, cfg.Workloads, 1)
	assert.Equal(t, "ns/pod-1", cfg.Workloads[0].UID)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Binds)
	assert.Empty(t, cfg.Services)
}

func TestParseToleratesUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("binds: []\nfutureSection:\n  key: value\n"))
	assert.NoError(t, err)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("binds: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse local config")
}

func TestParseMissingNames(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bind", "binds:\n  - port: 80\n", "binds[0]: name is required"},
		{"policy", "policies:\n  - target: x\n", "policies[0]: name is required"},
		{"backend", "backends:\n  - host: h\n", "backends[0]: name is required"},
		{"service", "services:\n  - hostname: h\n", "services[0]: name is required"},
		{"workload", "workloads:\n  - name: w\n", "workloads[0]: uid is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Binds, 1)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read local config")
}
