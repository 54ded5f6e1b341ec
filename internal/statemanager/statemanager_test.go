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

package statemanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/xdsclient"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

const localYAML = `
binds:
  - name: bind/8080
    port: 8080
backends:
  - name: anthropic
    host: api.anthropic.com
    provider: anthropic
services:
  - name: ns/chat-svc
`

func writeLocal(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewRequiresSource(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration source")
}

func TestNewLoadsLocalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	b, ok := m.Stores().Binds.Bind("bind/8080")
	require.True(t, ok)
	assert.Equal(t, uint32(8080), b.Port)
	_, ok = m.Stores().Discovery.Service("ns/chat-svc")
	assert.True(t, ok)

	// no xDS: ready immediately
	select {
	case <-m.Ready():
	default:
		t.Fatal("local-only manager should be ready after New")
	}
	assert.Nil(t, m.Demander())
}

func TestNewFailsOnBadLocalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, "binds: [unclosed")

	_, err := New(Options{LocalPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial config load failed")
}

func TestNewWithXDSRegistersHandlers(t *testing.T) {
	cfg := xdsclient.NewConfig("localhost:15010", "ai-gateway", "ns")
	m, err := New(Options{XDS: cfg})
	require.NoError(t, err)

	// not ready until the control plane answers
	select {
	case <-m.Ready():
		t.Fatal("xDS-backed manager must not be ready before the first responses")
	default:
	}
	assert.Nil(t, m.Demander(), "no demander unless on-demand is enabled")
}

func TestReloadRemovesDroppedResources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	writeLocal(t, path, "backends:\n  - name: anthropic\n    host: api.anthropic.com\n")
	require.NoError(t, m.reload())

	_, ok := m.Stores().Binds.Bind("bind/8080")
	assert.False(t, ok, "bind dropped from the file should be removed")
	_, ok = m.Stores().Binds.Backend("anthropic")
	assert.True(t, ok)
	_, ok = m.Stores().Discovery.Service("ns/chat-svc")
	assert.False(t, ok)
}

func TestReloadFailureKeepsPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	writeLocal(t, path, "binds: [unclosed")
	require.Error(t, m.reload())

	_, ok := m.Stores().Binds.Bind("bind/8080")
	assert.True(t, ok, "previous state survives a failed reload")

	// and the state carried forward still drives the next successful reload
	writeLocal(t, path, "backends:\n  - name: anthropic\n")
	require.NoError(t, m.reload())
	_, ok = m.Stores().Binds.Bind("bind/8080")
	assert.False(t, ok)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.watchLocal(ctx)

	// give the watcher a moment to install before writing
	time.Sleep(100 * time.Millisecond)
	writeLocal(t, path, localYAML+`
policies:
  - name: added-later
`)

	require.Eventually(t, func() bool {
		_, ok := m.Stores().Binds.Policy("added-later")
		return ok
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the new policy")
}

func TestWatcherSurvivesBadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.watchLocal(ctx)

	time.Sleep(100 * time.Millisecond)
	writeLocal(t, path, "binds: [unclosed")
	time.Sleep(2 * debounceInterval)

	// previous state intact, watcher still alive for the next good write
	_, ok := m.Stores().Binds.Bind("bind/8080")
	assert.True(t, ok)

	writeLocal(t, path, "policies:\n  - name: recovered\n")
	require.Eventually(t, func() bool {
		_, ok := m.Stores().Binds.Policy("recovered")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeLocal(t, path, localYAML)

	m, err := New(Options{LocalPath: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
