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

// Package statemanager glues the configuration sources to the domain stores.
// Updates arrive either over xDS or from a watched local file; both feed the
// same stores.
package statemanager

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/store"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/xdsclient"
)

// Resource type URLs served by the control plane.
const (
	// ResourceType carries binds, backends and policies
	ResourceType = "type.googleapis.com/agentgateway.dev.resource.Resource"

	// AddressType carries services and workloads
	AddressType = "type.googleapis.com/agentgateway.dev.workload.Address"

	// AuthorizationType is watched but has no handler yet; responses for it
	// are acked and dropped
	AuthorizationType = "type.googleapis.com/istio.security.Authorization"
)

// Options selects the configuration sources.
type Options struct {
	// XDS, when non-nil, enables the control plane feed. The state manager
	// registers the store handlers on it before building the client.
	XDS *xdsclient.Config

	// LocalPath, when set, is a YAML config file loaded at start and
	// reloaded on change.
	LocalPath string
}

// StateManager owns the stores and drives their configuration sources.
type StateManager struct {
	stores *store.Stores
	xds    *xdsclient.Client

	localPath string

	mu   sync.Mutex
	prev store.PreviousState
}

// New creates the stores, wires the xDS handlers, and performs the initial
// local config load.
func New(opts Options) (*StateManager, error) {
	m := &StateManager{
		stores:    store.New(),
		localPath: opts.LocalPath,
	}

	if opts.XDS != nil {
		xdsclient.WithWatchedHandler[structpb.Struct](opts.XDS, ResourceType, m.stores.Binds)
		xdsclient.WithWatchedHandler[structpb.Struct](opts.XDS, AddressType, m.stores.Discovery)
		opts.XDS.Watch(AuthorizationType)

		client, err := opts.XDS.Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build xDS client: %w", err)
		}
		m.xds = client
	}

	if m.localPath != "" {
		if err := m.reload(); err != nil {
			return nil, fmt.Errorf("initial config load failed: %w", err)
		}
	}

	if m.xds == nil && m.localPath == "" {
		return nil, fmt.Errorf("no configuration source: set an xDS server or a local config path")
	}

	return m, nil
}

// Stores returns the shared store handle.
func (m *StateManager) Stores() *store.Stores {
	return m.stores
}

// Ready returns a channel closed once the initial configuration is in
// place. Without xDS the local load already happened in New, so the channel
// is closed immediately.
func (m *StateManager) Ready() <-chan struct{} {
	if m.xds != nil {
		return m.xds.Ready()
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Demander exposes on-demand resource fetches, or nil when xDS is disabled
// or not in on-demand mode.
func (m *StateManager) Demander() *xdsclient.Demander {
	if m.xds == nil {
		return nil
	}
	return m.xds.Demander()
}

// Run drives the configured sources until ctx is cancelled.
func (m *StateManager) Run(ctx context.Context) error {
	if m.xds != nil {
		go func() {
			// Run only returns on ctx cancellation; it reconnects forever.
			_ = m.xds.Run(ctx)
		}()
	}
	if m.localPath != "" {
		go m.watchLocal(ctx)
	}

	<-ctx.Done()
	return ctx.Err()
}
