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

// Package store holds the gateway's runtime configuration: binds, backends
// and policies on one side, discovered services and workloads on the other.
// Both stores accept updates from the xDS client and from local config
// reloads; readers always see a consistent snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/strng"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/xdsclient"
)

// Stores bundles the two domain stores behind one handle.
type Stores struct {
	Binds     *BindStore
	Discovery *DiscoveryStore
}

// New creates empty stores.
func New() *Stores {
	return &Stores{
		Binds: &BindStore{
			binds:    map[strng.Str]Bind{},
			policies: map[strng.Str]Policy{},
			backends: map[strng.Str]Backend{},
		},
		Discovery: &DiscoveryStore{
			services:  map[strng.Str]Service{},
			workloads: map[strng.Str]Workload{},
		},
	}
}

// PreviousState is carried across local config reloads so the next reload
// can remove resources that disappeared from the file.
type PreviousState struct {
	Binds     BindPreviousState
	Discovery DiscoveryPreviousState
}

// BindStore holds binds, policies and backends.
type BindStore struct {
	mu       sync.RWMutex
	binds    map[strng.Str]Bind
	policies map[strng.Str]Policy
	backends map[strng.Str]Backend
}

// BindPreviousState is the set of names the previous local sync installed.
type BindPreviousState struct {
	Binds    map[strng.Str]struct{}
	Policies map[strng.Str]struct{}
	Backends map[strng.Str]struct{}
}

// SyncLocal replaces the locally-sourced subset of the store: everything in
// prev that is absent from the new sets is removed, the new sets are
// upserted, all under one lock.
func (s *BindStore) SyncLocal(binds []Bind, policies []Policy, backends []Backend, prev BindPreviousState) BindPreviousState {
	next := BindPreviousState{
		Binds:    make(map[strng.Str]struct{}, len(binds)),
		Policies: make(map[strng.Str]struct{}, len(policies)),
		Backends: make(map[strng.Str]struct{}, len(backends)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range binds {
		name := strng.New(b.Name)
		s.binds[name] = b
		next.Binds[name] = struct{}{}
	}
	for _, p := range policies {
		name := strng.New(p.Name)
		s.policies[name] = p
		next.Policies[name] = struct{}{}
	}
	for _, b := range backends {
		name := strng.New(b.Name)
		s.backends[name] = b
		next.Backends[name] = struct{}{}
	}

	for name := range prev.Binds {
		if _, ok := next.Binds[name]; !ok {
			delete(s.binds, name)
		}
	}
	for name := range prev.Policies {
		if _, ok := next.Policies[name]; !ok {
			delete(s.policies, name)
		}
	}
	for name := range prev.Backends {
		if _, ok := next.Backends[name]; !ok {
			delete(s.backends, name)
		}
	}

	return next
}

// Bind looks up a bind by name.
func (s *BindStore) Bind(name string) (Bind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.binds[strng.New(name)]
	return b, ok
}

// Backend looks up a backend by name.
func (s *BindStore) Backend(name string) (Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[strng.New(name)]
	return b, ok
}

// Policy looks up a policy by name.
func (s *BindStore) Policy(name string) (Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[strng.New(name)]
	return p, ok
}

// BindSnapshot is a point-in-time copy of the bind store for dumping.
type BindSnapshot struct {
	Binds    map[string]Bind    `json:"binds"`
	Policies map[string]Policy  `json:"policies"`
	Backends map[string]Backend `json:"backends"`
}

// Snapshot copies the store contents.
func (s *BindStore) Snapshot() BindSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := BindSnapshot{
		Binds:    make(map[string]Bind, len(s.binds)),
		Policies: make(map[string]Policy, len(s.policies)),
		Backends: make(map[string]Backend, len(s.backends)),
	}
	for name, b := range s.binds {
		snap.Binds[name.String()] = b
	}
	for name, p := range s.policies {
		snap.Policies[name.String()] = p
	}
	for name, b := range s.backends {
		snap.Backends[name.String()] = b
	}
	return snap
}

// adpResource is the JSON shape of one gateway resource from the control
// plane: an envelope with exactly one of the kind fields set.
type adpResource struct {
	Bind    *Bind    `json:"bind,omitempty"`
	Backend *Backend `json:"backend,omitempty"`
	Policy  *Policy  `json:"policy,omitempty"`
}

// Handle applies gateway resource updates from the control plane. Payloads
// arrive as JSON-shaped Structs; each one decodes into the resource
// envelope. Failures reject that resource only.
func (s *BindStore) Handle(updates []xdsclient.Update[*structpb.Struct]) []xdsclient.RejectedConfig {
	var rejected []xdsclient.RejectedConfig

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		if u.Removed {
			delete(s.binds, u.Name)
			delete(s.policies, u.Name)
			delete(s.backends, u.Name)
			continue
		}

		var res adpResource
		if err := decodeStruct(u.Resource, &res); err != nil {
			rejected = append(rejected, xdsclient.RejectedConfig{Name: u.Name, Reason: err})
			continue
		}

		switch {
		case res.Bind != nil:
			if res.Bind.Name == "" {
				res.Bind.Name = u.Name.String()
			}
			s.binds[u.Name] = *res.Bind
		case res.Backend != nil:
			if res.Backend.Name == "" {
				res.Backend.Name = u.Name.String()
			}
			s.backends[u.Name] = *res.Backend
		case res.Policy != nil:
			if res.Policy.Name == "" {
				res.Policy.Name = u.Name.String()
			}
			s.policies[u.Name] = *res.Policy
		default:
			rejected = append(rejected, xdsclient.RejectedConfig{
				Name:   u.Name,
				Reason: fmt.Errorf("resource has no recognised kind"),
			})
		}
	}
	return rejected
}

// NoOnDemand pins gateway resources to wildcard subscription: a data plane
// cannot route without its full bind set.
func (s *BindStore) NoOnDemand() bool { return true }

// DiscoveryStore holds services and workloads.
type DiscoveryStore struct {
	mu        sync.RWMutex
	services  map[strng.Str]Service
	workloads map[strng.Str]Workload
}

// DiscoveryPreviousState is the set of names the previous local sync
// installed.
type DiscoveryPreviousState struct {
	Services  map[strng.Str]struct{}
	Workloads map[strng.Str]struct{}
}

// SyncLocal replaces the locally-sourced subset of the store; see
// BindStore.SyncLocal.
func (s *DiscoveryStore) SyncLocal(services []Service, workloads []Workload, prev DiscoveryPreviousState) DiscoveryPreviousState {
	next := DiscoveryPreviousState{
		Services:  make(map[strng.Str]struct{}, len(services)),
		Workloads: make(map[strng.Str]struct{}, len(workloads)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, svc := range services {
		name := strng.New(svc.Name)
		s.services[name] = svc
		next.Services[name] = struct{}{}
	}
	for _, w := range workloads {
		name := strng.New(w.UID)
		s.workloads[name] = w
		next.Workloads[name] = struct{}{}
	}

	for name := range prev.Services {
		if _, ok := next.Services[name]; !ok {
			delete(s.services, name)
		}
	}
	for name := range prev.Workloads {
		if _, ok := next.Workloads[name]; !ok {
			delete(s.workloads, name)
		}
	}

	return next
}

// Service looks up a service by name.
func (s *DiscoveryStore) Service(name string) (Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[strng.New(name)]
	return svc, ok
}

// Workload looks up a workload by uid.
func (s *DiscoveryStore) Workload(uid string) (Workload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workloads[strng.New(uid)]
	return w, ok
}

// DiscoverySnapshot is a point-in-time copy of the discovery store.
type DiscoverySnapshot struct {
	Services  map[string]Service  `json:"services"`
	Workloads map[string]Workload `json:"workloads"`
}

// Snapshot copies the store contents.
func (s *DiscoveryStore) Snapshot() DiscoverySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := DiscoverySnapshot{
		Services:  make(map[string]Service, len(s.services)),
		Workloads: make(map[string]Workload, len(s.workloads)),
	}
	for name, svc := range s.services {
		snap.Services[name.String()] = svc
	}
	for name, w := range s.workloads {
		snap.Workloads[name.String()] = w
	}
	return snap
}

// addressResource is the JSON envelope of one discovery address: either a
// service or a workload.
type addressResource struct {
	Service  *Service  `json:"service,omitempty"`
	Workload *Workload `json:"workload,omitempty"`
}

// Handle applies address updates from the control plane.
func (s *DiscoveryStore) Handle(updates []xdsclient.Update[*structpb.Struct]) []xdsclient.RejectedConfig {
	var rejected []xdsclient.RejectedConfig

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		if u.Removed {
			delete(s.services, u.Name)
			delete(s.workloads, u.Name)
			continue
		}

		var res addressResource
		if err := decodeStruct(u.Resource, &res); err != nil {
			rejected = append(rejected, xdsclient.RejectedConfig{Name: u.Name, Reason: err})
			continue
		}

		switch {
		case res.Service != nil:
			if res.Service.Name == "" {
				res.Service.Name = u.Name.String()
			}
			s.services[u.Name] = *res.Service
		case res.Workload != nil:
			if res.Workload.UID == "" {
				res.Workload.UID = u.Name.String()
			}
			s.workloads[u.Name] = *res.Workload
		default:
			rejected = append(rejected, xdsclient.RejectedConfig{
				Name:   u.Name,
				Reason: fmt.Errorf("address has no recognised kind"),
			})
		}
	}
	return rejected
}

// NoOnDemand allows addresses to be fetched on demand.
func (s *DiscoveryStore) NoOnDemand() bool { return false }

// decodeStruct converts a JSON-shaped Struct payload into out.
func decodeStruct(payload *structpb.Struct, out any) error {
	data, err := payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialise resource payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode resource payload: %w", err)
	}
	return nil
}
