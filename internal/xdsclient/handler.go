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

package xdsclient

import (
	"fmt"

	discoveryv3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	"google.golang.org/protobuf/proto"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/strng"
)

// Handler applies typed resource updates for one type URL. Handle receives
// every change of one delta response in a single call and returns the
// resources it refused; those are NACKed back to the control plane.
type Handler[T proto.Message] interface {
	Handle(updates []Update[T]) []RejectedConfig

	// NoOnDemand reports that this type must always use wildcard
	// subscription even when the client runs in on-demand mode.
	NoOnDemand() bool
}

// HandlerFunc adapts a function to Handler with on-demand allowed.
type HandlerFunc[T proto.Message] func(updates []Update[T]) []RejectedConfig

func (f HandlerFunc[T]) Handle(updates []Update[T]) []RejectedConfig { return f(updates) }

func (f HandlerFunc[T]) NoOnDemand() bool { return false }

// rawHandler is the type-erased form stored in the client's handler table.
type rawHandler interface {
	handle(resources []*discoveryv3.Resource, removed []string) []RejectedConfig
	noOnDemand() bool
}

// handlerWrapper erases the resource type of a Handler. The PT constraint
// ties the proto.Message implementation to its pointer type so decode can
// allocate a fresh T per resource.
type handlerWrapper[T any, PT interface {
	proto.Message
	*T
}] struct {
	handler Handler[PT]
}

func (w handlerWrapper[T, PT]) handle(resources []*discoveryv3.Resource, removed []string) []RejectedConfig {
	var rejected []RejectedConfig

	updates := make([]Update[PT], 0, len(resources)+len(removed))
	for _, res := range resources {
		decoded, err := decodeResource[T, PT](res)
		if err != nil {
			rejected = append(rejected, RejectedConfig{
				Name:   strng.New(res.GetName()),
				Reason: err,
			})
			continue
		}
		updates = append(updates, Update[PT]{
			Name:     strng.New(res.GetName()),
			Resource: decoded,
		})
	}
	for _, name := range removed {
		updates = append(updates, Update[PT]{
			Name:    strng.New(name),
			Removed: true,
		})
	}

	rejected = append(rejected, w.handler.Handle(updates)...)
	return rejected
}

func (w handlerWrapper[T, PT]) noOnDemand() bool {
	return w.handler.NoOnDemand()
}

// decodeResource unpacks the Any payload of a delta resource into PT.
func decodeResource[T any, PT interface {
	proto.Message
	*T
}](res *discoveryv3.Resource) (PT, error) {
	payload := res.GetResource()
	if payload == nil {
		return nil, fmt.Errorf("resource %q has no payload", res.GetName())
	}
	out := PT(new(T))
	if err := payload.UnmarshalTo(out); err != nil {
		return nil, fmt.Errorf("failed to decode resource %q: %w", res.GetName(), err)
	}
	return out, nil
}
