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
	"time"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/strng"
)

const (
	// WildcardResource subscribes to every resource of a type
	WildcardResource = "*"

	// maxMessageSize bounds a single delta discovery response
	maxMessageSize = 200 * 1024 * 1024

	// demandCapacity is the buffer of the on-demand request channel
	demandCapacity = 100

	// Default configuration values
	DefaultInitialReconnectDelay = 10 * time.Millisecond
	DefaultMaxReconnectDelay     = 15 * time.Second
)

// Stream termination reasons, used as the metric label
const (
	reasonConnectionError = "ConnectionError"
	reasonReconnect       = "Reconnect"
	reasonError           = "Error"
	reasonComplete        = "Complete"
)

// ResourceKey identifies one resource within one type
type ResourceKey struct {
	TypeURL strng.Str
	Name    strng.Str
}

func (k ResourceKey) String() string {
	return k.TypeURL.String() + "/" + k.Name.String()
}

// Update is a single resource change delivered to a handler. Removed updates
// carry no resource.
type Update[T any] struct {
	Name     strng.Str
	Resource T
	Removed  bool
}

// RejectedConfig records one resource a handler refused to apply. Rejections
// are reported back to the control plane as a NACK.
type RejectedConfig struct {
	Name   strng.Str
	Reason error
}

func (r RejectedConfig) String() string {
	return fmt.Sprintf("%s: %v", r.Name, r.Reason)
}

// ClientState represents the current state of the xDS client
type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
