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
	"os"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	"google.golang.org/protobuf/types/known/structpb"
)

// Environment variables carrying pod identity, injected via the downward API
const (
	envInstanceIP   = "INSTANCE_IP"
	envPodName      = "POD_NAME"
	envPodNamespace = "POD_NAMESPACE"
	envNodeName     = "NODE_NAME"

	// defaultInstanceIP is used outside a cluster where no IP is injected
	defaultInstanceIP = "1.1.1.1"
)

// nodeIdentity is the resolved identity this client reports to the control
// plane.
type nodeIdentity struct {
	IP          string
	PodName     string
	Namespace   string
	NodeName    string
	GatewayName string
	// Extra is caller-supplied metadata merged into the node struct
	Extra map[string]string
}

// identityFromEnv resolves the node identity from the environment. namespace,
// when non-empty, overrides POD_NAMESPACE.
func identityFromEnv(gatewayName, namespace string, extra map[string]string) nodeIdentity {
	ip := os.Getenv(envInstanceIP)
	if ip == "" {
		ip = defaultInstanceIP
	}
	ns := namespace
	if ns == "" {
		ns = os.Getenv(envPodNamespace)
	}
	return nodeIdentity{
		IP:          ip,
		PodName:     os.Getenv(envPodName),
		Namespace:   ns,
		NodeName:    os.Getenv(envNodeName),
		GatewayName: gatewayName,
		Extra:       extra,
	}
}

// ID returns the node id in the form
// "agentgateway~{ip}~{pod}.{namespace}~{namespace}.svc.cluster.local".
func (n nodeIdentity) ID() string {
	return fmt.Sprintf("agentgateway~%s~%s.%s~%s.svc.cluster.local",
		n.IP, n.PodName, n.Namespace, n.Namespace)
}

// Role returns "{namespace}~{gateway_name}".
func (n nodeIdentity) Role() string {
	return fmt.Sprintf("%s~%s", n.Namespace, n.GatewayName)
}

// Node builds the envoy node sent on the initial delta requests.
func (n nodeIdentity) Node() *corev3.Node {
	fields := map[string]any{
		"NAME":         n.PodName,
		"NAMESPACE":    n.Namespace,
		"INSTANCE_IPS": n.IP,
		"NODE_NAME":    n.NodeName,
		"role":         n.Role(),
	}
	for k, v := range n.Extra {
		fields[k] = v
	}
	metadata, _ := structpb.NewStruct(fields)
	return &corev3.Node{
		Id:       n.ID(),
		Metadata: metadata,
	}
}
