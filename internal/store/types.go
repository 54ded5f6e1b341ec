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

package store

// Bind is one listening port and the listeners attached to it.
type Bind struct {
	Name      string     `json:"name" yaml:"name"`
	Port      uint32     `json:"port" yaml:"port"`
	Listeners []Listener `json:"listeners,omitempty" yaml:"listeners,omitempty"`
}

// Listener is a protocol endpoint under a bind.
type Listener struct {
	Name        string  `json:"name" yaml:"name"`
	GatewayName string  `json:"gatewayName,omitempty" yaml:"gatewayName,omitempty"`
	Hostname    string  `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Protocol    string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Routes      []Route `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Route maps request matches to backend references.
type Route struct {
	Name     string   `json:"name" yaml:"name"`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty"`
	Backends []string `json:"backends,omitempty" yaml:"backends,omitempty"`
	Policies []string `json:"policies,omitempty" yaml:"policies,omitempty"`
}

// Backend is an upstream target routes refer to by name.
type Backend struct {
	Name string `json:"name" yaml:"name"`
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port uint32 `json:"port,omitempty" yaml:"port,omitempty"`
	// Provider selects the LLM translation family for AI backends
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Policy attaches behaviour to a named target.
type Policy struct {
	Name   string         `json:"name" yaml:"name"`
	Target string         `json:"target,omitempty" yaml:"target,omitempty"`
	Spec   map[string]any `json:"spec,omitempty" yaml:"spec,omitempty"`
}

// Service is a discovered service with its virtual addresses.
type Service struct {
	Name      string        `json:"name" yaml:"name"`
	Namespace string        `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Hostname  string        `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	VIPs      []string      `json:"vips,omitempty" yaml:"vips,omitempty"`
	Ports     []ServicePort `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// ServicePort maps a service port to the workload port behind it.
type ServicePort struct {
	ServicePort uint32 `json:"servicePort" yaml:"servicePort"`
	TargetPort  uint32 `json:"targetPort,omitempty" yaml:"targetPort,omitempty"`
}

// Workload is a discovered endpoint.
type Workload struct {
	UID       string   `json:"uid" yaml:"uid"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Namespace string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Addresses []string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Services  []string `json:"services,omitempty" yaml:"services,omitempty"`
}
