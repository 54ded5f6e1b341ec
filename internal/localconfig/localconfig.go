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

// Package localconfig parses the gateway's file-based configuration source.
// It is the file counterpart of the xDS feed: the same domain resources,
// declared in YAML.
package localconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/store"
)

// NormalizedLocalConfig is the parsed and validated local configuration.
type NormalizedLocalConfig struct {
	Binds     []store.Bind     `yaml:"binds"`
	Policies  []store.Policy   `yaml:"policies"`
	Backends  []store.Backend  `yaml:"backends"`
	Services  []store.Service  `yaml:"services"`
	Workloads []store.Workload `yaml:"workloads"`
}

// ParseFile reads and parses the config file at path.
func ParseFile(path string) (*NormalizedLocalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local config: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config content. Unknown keys are tolerated; resources
// without a name are not.
func Parse(data []byte) (*NormalizedLocalConfig, error) {
	var cfg NormalizedLocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse local config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *NormalizedLocalConfig) validate() error {
	for i, b := range c.Binds {
		if b.Name == "" {
			return fmt.Errorf("binds[%d]: name is required", i)
		}
	}
	for i, p := range c.Policies {
		if p.Name == "" {
			return fmt.Errorf("policies[%d]: name is required", i)
		}
	}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
	}
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
	}
	for i, w := range c.Workloads {
		if w.UID == "" {
			return fmt.Errorf("workloads[%d]: uid is required", i)
		}
	}
	return nil
}
