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
	"time"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/store"
)

// ConfigDumpResponse is the payload of GET /config_dump.
type ConfigDumpResponse struct {
	Timestamp time.Time               `json:"timestamp"`
	Gateway   GatewayDump             `json:"gateway"`
	Discovery store.DiscoverySnapshot `json:"discovery"`
}

// GatewayDump summarises the bind store contents.
type GatewayDump struct {
	TotalBinds    int `json:"totalBinds"`
	TotalBackends int `json:"totalBackends"`
	TotalPolicies int `json:"totalPolicies"`
	store.BindSnapshot
}

// DumpConfig dumps the current gateway configuration
func DumpConfig(stores *store.Stores) *ConfigDumpResponse {
	binds := stores.Binds.Snapshot()
	return &ConfigDumpResponse{
		Timestamp: time.Now(),
		Gateway: GatewayDump{
			TotalBinds:    len(binds.Binds),
			TotalBackends: len(binds.Backends),
			TotalPolicies: len(binds.Policies),
			BindSnapshot:  binds,
		},
		Discovery: stores.Discovery.Snapshot(),
	}
}
