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

package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "ai_gateway"
)

var (
	once     sync.Once
	registry *prometheus.Registry

	// XDSConnectionTerminationsTotal counts every xDS stream iteration by the
	// reason it ended: ConnectionError, Reconnect, Error, Complete.
	XDSConnectionTerminationsTotal *prometheus.CounterVec

	XDSConnectionState      prometheus.Gauge
	XDSResponsesTotal       *prometheus.CounterVec
	XDSResourcesReceived    *prometheus.CounterVec
	XDSResourcesRejected    *prometheus.CounterVec
	XDSPendingDemands       prometheus.Gauge
	ConfigReloadsTotal      *prometheus.CounterVec
	LLMRequestsTotal        *prometheus.CounterVec
	LLMTimeToFirstTokenSecs *prometheus.HistogramVec
	LLMTokensTotal          *prometheus.CounterVec

	Up          prometheus.Gauge
	MemoryBytes *prometheus.GaugeVec
)

// initMetrics initializes all metric variables
func initMetrics() {
	XDSConnectionTerminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xds_connection_terminations_total",
			Help:      "Total number of xDS stream terminations by reason",
		},
		[]string{"reason"},
	)

	XDSConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "xds_connection_state",
			Help:      "Current xDS connection state (1=connected, 0=disconnected)",
		},
	)

	XDSResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xds_responses_total",
			Help:      "Total number of delta discovery responses received",
		},
		[]string{"type_url"},
	)

	XDSResourcesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xds_resources_received_total",
			Help:      "Total number of resources received over xDS",
		},
		[]string{"type_url"},
	)

	XDSResourcesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xds_resources_rejected_total",
			Help:      "Total number of resources rejected (NACKed) by handlers",
		},
		[]string{"type_url"},
	)

	XDSPendingDemands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "xds_pending_demands",
			Help:      "Number of outstanding on-demand resource fetches",
		},
	)

	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of local configuration reloads by status",
		},
		[]string{"status"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests proxied by provider, model and status",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTimeToFirstTokenSecs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_time_to_first_token_seconds",
			Help:      "Time from request dispatch until the first streamed token",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"provider", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total number of tokens by provider and kind (prompt or completion)",
		},
		[]string{"provider", "kind"},
	)

	Up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Gateway liveness indicator (1=up, 0=down)",
		},
	)

	MemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"},
	)
}

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		XDSConnectionTerminationsTotal,
		XDSConnectionState,
		XDSResponsesTotal,
		XDSResourcesReceived,
		XDSResourcesRejected,
		XDSPendingDemands,
		ConfigReloadsTotal,
		LLMRequestsTotal,
		LLMTimeToFirstTokenSecs,
		LLMTokensTotal,
		Up,
		MemoryBytes,
	)

	Up.Set(1)
}

// Init initializes the metrics registry with all collectors.
// Safe to call multiple times; only the first call does work.
func Init() *prometheus.Registry {
	once.Do(func() {
		initMetrics()
		initRegistry()
	})

	return registry
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}

// UpdateMemoryMetrics updates memory-related metrics
func UpdateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryBytes.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryBytes.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryBytes.WithLabelValues("stack").Set(float64(m.StackInuse))
}
