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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables used to configure the gateway
	EnvPrefix = "APIP_GW_"
)

type Config struct {
	Gateway       Gateway       `koanf:"gateway"`
	TracingConfig TracingConfig `koanf:"tracing"`
}

// Gateway represents the complete AI gateway configuration
type Gateway struct {
	Proxy       ProxyConfig       `koanf:"proxy"`
	Admin       AdminConfig       `koanf:"admin"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	XDS         XDSConfig         `koanf:"xds"`
	LocalConfig LocalConfigConfig `koanf:"local_config"`
	LLM         LLMConfig         `koanf:"llm"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ProxyConfig holds the LLM proxy HTTP server configuration
type ProxyConfig struct {
	// Port is the port for the chat-completions HTTP server
	Port int `koanf:"port"`

	// ReadTimeout is the HTTP server read timeout
	ReadTimeout time.Duration `koanf:"read_timeout"`
}

// AdminConfig holds admin HTTP server configuration
type AdminConfig struct {
	// Enabled indicates whether the admin server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the admin HTTP server
	Port int `koanf:"port"`

	// AllowedIPs is a list of IP addresses allowed to access the admin API
	AllowedIPs []string `koanf:"allowed_ips"`
}

// MetricsConfig holds Prometheus metrics server configuration
type MetricsConfig struct {
	// Enabled indicates whether the metrics server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the metrics HTTP server
	Port int `koanf:"port"`
}

// XDSConfig holds the dynamic configuration client settings
type XDSConfig struct {
	// Enabled indicates whether the xDS client should be started
	Enabled bool `koanf:"enabled"`

	// ServerAddress is the xDS server address (e.g., "localhost:15010")
	ServerAddress string `koanf:"server_address"`

	// GatewayName is the gateway this instance serves; it is reported in the
	// node role as "{namespace}~{gateway_name}"
	GatewayName string `koanf:"gateway_name"`

	// Namespace overrides the POD_NAMESPACE environment variable when set
	Namespace string `koanf:"namespace"`

	// OnDemand enables wildcard-less subscriptions with per-resource fetch
	OnDemand bool `koanf:"on_demand"`

	// InitialReconnectDelay is the backoff after the first failure
	InitialReconnectDelay time.Duration `koanf:"initial_reconnect_delay"`

	// MaxReconnectDelay caps the exponential backoff
	MaxReconnectDelay time.Duration `koanf:"max_reconnect_delay"`

	// TLS configuration
	TLS XDSTLSConfig `koanf:"tls"`
}

// XDSTLSConfig holds TLS configuration for the xDS connection
type XDSTLSConfig struct {
	// Enabled indicates whether to use TLS
	Enabled bool `koanf:"enabled"`

	// CertPath is the path to the TLS certificate file
	CertPath string `koanf:"cert_path"`

	// KeyPath is the path to the TLS private key file
	KeyPath string `koanf:"key_path"`

	// CAPath is the path to the CA certificate for server verification
	CAPath string `koanf:"ca_path"`
}

// LocalConfigConfig holds file-based configuration settings
type LocalConfigConfig struct {
	// Path is the path to the local gateway config YAML file. When set the
	// file is watched and reloaded on change.
	Path string `koanf:"path"`
}

// LLMConfig holds provider settings for the chat-completions path
type LLMConfig struct {
	// Provider is the upstream provider name; currently only "anthropic"
	Provider string `koanf:"provider"`

	// Host overrides the provider default API host
	Host string `koanf:"host"`

	// Model forces a model regardless of what the client requested
	Model string `koanf:"model"`

	// APIKey is the upstream provider API key
	APIKey string `koanf:"api_key"`

	// RequestTimeout is the timeout for upstream provider calls
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Level can be "debug", "info", "warn", "error"
	Level string `koanf:"level"`

	// Format can be "json" or "text"
	Format string `koanf:"format"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	// Enabled toggles tracing on/off
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (host:port)
	Endpoint string `koanf:"endpoint"`

	// Insecure indicates whether to use an insecure connection (no TLS)
	Insecure bool `koanf:"insecure"`

	// ServiceVersion is the service version reported to the tracing backend
	ServiceVersion string `koanf:"service_version"`

	// BatchTimeout is the export batch timeout
	BatchTimeout time.Duration `koanf:"batch_timeout"`

	// MaxExportBatchSize is the maximum batch size for exports
	MaxExportBatchSize int `koanf:"max_export_batch_size"`

	// SamplingRate is the ratio of requests to sample (0.0 to 1.0)
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Load loads configuration from file, environment variables, and defaults
// Priority: Environment variables > Config file > Defaults
//
// Duration fields accept Go-style duration strings (e.g., "10ms", "15s").
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	// Load config file if path is provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load environment variables with the prefix
	// Double underscores (__) preserve literal underscores in field names
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)

		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into pre-populated config struct with defaults
	// Koanf will merge: fields from file/env overwrite defaults, unset fields keep defaults
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config struct with default configuration values
func defaultConfig() *Config {
	return &Config{
		Gateway: Gateway{
			Proxy: ProxyConfig{
				Port:        8080,
				ReadTimeout: 30 * time.Second,
			},
			Admin: AdminConfig{
				Enabled:    true,
				Port:       9002,
				AllowedIPs: []string{"127.0.0.1", "::1"},
			},
			Metrics: MetricsConfig{
				Enabled: false,
				Port:    9003,
			},
			XDS: XDSConfig{
				Enabled:               false,
				ServerAddress:         "",
				GatewayName:           "ai-gateway",
				OnDemand:              false,
				InitialReconnectDelay: 10 * time.Millisecond,
				MaxReconnectDelay:     15 * time.Second,
				TLS: XDSTLSConfig{
					Enabled: false,
				},
			},
			LocalConfig: LocalConfigConfig{
				Path: "",
			},
			LLM: LLMConfig{
				Provider:       "anthropic",
				Host:           "",
				Model:          "",
				APIKey:         "",
				RequestTimeout: 120 * time.Second,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
		TracingConfig: TracingConfig{
			Enabled:            false,
			Endpoint:           "otel-collector:4317",
			Insecure:           true,
			ServiceVersion:     "1.0.0",
			BatchTimeout:       1 * time.Second,
			MaxExportBatchSize: 512,
			SamplingRate:       1.0,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	gw := &c.Gateway

	if gw.Proxy.Port <= 0 || gw.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy.port: %d (must be 1-65535)", gw.Proxy.Port)
	}

	// Validate admin config
	if gw.Admin.Enabled {
		if gw.Admin.Port <= 0 || gw.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin.port: %d (must be 1-65535)", gw.Admin.Port)
		}
		if gw.Admin.Port == gw.Proxy.Port {
			return fmt.Errorf("admin.port cannot be same as proxy.port")
		}
		if len(gw.Admin.AllowedIPs) == 0 {
			return fmt.Errorf("admin.allowed_ips cannot be empty when admin is enabled")
		}
	}

	// Validate metrics config
	if gw.Metrics.Enabled {
		if gw.Metrics.Port <= 0 || gw.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics.port: %d (must be 1-65535)", gw.Metrics.Port)
		}
		if gw.Metrics.Port == gw.Proxy.Port {
			return fmt.Errorf("metrics.port cannot be same as proxy.port")
		}
		if gw.Admin.Enabled && gw.Metrics.Port == gw.Admin.Port {
			return fmt.Errorf("metrics.port cannot be same as admin.port")
		}
	}

	// At least one configuration source must be active
	if !gw.XDS.Enabled && gw.LocalConfig.Path == "" {
		return fmt.Errorf("either xds.enabled or local_config.path must be set")
	}

	if gw.XDS.Enabled {
		if err := c.validateXDSConfig(); err != nil {
			return err
		}
	}

	switch gw.LLM.Provider {
	case "anthropic":
	default:
		return fmt.Errorf("unknown llm.provider: %s (must be 'anthropic')", gw.LLM.Provider)
	}
	if gw.LLM.RequestTimeout <= 0 {
		return fmt.Errorf("llm.request_timeout must be positive")
	}

	// Validate logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[gw.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", gw.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[gw.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", gw.Logging.Format)
	}

	if c.TracingConfig.Enabled {
		if c.TracingConfig.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.TracingConfig.BatchTimeout <= 0 {
			return fmt.Errorf("tracing.batch_timeout must be positive")
		}
		if c.TracingConfig.MaxExportBatchSize <= 0 {
			return fmt.Errorf("tracing.max_export_batch_size must be positive")
		}
		if c.TracingConfig.SamplingRate <= 0.0 || c.TracingConfig.SamplingRate > 1.0 {
			return fmt.Errorf("tracing.sampling_rate must be > 0.0 and <= 1.0, got %f", c.TracingConfig.SamplingRate)
		}
	}

	return nil
}

// validateXDSConfig validates xDS configuration
func (c *Config) validateXDSConfig() error {
	xds := &c.Gateway.XDS

	if xds.ServerAddress == "" {
		return fmt.Errorf("xds.server_address is required when xDS is enabled")
	}

	if xds.GatewayName == "" {
		return fmt.Errorf("xds.gateway_name is required when xDS is enabled")
	}

	if xds.InitialReconnectDelay <= 0 {
		return fmt.Errorf("xds.initial_reconnect_delay must be positive")
	}

	if xds.MaxReconnectDelay < xds.InitialReconnectDelay {
		return fmt.Errorf("xds.max_reconnect_delay must be >= xds.initial_reconnect_delay")
	}

	if xds.TLS.Enabled {
		if xds.TLS.CertPath == "" {
			return fmt.Errorf("xds.tls.cert_path is required when TLS is enabled")
		}
		if xds.TLS.KeyPath == "" {
			return fmt.Errorf("xds.tls.key_path is required when TLS is enabled")
		}
		if xds.TLS.CAPath == "" {
			return fmt.Errorf("xds.tls.ca_path is required when TLS is enabled")
		}
	}

	return nil
}
