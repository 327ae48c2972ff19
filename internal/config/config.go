// Package config loads the agent's construction-time configuration from
// a flat JSON file, matching the teacher's pkg/config: no env-var
// layering or hierarchical merge, just encoding/json onto a single
// struct. See SPEC_FULL.md §9.3 for why this stays on encoding/json
// rather than a templated config library.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is every field spec.md §6 lists as constructor-time
// configuration for the FIB agent.
type Config struct {
	NodeName string `json:"node_name"`

	// FibAgentAddr is the platform FIB agent's dial address (host:port),
	// renamed from Open/R's bare ThriftPort now that the transport is a
	// plain TCP dial rather than a fixed localhost Thrift port.
	FibAgentAddr string `json:"fib_agent_addr"`
	ClientID     int32  `json:"client_id"`

	Dryrun               bool `json:"dryrun"`
	EnableFibSync        bool `json:"enable_fib_sync"`
	EnableSegmentRouting bool `json:"enable_segment_routing"`
	EnableOrderedFib     bool `json:"enable_ordered_fib"`

	ColdStartDurationSec    int64 `json:"cold_start_duration_sec"`
	HealthCheckIntervalMs   int64 `json:"health_check_interval_ms"`
	PlatformSyncIntervalSec int64 `json:"platform_sync_interval_sec"`

	BackoffInitialMs int64 `json:"backoff_initial_ms"`
	BackoffMaxMs     int64 `json:"backoff_max_ms"`

	MaxConvergenceMs int64 `json:"max_convergence_ms"`
	PerfBufferSize   int   `json:"perf_buffer_size"`

	StorageFilePath    string `json:"storage_file_path"`
	StoreBackoffInitMs int64  `json:"store_backoff_init_ms"`
	StoreBackoffMaxMs  int64  `json:"store_backoff_max_ms"`

	DialTimeoutMs     int64 `json:"dial_timeout_ms"`
	ResponseTimeoutMs int64 `json:"response_timeout_ms"`

	GNMIPort int `json:"gnmi_port"`

	// MonitorURL and the Decision/LinkMonitor publisher URLs are kept as
	// plain strings for parity with spec.md §6's external collaborators;
	// this agent's own in-process channel wiring (cmd/fibagentd) doesn't
	// dial them, but a future out-of-process transport would.
	MonitorURL        string `json:"monitor_url"`
	DecisionPubURL    string `json:"decision_pub_url"`
	LinkMonitorPubURL string `json:"link_monitor_pub_url"`

	Mock MockConfig `json:"mock_upstream"`
}

// MockConfig configures the demo Decision/LinkMonitor publishers in
// pkg/mockupstream, used by cmd/fibagentd when no real upstream is
// wired in.
type MockConfig struct {
	Enabled    bool `json:"enabled"`
	RouteCount int  `json:"route_count"`
}

// Load reads and decodes a Config from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a Config usable for local development and the demo
// mock upstream, matching every non-zero default spec.md §9 calls out
// (8ms/4096ms backoff, etc).
func Default() *Config {
	return &Config{
		NodeName:                "node1",
		FibAgentAddr:            "127.0.0.1:60099",
		ClientID:                786, // Open/R's kFibId_
		EnableFibSync:           true,
		EnableSegmentRouting:    true,
		ColdStartDurationSec:    2,
		HealthCheckIntervalMs:   10000,
		PlatformSyncIntervalSec: 60,
		BackoffInitialMs:        8,
		BackoffMaxMs:            4096,
		MaxConvergenceMs:        60000,
		PerfBufferSize:          10,
		StorageFilePath:         "/tmp/fibagentd.json",
		StoreBackoffInitMs:      100,
		StoreBackoffMaxMs:       2000,
		DialTimeoutMs:           1000,
		ResponseTimeoutMs:       5000,
		GNMIPort:                50099,
		Mock: MockConfig{
			Enabled:    true,
			RouteCount: 8,
		},
	}
}

// ColdStartDuration is ColdStartDurationSec as a time.Duration.
func (c *Config) ColdStartDuration() time.Duration {
	return time.Duration(c.ColdStartDurationSec) * time.Second
}

// HealthCheckInterval is HealthCheckIntervalMs as a time.Duration.
func (c *Config) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalMs) * time.Millisecond
}

// PlatformSyncInterval is PlatformSyncIntervalSec as a time.Duration.
func (c *Config) PlatformSyncInterval() time.Duration {
	return time.Duration(c.PlatformSyncIntervalSec) * time.Second
}

// BackoffInitial is BackoffInitialMs as a time.Duration.
func (c *Config) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax is BackoffMaxMs as a time.Duration.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// StoreBackoffInit is StoreBackoffInitMs as a time.Duration.
func (c *Config) StoreBackoffInit() time.Duration {
	return time.Duration(c.StoreBackoffInitMs) * time.Millisecond
}

// StoreBackoffMax is StoreBackoffMaxMs as a time.Duration.
func (c *Config) StoreBackoffMax() time.Duration {
	return time.Duration(c.StoreBackoffMaxMs) * time.Millisecond
}

// DialTimeout is DialTimeoutMs as a time.Duration.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMs) * time.Millisecond
}

// ResponseTimeout is ResponseTimeoutMs as a time.Duration.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutMs) * time.Millisecond
}
