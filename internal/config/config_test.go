package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults_Stock(t *testing.T) {
	t.Parallel()

	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Router.Host != DefaultRouterHost || cfg.Router.User != DefaultRouterUser || cfg.Router.Port != 22 {
		t.Fatalf("router defaults not set: %+v", cfg.Router)
	}
	if cfg.Collector.MaxInterfaces != 2 {
		t.Fatalf("max_interfaces=%d", cfg.Collector.MaxInterfaces)
	}
	if cfg.Collector.CapacityMbps != 1000 {
		t.Fatalf("capacity=%v", cfg.Collector.CapacityMbps)
	}
	if cfg.Collector.InterfaceMap["wan"] != "eth0" || cfg.Collector.InterfaceMap["wwan"] != "apcli0" {
		t.Fatalf("interface_map=%v", cfg.Collector.InterfaceMap)
	}
	if cfg.Collector.SampleInterval != time.Second {
		t.Fatalf("sample_interval=%v", cfg.Collector.SampleInterval)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_LocalTransportKeepsHostEmpty(t *testing.T) {
	t.Parallel()

	cfg := Config{Router: RouterConfig{Transport: TransportLocal}}
	ApplyDefaults(&cfg)
	if cfg.Router.Host != "" {
		t.Fatalf("host=%q", cfg.Router.Host)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"transport": func(c *Config) { c.Router.Transport = "telnet" },
		"capacity":  func(c *Config) { c.Collector.CapacityMbps = -5 },
		"override":  func(c *Config) { c.Collector.CapacityOverrides = map[string]float64{"wan": 0} },
		"max":       func(c *Config) { c.Collector.MaxInterfaces = -1 },
		"ping":      func(c *Config) { c.Collector.PingTimeoutSec = 9 },
	}
	for name, mutate := range cases {
		cfg := Config{}
		ApplyDefaults(&cfg)
		mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCapacity_Override(t *testing.T) {
	t.Parallel()

	c := CollectorConfig{CapacityMbps: 1000, CapacityOverrides: map[string]float64{"wwan": 150}}
	if got := c.Capacity("WWAN"); got != 150 {
		t.Fatalf("wwan=%v", got)
	}
	if got := c.Capacity("wan"); got != 1000 {
		t.Fatalf("wan=%v", got)
	}
}

func TestLoad_ParsesDurationsAndMap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wanwatch.yaml")
	data := "" +
		"router:\n" +
		"  host: 10.0.0.1\n" +
		"collector:\n" +
		"  sample_interval: 2s\n" +
		"  interface_map:\n" +
		"    wan: eth1\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.SampleInterval != 2*time.Second {
		t.Fatalf("sample_interval=%v", cfg.Collector.SampleInterval)
	}
	if cfg.Collector.InterfaceMap["wan"] != "eth1" {
		t.Fatalf("interface_map=%v", cfg.Collector.InterfaceMap)
	}
	if _, ok := cfg.Collector.InterfaceMap["wwan"]; ok {
		t.Fatalf("explicit map should replace defaults: %v", cfg.Collector.InterfaceMap)
	}
}

func TestSave_Writes0600(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wanwatch.yaml")
	if err := Save(path, Config{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("WANWATCH_ROUTER_PASSWORD", "s3cret")
	t.Setenv("WANWATCH_MAX_INTERFACES", "3")

	var cfg Config
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Router.Password != "s3cret" {
		t.Fatalf("password=%q", cfg.Router.Password)
	}
	if cfg.Collector.MaxInterfaces != 3 {
		t.Fatalf("max_interfaces=%d", cfg.Collector.MaxInterfaces)
	}
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Setenv("WANWATCH_ROUTER_PORT", "ssh")

	var cfg Config
	if err := ApplyEnv(&cfg); err == nil {
		t.Fatal("expected error")
	}
}
