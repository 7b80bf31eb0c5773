package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("DATA_SOURCE_MODE", "rest"); err != nil {
		t.Fatalf("Failed to set DATA_SOURCE_MODE: %v", err)
	}
	if err := os.Setenv("SCAN_MIN_VALUE_USD", "500000"); err != nil {
		t.Fatalf("Failed to set SCAN_MIN_VALUE_USD: %v", err)
	}
	if err := os.Setenv("EXPLORER_REQUEST_TIMEOUT", "45s"); err != nil {
		t.Fatalf("Failed to set EXPLORER_REQUEST_TIMEOUT: %v", err)
	}
	if err := os.Setenv("CHAIN_ETHEREUM_EXPLORER_URL", "https://explorer.test"); err != nil {
		t.Fatalf("Failed to set CHAIN_ETHEREUM_EXPLORER_URL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("DATA_SOURCE_MODE")
		_ = os.Unsetenv("SCAN_MIN_VALUE_USD")
		_ = os.Unsetenv("EXPLORER_REQUEST_TIMEOUT")
		_ = os.Unsetenv("CHAIN_ETHEREUM_EXPLORER_URL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.DataSource.Mode != "rest" {
		t.Errorf("DataSource.Mode = %v, want %v", cfg.DataSource.Mode, "rest")
	}

	if cfg.Scan.MinValueUSD != 500000 {
		t.Errorf("Scan.MinValueUSD = %v, want %v", cfg.Scan.MinValueUSD, 500000.0)
	}

	if cfg.Explorer.RequestTimeout != 45*time.Second {
		t.Errorf("Explorer.RequestTimeout = %v, want %v", cfg.Explorer.RequestTimeout, 45*time.Second)
	}

	if cfg.Chains.ExplorerURLs["ethereum"] != "https://explorer.test" {
		t.Errorf("Chains.ExplorerURLs[ethereum] = %v, want %v", cfg.Chains.ExplorerURLs["ethereum"], "https://explorer.test")
	}
}

func TestLoadConfigRejectsInvalidMode(t *testing.T) {
	if err := os.Setenv("DATA_SOURCE_MODE", "carrier-pigeon"); err != nil {
		t.Fatalf("Failed to set DATA_SOURCE_MODE: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("DATA_SOURCE_MODE")
	}()

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() expected error for invalid mode, got nil")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataSource: DataSourceConfig{Mode: "auto"},
			Explorer:   ExplorerConfig{RequestsPerSecond: 5},
			Scan: ScanConfig{
				MinValueUSD:          1000,
				MaxPagesPerAddress:   3,
				MaxConcurrentChains:  5,
				ResponsePageSize:     100,
				MaxTransfersPerChain: 200,
			},
			Chains: ChainsConfig{Enabled: []string{"ethereum"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.DataSource.Mode = "smoke-signals" }, true},
		{"negative threshold", func(c *Config) { c.Scan.MinValueUSD = -1 }, true},
		{"zero pages", func(c *Config) { c.Scan.MaxPagesPerAddress = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Scan.MaxConcurrentChains = 0 }, true},
		{"zero page size", func(c *Config) { c.Scan.ResponsePageSize = 0 }, true},
		{"zero explorer rate", func(c *Config) { c.Explorer.RequestsPerSecond = 0 }, true},
		{"no chains", func(c *Config) { c.Chains.Enabled = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns boolean when valid",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_BOOL_INVALID",
			defaultValue: true,
			envValue:     "yep",
			want:         true,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOTSET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue float64
		envValue     string
		want         float64
	}{
		{
			name:         "returns float when valid",
			key:          "TEST_FLOAT",
			defaultValue: 1.5,
			envValue:     "2.5",
			want:         2.5,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_FLOAT_INVALID",
			defaultValue: 1.5,
			envValue:     "many",
			want:         1.5,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_FLOAT_NOTSET",
			defaultValue: 1.5,
			envValue:     "",
			want:         1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsFloat(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	if err := os.Setenv("TEST_SLICE", "ethereum, base ,,arbitrum"); err != nil {
		t.Fatalf("Failed to set env var: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("TEST_SLICE")
	}()

	got := getEnvAsSlice("TEST_SLICE", nil)
	want := []string{"ethereum", "base", "arbitrum"}
	if len(got) != len(want) {
		t.Fatalf("getEnvAsSlice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getEnvAsSlice()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if def := getEnvAsSlice("TEST_SLICE_NOTSET", []string{"fallback"}); len(def) != 1 || def[0] != "fallback" {
		t.Errorf("getEnvAsSlice() default = %v, want [fallback]", def)
	}
}
