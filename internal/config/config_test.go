package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"ADAPTER_HOST": "shopfloor.local",
		"ADAPTER_PORT": "7879",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":5000" {
			t.Errorf("HTTPAddr = %q, want :5000", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.BufferSize != 131072 {
			t.Errorf("BufferSize = %d, want 131072", cfg.BufferSize)
		}
		if cfg.DeviceName != "DefaultDevice" {
			t.Errorf("DeviceName = %q, want DefaultDevice", cfg.DeviceName)
		}
		if cfg.AdapterHeartbeat.Seconds() != 10 {
			t.Errorf("AdapterHeartbeat = %v, want 10s", cfg.AdapterHeartbeat)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			AdapterHost: "override.local",
			AdapterPort: 9999,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.AdapterHost != "override.local" {
			t.Errorf("AdapterHost = %q, want override.local", cfg.AdapterHost)
		}
		if cfg.AdapterPort != 9999 {
			t.Errorf("AdapterPort = %d, want 9999", cfg.AdapterPort)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.AdapterHost != "shopfloor.local" {
			t.Errorf("AdapterHost = %q, want shopfloor.local", cfg.AdapterHost)
		}
		if cfg.AdapterPort != 7879 {
			t.Errorf("AdapterPort = %d, want 7879", cfg.AdapterPort)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.AdapterHost != "shopfloor.local" {
			t.Errorf("AdapterHost = %q, want env value", cfg.AdapterHost)
		}
	})
}

func TestValidateRequiresIngestSource(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"ADAPTER_HOST":          "",
		"MQTT_ADAPTER_BROKER_URL": "",
		"UPSTREAM_BASE_URL":     "",
	})
	defer cleanup()
	os.Unsetenv("ADAPTER_HOST")
	os.Unsetenv("MQTT_ADAPTER_BROKER_URL")
	os.Unsetenv("UPSTREAM_BASE_URL")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.AdapterHost = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate error when no ingest source configured")
	}
}

func TestValidateRejectsZeroBuffer(t *testing.T) {
	cfg := &Config{AdapterHost: "localhost", BufferSize: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate error for zero BufferSize")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
