package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"GEMINI_API_KEY": "test-key",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.APIHost != "127.0.0.1" {
			t.Errorf("APIHost = %q, want 127.0.0.1", cfg.APIHost)
		}
		if cfg.APIPort != "9000" {
			t.Errorf("APIPort = %q, want 9000", cfg.APIPort)
		}
		if cfg.GeminiModel != "gemini-2.5-flash" {
			t.Errorf("GeminiModel = %q, want gemini-2.5-flash", cfg.GeminiModel)
		}
		if cfg.ReportModel != "gemini-2.0-flash-exp" {
			t.Errorf("ReportModel = %q, want gemini-2.0-flash-exp", cfg.ReportModel)
		}
		if cfg.BotName != "Sesly Bot" {
			t.Errorf("BotName = %q, want Sesly Bot", cfg.BotName)
		}
		if !cfg.Headless {
			t.Error("Headless = false, want true")
		}
		if cfg.SegmentDir != filepath.Join(os.TempDir(), "sesly_segments") {
			t.Errorf("SegmentDir = %q, want temp default", cfg.SegmentDir)
		}
		if cfg.ReportBucket != "reports" || cfg.TranscriptBucket != "transcripts" {
			t.Errorf("buckets = %q/%q, want reports/transcripts", cfg.ReportBucket, cfg.TranscriptBucket)
		}
	})

	t.Run("legacy_port_fallback", func(t *testing.T) {
		c2 := setEnvs(t, map[string]string{"PORT": "9300"})
		defer c2()
		os.Unsetenv("API_PORT")

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.APIPort != "9300" {
			t.Errorf("APIPort = %q, want 9300 (from PORT)", cfg.APIPort)
		}
	})

	t.Run("api_port_wins_over_port", func(t *testing.T) {
		c2 := setEnvs(t, map[string]string{"PORT": "9300", "API_PORT": "9500"})
		defer c2()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.APIPort != "9500" {
			t.Errorf("APIPort = %q, want 9500", cfg.APIPort)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		c2 := setEnvs(t, map[string]string{"API_HOST": "0.0.0.0", "LOG_LEVEL": "warn"})
		defer c2()

		cfg, err := Load(Overrides{
			EnvFile:  "nonexistent.env",
			APIHost:  "10.0.0.5",
			APIPort:  "8100",
			LogLevel: "debug",
			WorkDir:  "/tmp/sesly",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.APIHost != "10.0.0.5" {
			t.Errorf("APIHost = %q, want 10.0.0.5", cfg.APIHost)
		}
		if cfg.APIPort != "8100" {
			t.Errorf("APIPort = %q, want 8100", cfg.APIPort)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.WorkDir != "/tmp/sesly" {
			t.Errorf("WorkDir = %q, want /tmp/sesly", cfg.WorkDir)
		}
	})
}

func TestSupabaseKey(t *testing.T) {
	cfg := &Config{SupabaseAnonKey: "anon"}
	if got := cfg.SupabaseKey(); got != "anon" {
		t.Errorf("SupabaseKey = %q, want anon", got)
	}
	cfg.SupabaseServiceKey = "service"
	if got := cfg.SupabaseKey(); got != "service" {
		t.Errorf("SupabaseKey = %q, want service (role key wins)", got)
	}
}

func TestServerURL(t *testing.T) {
	cfg := &Config{APIHost: "127.0.0.1", APIPort: "9000"}
	if got := cfg.ServerURL(); got != "http://127.0.0.1:9000" {
		t.Errorf("ServerURL = %q", got)
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestDirHelpers(t *testing.T) {
	cfg := &Config{WorkDir: "/srv/bot", LogDir: "logs"}
	if got := cfg.DataDir(); got != "/srv/bot/data" {
		t.Errorf("DataDir = %q", got)
	}
	if got := cfg.TempReportsDir(); got != "/srv/bot/temp_reports" {
		t.Errorf("TempReportsDir = %q", got)
	}
	if got := cfg.AbsLogDir(); got != "/srv/bot/logs" {
		t.Errorf("AbsLogDir = %q", got)
	}
	cfg.LogDir = "/var/log/sesly"
	if got := cfg.AbsLogDir(); got != "/var/log/sesly" {
		t.Errorf("AbsLogDir = %q, want absolute kept", got)
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
