package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIHost string `env:"API_HOST" envDefault:"127.0.0.1"`
	APIPort string `env:"API_PORT"`
	Port    string `env:"PORT" envDefault:"9000"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	ReportModel  string `env:"REPORT_MODEL" envDefault:"gemini-2.0-flash-exp"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseAnonKey    string `env:"SUPABASE_KEY"`
	SupabaseDBURL      string `env:"SUPABASE_DB_URL"`

	StorageAccessKey string `env:"STORAGE_S3_ACCESS_KEY"`
	StorageSecretKey string `env:"STORAGE_S3_SECRET_KEY"`
	StorageRegion    string `env:"STORAGE_S3_REGION" envDefault:"us-east-1"`

	FFmpegPath string `env:"FFMPEG_PATH"`
	ChromePath string `env:"CHROME_PATH"`
	Headless   bool   `env:"HEADLESS" envDefault:"false"`
	BotName    string `env:"BOT_NAME" envDefault:"Sesly Bot"`

	WorkDir    string `env:"WORK_DIR" envDefault:"."`
	SegmentDir string `env:"SEGMENT_DIR"`
	LogDir     string `env:"LOG_DIR" envDefault:"logs"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	RecorderBin string `env:"RECORDER_BIN"`
	ReportBin   string `env:"REPORT_BIN"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"180s"`

	ReportBucket     string `env:"REPORT_BUCKET" envDefault:"reports"`
	TranscriptBucket string `env:"TRANSCRIPT_BUCKET" envDefault:"transcripts"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	APIHost  string
	APIPort  string
	LogLevel string
	WorkDir  string
	BotName  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.APIHost != "" {
		cfg.APIHost = overrides.APIHost
	}
	if overrides.APIPort != "" {
		cfg.APIPort = overrides.APIPort
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WorkDir != "" {
		cfg.WorkDir = overrides.WorkDir
	}
	if overrides.BotName != "" {
		cfg.BotName = overrides.BotName
	}

	// API_PORT wins over the legacy PORT variable.
	if cfg.APIPort == "" {
		cfg.APIPort = cfg.Port
	}
	if cfg.SegmentDir == "" {
		cfg.SegmentDir = filepath.Join(os.TempDir(), "sesly_segments")
	}

	return cfg, nil
}

// ServerURL returns the base URL of the engine's own HTTP API.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%s", c.APIHost, c.APIPort)
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.APIHost + ":" + c.APIPort
}

// SupabaseKey returns the service role key, falling back to the anon key.
func (c *Config) SupabaseKey() string {
	if c.SupabaseServiceKey != "" {
		return c.SupabaseServiceKey
	}
	return c.SupabaseAnonKey
}

// SupabaseEnabled reports whether uploads to Supabase are configured.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey() != ""
}

// S3Enabled reports whether the S3-protocol storage backend is configured.
func (c *Config) S3Enabled() bool {
	return c.SupabaseURL != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

// DataDir is where the job, command, and status documents live.
func (c *Config) DataDir() string {
	return filepath.Join(c.WorkDir, "data")
}

// TempReportsDir holds report and transcript artifacts before upload.
func (c *Config) TempReportsDir() string {
	return filepath.Join(c.WorkDir, "temp_reports")
}

// AbsLogDir resolves the log directory against the work directory.
func (c *Config) AbsLogDir() string {
	if filepath.IsAbs(c.LogDir) {
		return c.LogDir
	}
	return filepath.Join(c.WorkDir, c.LogDir)
}
