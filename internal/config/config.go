package config

import (
	"os"
	"strconv"
	"time"

	"github.com/davuth-chan/khmerscribe/internal/common"
)

// Config holds all application configuration.
type Config struct {
	Pipeline PipelineConfig
	Memory   MemoryConfig
	Render   RenderConfig
	Gemini   GeminiConfig
	Output   OutputConfig
}

// PipelineConfig holds the page-processing policy knobs.
type PipelineConfig struct {
	PageLimit       int           // documents with more pages are skipped whole
	RetryCeiling    int           // transient retries per variant before fallback
	PagePause       time.Duration // courtesy pause between pages
	DownloadTimeout time.Duration // per-document fetch deadline
	TiersFile       string        // optional JSON file overriding the tier topology
}

// MemoryConfig holds the resource guard water marks.
type MemoryConfig struct {
	HighWaterBytes uint64
	LowWaterBytes  uint64
	Cooldown       time.Duration
}

// RenderConfig holds the external rasterizer settings.
type RenderConfig struct {
	Pdftoppm string
	Pdfinfo  string
	DPI      int
}

// GeminiConfig holds the remote model transport settings.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OutputConfig holds the result sink targets.
type OutputConfig struct {
	CSVPath       string
	XLSXPath      string // empty disables the workbook snapshot
	CheckpointDSN string // sqlite path or postgres:// DSN
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			PageLimit:       getEnvAsInt("PAGE_LIMIT", 20),
			RetryCeiling:    getEnvAsInt("RETRY_CEILING", 3),
			PagePause:       getEnvAsDuration("PAGE_PAUSE", 1*time.Second),
			DownloadTimeout: getEnvAsDuration("DOWNLOAD_TIMEOUT", 2*time.Minute),
			TiersFile:       getEnv("TIERS_FILE", ""),
		},
		Memory: MemoryConfig{
			HighWaterBytes: getEnvAsUint64("MEM_HIGH_WATER_BYTES", 1<<30),
			LowWaterBytes:  getEnvAsUint64("MEM_LOW_WATER_BYTES", 768<<20),
			Cooldown:       getEnvAsDuration("MEM_COOLDOWN", 2*time.Second),
		},
		Render: RenderConfig{
			Pdftoppm: getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Pdfinfo:  getEnv("PDFINFO_BIN", "pdfinfo"),
			DPI:      getEnvAsInt("RENDER_DPI", 300),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GENAI_API_KEY", ""),
			BaseURL: getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout: getEnvAsDuration("GENAI_TIMEOUT", 120*time.Second),
		},
		Output: OutputConfig{
			CSVPath:       getEnv("OUTPUT_CSV", "all_results.csv"),
			XLSXPath:      getEnv("OUTPUT_XLSX", ""),
			CheckpointDSN: getEnv("CHECKPOINT_DSN", ""),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return common.NewAppError("CONFIG_ERROR", "GENAI_API_KEY is required", common.ErrInvalidInput)
	}
	if c.Pipeline.PageLimit <= 0 {
		return common.NewAppError("CONFIG_ERROR", "PAGE_LIMIT must be positive", common.ErrInvalidInput)
	}
	if c.Pipeline.RetryCeiling < 1 || c.Pipeline.RetryCeiling > 10 {
		return common.NewAppError("CONFIG_ERROR", "RETRY_CEILING must be between 1 and 10", common.ErrInvalidInput)
	}
	if c.Memory.LowWaterBytes >= c.Memory.HighWaterBytes {
		return common.NewAppError("CONFIG_ERROR", "MEM_LOW_WATER_BYTES must be below MEM_HIGH_WATER_BYTES", common.ErrInvalidInput)
	}
	if c.Output.CSVPath == "" {
		return common.NewAppError("CONFIG_ERROR", "OUTPUT_CSV is required", common.ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
