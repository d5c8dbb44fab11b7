package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the process-level configuration of the risk engine server.
// Simulation parameters are not configured here; they arrive per request as a
// sim.Config.
type AppConfig struct {
	DataPath            string
	LogDir              string
	HistoryDBPath       string
	DefaultPreset       string
	EnableMermaidCharts bool
}

// Load resolves configuration from .env files and environment variables.
// The .env next to the binary wins over the working directory, which matters
// for MCP servers launched from arbitrary client cwds.
func Load() (*AppConfig, error) {
	exeDir := ""
	if exePath, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file in working directory, relying on environment")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	cfg := &AppConfig{
		DataPath:            dataPath,
		LogDir:              getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs")),
		HistoryDBPath:       getEnv("HISTORY_DB", filepath.Join(dataPath, "history.db")),
		DefaultPreset:       getEnv("DEFAULT_PRESET", "balanced"),
		EnableMermaidCharts: getEnvBool("ENABLE_MERMAID_CHARTS", false),
	}

	if err := os.MkdirAll(filepath.Dir(cfg.HistoryDBPath), 0755); err != nil {
		log.Warn().Err(err).Str("path", cfg.HistoryDBPath).Msg("Failed to create history directory")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}
