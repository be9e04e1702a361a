package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	DataDir        string
	MaxFileSize    int64
	UploadDelay    time.Duration
	TokenSecret    string
	TokenTTL       time.Duration
	SweepInterval  time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 1024*1024*1024), // 1GB
		UploadDelay:    getEnvMillis("UPLOAD_DELAY_MS", 0),
		TokenSecret:    getEnv("TOKEN_SECRET", "filevault-dev-secret"),
		TokenTTL:       getEnvDuration("TOKEN_TTL_HOURS", 24*time.Hour),
		SweepInterval:  getEnvDuration("SWEEP_INTERVAL_HOURS", 1*time.Hour),
		RateLimitRPS:   getEnvFloat64("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}
}

// UploadsDir is where blobs live, keyed by file id.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// IndexDir holds one <username>_files.json per user.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "user_files_db")
}

// UsersPath is the user directory file.
func (c *Config) UsersPath() string {
	return filepath.Join(c.DataDir, "users.json")
}

// RefCountsPath is the blob reference ledger.
func (c *Config) RefCountsPath() string {
	return filepath.Join(c.DataDir, "refcounts.json")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}
