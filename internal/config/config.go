// Package config loads server configuration from environment variables
// (with .env support via godotenv, the way the teacher's main.go does),
// applying the defaults named in the design's configuration table.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable named in the design's configuration section.
type Config struct {
	ServerPort            int
	ServerHost            string
	MaxSessions           int
	IdleTimeoutMinutes    int
	ScrollbackLines       int
	AuthEnabled           bool
	AuthAllowedUsers      []string
	DataDir               string
}

// Load reads a .env file if present (missing is not an error, matching the
// teacher's "Warning: .env file not found" tolerance) and then layers
// environment variables over the defaults below.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf(".env file not found, using process environment only")
	}

	cfg := &Config{
		ServerPort:         4220,
		ServerHost:         "0.0.0.0",
		MaxSessions:        10,
		IdleTimeoutMinutes: 0,
		ScrollbackLines:    10000,
		AuthEnabled:        false,
		AuthAllowedUsers:   nil,
		DataDir:            defaultDataDir(),
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = n
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.ServerHost = v
	}
	if v := os.Getenv("SESSIONS_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("SESSIONS_IDLE_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutMinutes = n
		}
	}
	if v := os.Getenv("PERSISTENCE_SCROLLBACK_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScrollbackLines = n
		}
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.AuthEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUTH_ALLOWED_USERS"); v != "" {
		cfg.AuthAllowedUsers = strings.Split(v, ",")
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".termhub"
	}
	return home + "/.termhub"
}
