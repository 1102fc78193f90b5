package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	AppName = "easycal"

	configFileName = "config.json5"
	dbFileName     = "easycal.db"
	logFileName    = "easycal.log"
)

// Dir returns the configuration directory. EASYCAL_CONFIG_DIR wins over the
// platform default.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("EASYCAL_CONFIG_DIR")); v != "" {
		return v, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	return filepath.Join(base, AppName), nil
}

// EnsureDir creates the configuration directory if needed.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	return dir, nil
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, configFileName), nil
}

func DefaultDatabasePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, dbFileName), nil
}

func LogFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "logs", logFileName), nil
}
