package main

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is e2eectl's operator configuration: where the account lives
// on disk and how it should behave. Values are loaded from a YAML file
// when one is given, then any set environment variable overrides the
// corresponding field, matching the teacher's getenv-over-file layering.
type Config struct {
	UserID                  string `yaml:"user_id"`
	DeviceID                string `yaml:"device_id"`
	StorageDir              string `yaml:"storage_dir"`
	PickleKey               string `yaml:"pickle_key"`
	ShareWithIgnoredDevices bool   `yaml:"share_with_ignored_devices"`
	MaxOneTimeKeys          int    `yaml:"max_one_time_keys"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		StorageDir:              "/var/lib/e2eectl",
		ShareWithIgnoredDevices: true,
		MaxOneTimeKeys:          50,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.UserID = getenv("E2EE_USER_ID", cfg.UserID)
	cfg.DeviceID = getenv("E2EE_DEVICE_ID", cfg.DeviceID)
	cfg.StorageDir = getenv("E2EE_STORAGE_DIR", cfg.StorageDir)
	cfg.PickleKey = getenv("E2EE_PICKLE_KEY", cfg.PickleKey)
	cfg.ShareWithIgnoredDevices = getenvBool("E2EE_SHARE_WITH_IGNORED_DEVICES", cfg.ShareWithIgnoredDevices)
	cfg.MaxOneTimeKeys = getenvInt("E2EE_MAX_ONE_TIME_KEYS", cfg.MaxOneTimeKeys)
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
