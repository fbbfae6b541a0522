package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/securedrop/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Fields left
// out of the file keep their current values.
type JsonConfig struct {
	ServerURL             string         `json:"server_url"`
	RequestTimeout        timex.Duration `json:"request_timeout"`
	DefaultExpiresInHours int            `json:"default_expires_in_hours"`
	MaxDownloadBytes      int64          `json:"max_download_bytes"`
}

func parseJson(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.DefaultExpiresInHours != 0 {
		cfg.DefaultExpiresInHours = jc.DefaultExpiresInHours
	}
	if jc.MaxDownloadBytes != 0 {
		cfg.MaxDownloadBytes = jc.MaxDownloadBytes
	}
	return nil
}
