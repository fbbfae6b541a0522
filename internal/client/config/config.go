package config

import "time"

// Config holds runtime settings for the securedrop CLI.
//
// Fields:
//   - ServerURL: base URL of the lifecycle API; share links are built on it.
//   - RequestTimeout: bound on each API call and on the ciphertext transfer.
//   - DefaultExpiresInHours: expiry used when upload is given none.
//   - MaxDownloadBytes: largest ciphertext download accepts; matches the
//     server's upload limit, which already counts the GCM tag.
type Config struct {
	ServerURL             string
	RequestTimeout        time.Duration
	DefaultExpiresInHours int
	MaxDownloadBytes      int64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8080"
	c.RequestTimeout = 60 * time.Second
	c.DefaultExpiresInHours = 24
	c.MaxDownloadBytes = 5 * 1024 * 1024
}

// LoadConfig applies defaults and then overlays the JSON file at path, if
// path is not empty.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
