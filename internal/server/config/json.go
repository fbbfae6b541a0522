package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/flagx"
	"github.com/dmitrijs2005/securedrop/internal/timex"
)

// JsonConfig is the on-disk form of Config. Duration fields use
// timex.Duration, so both "5m" and integer nanoseconds are accepted.
// Bool fields are pointers so that an explicit false can be told apart
// from an absent key.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	PublicBaseURL    string `json:"public_base_url"`

	MetadataBackend string `json:"metadata_backend"`
	DatabaseDSN     string `json:"database_dsn"`

	BlobBackend    string `json:"blob_backend"`
	BlobRoot       string `json:"blob_root"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	CapabilitySecret string         `json:"capability_secret"`
	CapabilityTTL    timex.Duration `json:"capability_ttl"`

	MaxUploadBytes  int64          `json:"max_upload_bytes"`
	AllowedTTLHours []int          `json:"allowed_ttl_hours"`
	StoreTimeout    timex.Duration `json:"store_timeout"`

	EmbeddedWorker      *bool          `json:"embedded_worker"`
	CleanupPollInterval timex.Duration `json:"cleanup_poll_interval"`
	CleanupBatchSize    int            `json:"cleanup_batch_size"`
	CleanupLease        timex.Duration `json:"cleanup_lease"`
	CleanupMaxAttempts  int            `json:"cleanup_max_attempts"`
	ReaperInterval      timex.Duration `json:"reaper_interval"`
	OrphanGrace         timex.Duration `json:"orphan_grace"`

	LogBackend string `json:"log_backend"`
	LogLevel   string `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// config. Keys that are absent or zero in the file leave the current value
// untouched. An unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFile(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.MetadataBackend, c.MetadataBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BlobRoot, c.BlobRoot)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.CapabilitySecret, c.CapabilitySecret)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)

	setDuration(&config.CapabilityTTL, c.CapabilityTTL)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setDuration(&config.CleanupPollInterval, c.CleanupPollInterval)
	setDuration(&config.CleanupLease, c.CleanupLease)
	setDuration(&config.ReaperInterval, c.ReaperInterval)
	setDuration(&config.OrphanGrace, c.OrphanGrace)

	if c.MaxUploadBytes != 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if len(c.AllowedTTLHours) > 0 {
		config.AllowedTTLHours = c.AllowedTTLHours
	}
	if c.CleanupBatchSize != 0 {
		config.CleanupBatchSize = c.CleanupBatchSize
	}
	if c.CleanupMaxAttempts != 0 {
		config.CleanupMaxAttempts = c.CleanupMaxAttempts
	}
	if c.EmbeddedWorker != nil {
		config.EmbeddedWorker = *c.EmbeddedWorker
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
