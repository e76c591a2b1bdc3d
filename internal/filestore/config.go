package filestore

import (
	"strings"

	"github.com/koustreak/dataagent/internal/errs"
)

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds the connection settings for an object storage backend.
type Config struct {
	Provider Provider `mapstructure:"provider"`

	// Endpoint is host:port, e.g. "localhost:9000" for local MinIO.
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`

	// Region is for region-aware backends. Leave empty for MinIO.
	Region string `mapstructure:"region"`

	// Bucket holds the snapshots.
	Bucket string `mapstructure:"bucket"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "dataagent",
	}
}

// Validate checks the fields every provider needs.
func (c *Config) Validate() error {
	if c == nil {
		return errs.New(errs.ErrKindInvalidInput, "filestore config is nil")
	}
	if c.Provider != "" && c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported filestore provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errs.New(errs.ErrKindInvalidInput, "filestore endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errs.New(errs.ErrKindInvalidInput, "filestore bucket is required")
	}
	return nil
}
