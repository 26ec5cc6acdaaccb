package objectstore

import (
	"context"
	"errors"

	"github.com/adrianmcphee/smartermodel"
)

// Bucket is a flat key/value object store. Keys use forward slashes on
// every implementation.
type Bucket interface {
	// Get returns ErrObjectNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every key below prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// ErrObjectNotFound is returned by Bucket.Get for missing keys. It wraps
// smartermodel.ErrNotFound.
var ErrObjectNotFound = smartermodel.WithContext(smartermodel.ErrNotFound, map[string]interface{}{
	"source": "objectstore",
})

func isNotFound(err error) bool {
	return errors.Is(err, smartermodel.ErrNotFound)
}

// BucketConfig selects and configures a Bucket implementation.
type BucketConfig struct {
	Type            string `mapstructure:"type"`   // "filesystem", "s3", "minio" or "gcs"
	Bucket          string `mapstructure:"bucket"` // bucket name or base directory
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	CredentialsFile string `mapstructure:"credentials_file"` // GCS service account, ADC when empty
}

// Validate checks that the fields the selected type needs are set.
func (c BucketConfig) Validate() error {
	if c.Type == "" {
		return smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"reason": "bucket type is required",
		})
	}
	if c.Bucket == "" {
		return smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
			"field":  "Bucket",
			"reason": "bucket name or base path is required",
		})
	}

	switch c.Type {
	case "s3":
		if c.Region == "" && c.Endpoint == "" {
			return smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
				"field":  "Region/Endpoint",
				"reason": "s3 requires either Region or Endpoint",
			})
		}
	case "minio":
		if c.Endpoint == "" {
			return smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
				"field":  "Endpoint",
				"reason": "minio requires an endpoint",
			})
		}
	case "filesystem", "gcs":
	default:
		return smartermodel.WithContext(smartermodel.ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"value":  c.Type,
			"reason": "unknown bucket type",
		})
	}
	return nil
}

// OpenBucket builds the Bucket described by cfg.
func OpenBucket(ctx context.Context, cfg BucketConfig) (Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "s3":
		return NewS3BucketFromConfig(ctx, cfg)
	case "minio":
		return NewMinIOBucket(cfg), nil
	case "gcs":
		return NewGCSBucket(ctx, cfg)
	default:
		return NewFilesystemBucket(cfg.Bucket), nil
	}
}
