package mailbox

import (
	"fmt"
	"io/fs"

	"github.com/redis/go-redis/v9"
)

// BackendType selects where slots are stored.
type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendS3    BackendType = "s3"
	BackendRedis BackendType = "redis"
)

// Config describes one mailbox backend.
type Config struct {
	Backend BackendType

	// Namespace, when set, scopes all slots under a sub-path of the backend.
	Namespace string

	Local *LocalConfig
	S3    *S3Config
	Redis *RedisConfig
}

type LocalConfig struct {
	Dir      string
	FileMode fs.FileMode
}

type S3Config struct {
	Bucket string
	Prefix string
	Client S3Client
}

type RedisConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string
}

// New builds the Store described by config.
func New(config Config) (Store, error) {
	var store Store

	switch config.Backend {
	case BackendLocal, "":
		if config.Local == nil || config.Local.Dir == "" {
			return nil, fmt.Errorf("directory is required for local backend")
		}
		store = NewLocalStore(config.Local.Dir, config.Local.FileMode)

	case BackendS3:
		if config.S3 == nil || config.S3.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if config.S3.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		store = NewS3Store(config.S3.Bucket, config.S3.Prefix, config.S3.Client)

	case BackendRedis:
		if config.Redis == nil || config.Redis.Client == nil {
			return nil, fmt.Errorf("redis client is required for redis backend")
		}
		store = NewRedisStore(config.Redis.Client, config.Redis.KeyPrefix)

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Backend)
	}

	if config.Namespace != "" {
		if err := ValidateSlot(config.Namespace); err != nil {
			return nil, fmt.Errorf("namespace: %w", err)
		}
		store = NewPrefixedStore(store, config.Namespace)
	}
	return store, nil
}
