package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/config"
)

// NewBackend builds the backend named in cfg. rdb and storage are only
// required by the redis and object backends.
func NewBackend(ctx context.Context, cfg config.CheckpointConfig, rdb *redis.Client, storage client.ObjectStorage) (Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileBackend(cfg.Path, cfg.PartialDir)
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis checkpoint backend requires a redis client")
		}
		return NewRedisBackend(rdb, cfg.RedisKey), nil
	case "sql":
		return OpenSQL(ctx, cfg.SQLDriver, cfg.SQLDSN)
	case "object":
		if storage == nil {
			return nil, fmt.Errorf("object checkpoint backend requires object storage")
		}
		return NewObjectBackend(storage, cfg.ObjectPrefix), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
