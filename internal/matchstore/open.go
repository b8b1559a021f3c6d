package matchstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	FilePath    string
	RedisURL    string
	DatabaseURL string
}

// Open constructs the backend named by opts.Backend; empty means file.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendFile
	}
	switch backend {
	case BackendFile:
		fs, err := NewFileStore(opts.FilePath, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendMemory:
		logger.Warn("match_store_memory", zap.String("note", "records are lost on restart"))
		return NewMemoryStore(), nil
	case BackendRedis:
		rdb, err := DialRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(rdb, logger), nil
	case BackendPostgres:
		ps, err := NewPostgresStore(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
