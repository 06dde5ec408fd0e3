// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package credentials

import (
	"fmt"

	xglog "github.com/ManuGH/goldenclean/internal/log"
)

// Options selects and parameterises a store backend.
type Options struct {
	Backend string // memory|file|sqlite|badger|redis
	Path    string // file path (file, sqlite) or directory (badger)
	Redis   RedisConfig
}

// Open creates a Store for the configured backend.
func Open(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "file"
	}

	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return OpenFileStore(opts.Path)
	case "sqlite":
		return OpenSqliteStore(opts.Path)
	case "badger":
		return OpenBadgerStore(opts.Path)
	case "redis":
		return OpenRedisStore(opts.Redis, xglog.WithComponent("credentials"))
	default:
		return nil, fmt.Errorf("unknown credential store backend: %s", backend)
	}
}
