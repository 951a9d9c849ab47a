// Package store persists generated files and layout records.
//
// Disk saves image and JSON output. The layout record stores (FileStore,
// RedisStore, MongoStore) implement layout.Store so a layout can be assembled
// or re-projected by id after the process that built it has exited.
package store

import (
	"context"
	"io"

	"github.com/ironsheep/artgrid/internal/config"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
)

// Store is a layout record store that holds a connection.
type Store interface {
	layout.Store
	io.Closer
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileStore(cfg.Dir)
	case config.DriverRedis:
		return NewRedisStore(ctx, cfg.URL)
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.URL, cfg.Database, cfg.Collection)
	default:
		return nil, errors.Input("unknown store driver %q", cfg.Driver)
	}
}
