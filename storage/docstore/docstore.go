// Package docstore opens the configured core.DocumentStore.
package docstore

import (
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	memstore "github.com/trezcool/registrar/storage/docstore/memory"
	pgstore "github.com/trezcool/registrar/storage/docstore/postgres"
	redisstore "github.com/trezcool/registrar/storage/docstore/redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the store selected by `conf.Store.Engine` and a closer for its connection.
func Open(conf *core.Config) (core.DocumentStore, io.Closer, error) {
	switch conf.Store.Engine {
	case core.StoreMemory, "":
		return memstore.Open(), nopCloser{}, nil
	case core.StorePostgres:
		db, err := pgstore.Open(conf)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.NewStore(db), db, nil
	case core.StoreRedis:
		client, err := redisstore.Open(conf)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewStore(client, conf.Store.RedisPrefix), client, nil
	default:
		return nil, nil, errors.Errorf("unknown store engine %q", conf.Store.Engine)
	}
}
