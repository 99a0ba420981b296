package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/registrar/core"
)

// maxTxRetries bounds optimistic Update retries when the watched hash changes under us.
const maxTxRetries = 10

var reserveScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if cur < floor then cur = floor end
redis.call('SET', KEYS[1], cur + tonumber(ARGV[2]))
return cur + 1
`)

// Store is a core.DocumentStore keeping one redis hash per collection: `<prefix>:docs:<collection>`.
type Store struct {
	client *redis.Client
	prefix string
}

var _ core.DocumentStore = (*Store)(nil) // interface compliance check

// Open connects to the configured redis server.
func Open(conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Store.RedisAddr,
		Password: conf.Store.RedisPassword,
		DB:       conf.Store.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) hashKey(collection string) string {
	return s.prefix + ":docs:" + collection
}

func (s *Store) counterKey(name string) string {
	return s.prefix + ":counters:" + name
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	data, err := s.client.HGet(ctx, s.hashKey(collection), id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return core.ErrDocNotFound
		}
		return errors.Wrapf(err, "getting %s/%s", collection, id)
	}
	return errors.Wrap(json.Unmarshal(data, dst), "decoding document")
}

func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	resultMap, err := s.client.HGetAll(ctx, s.hashKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", collection)
	}
	docs := make([]core.Document, 0, len(resultMap))
	for id, value := range resultMap {
		docs = append(docs, core.Document{ID: id, Data: json.RawMessage(value)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, s.hashKey(collection), id, string(data)).Result()
	if err != nil {
		return errors.Wrapf(err, "creating %s/%s", collection, id)
	}
	if !created {
		return core.ErrDocExists
	}
	return nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}
	err = s.client.HSet(ctx, s.hashKey(collection), id, string(data)).Err()
	return errors.Wrapf(err, "setting %s/%s", collection, id)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	key := s.hashKey(collection)
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, key, id).Bytes()
		if err != nil {
			if err == redis.Nil {
				return core.ErrDocNotFound
			}
			return err
		}
		merged, err := core.MergeDocument(data, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, string(merged))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err == core.ErrDocNotFound {
			return err
		}
		return errors.Wrapf(err, "updating %s/%s", collection, id)
	}
	return errors.Errorf("updating %s/%s: too much contention", collection, id)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := s.client.HDel(ctx, s.hashKey(collection), id).Err()
	return errors.Wrapf(err, "deleting %s/%s", collection, id)
}

func (s *Store) Reserve(ctx context.Context, counter string, floor, n int64) (int64, error) {
	first, err := reserveScript.Run(ctx, s.client, []string{s.counterKey(counter)}, floor, n).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "reserving %d from counter %s", n, counter)
	}
	return first, nil
}

// Flush deletes every key under the store prefix.
func (s *Store) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "flushing store")
		}
	}
	return errors.Wrap(iter.Err(), "scanning store keys")
}
