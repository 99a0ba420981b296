package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

const (
	getQuery     = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	listQuery    = `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`
	createQuery  = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO NOTHING`
	setQuery     = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	updateQuery  = `UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	deleteQuery  = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	reserveQuery = `INSERT INTO counters (name, value) VALUES ($1, $2::bigint + $3::bigint) ON CONFLICT (name) DO UPDATE SET value = GREATEST(counters.value, $2::bigint) + $3::bigint RETURNING value`
)

// Store is a core.DocumentStore backed by a postgres `documents` jsonb table.
type Store struct {
	db *sqlx.DB
}

var _ core.DocumentStore = (*Store)(nil) // interface compliance check

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type docRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	var data []byte
	if err := s.db.GetContext(ctx, &data, getQuery, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrDocNotFound
		}
		return errors.Wrapf(err, "getting %s/%s", collection, id)
	}
	return errors.Wrap(json.Unmarshal(data, dst), "decoding document")
}

func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, listQuery, collection); err != nil {
		return nil, errors.Wrapf(err, "listing %s", collection)
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, core.Document{ID: r.ID, Data: json.RawMessage(r.Data)})
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, createQuery, collection, id, string(data))
	if err != nil {
		return errors.Wrapf(err, "creating %s/%s", collection, id)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "reading affected rows")
	} else if n == 0 {
		return core.ErrDocExists
	}
	return nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, setQuery, collection, id, string(data))
	return errors.Wrapf(err, "setting %s/%s", collection, id)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	data, err := core.EncodeDocument(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, updateQuery, collection, id, string(data))
	if err != nil {
		return errors.Wrapf(err, "updating %s/%s", collection, id)
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "reading affected rows")
	} else if n == 0 {
		return core.ErrDocNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, deleteQuery, collection, id)
	return errors.Wrapf(err, "deleting %s/%s", collection, id)
}

func (s *Store) Reserve(ctx context.Context, counter string, floor, n int64) (int64, error) {
	var last int64
	if err := s.db.GetContext(ctx, &last, reserveQuery, counter, floor, n); err != nil {
		return 0, errors.Wrapf(err, "reserving %d from counter %s", n, counter)
	}
	return last - n + 1, nil
}
