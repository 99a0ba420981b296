package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

type (
	// Store is an in-memory core.DocumentStore. Documents are kept as JSON so callers never share memory with it.
	Store struct {
		sync.RWMutex
		tables   map[string]table
		counters map[string]int64

		// FailFunc, when set, is called before every operation; a non-nil error fails it. For tests.
		FailFunc func(op, collection, id string) error
	}

	table map[string]json.RawMessage
)

var _ core.DocumentStore = (*Store)(nil) // interface compliance check

// Operations passed to FailFunc
const (
	OpGet     = "get"
	OpList    = "list"
	OpCreate  = "create"
	OpSet     = "set"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpReserve = "reserve"
)

func Open() *Store {
	return &Store{
		tables:   make(map[string]table),
		counters: make(map[string]int64),
	}
}

func (s *Store) fail(op, collection, id string) error {
	if s.FailFunc != nil {
		return s.FailFunc(op, collection, id)
	}
	return nil
}

func (s *Store) table(collection string) table {
	t, ok := s.tables[collection]
	if !ok {
		t = make(table)
		s.tables[collection] = t
	}
	return t
}

func (s *Store) Get(ctx context.Context, collection, id string, dst interface{}) error {
	if err := s.fail(OpGet, collection, id); err != nil {
		return err
	}
	s.RLock()
	defer s.RUnlock()

	data, ok := s.tables[collection][id]
	if !ok {
		return core.ErrDocNotFound
	}
	return errors.Wrap(json.Unmarshal(data, dst), "decoding document")
}

func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	if err := s.fail(OpList, collection, ""); err != nil {
		return nil, err
	}
	s.RLock()
	defer s.RUnlock()

	t := s.tables[collection]
	docs := make([]core.Document, 0, len(t))
	for id, data := range t {
		docs = append(docs, core.Document{ID: id, Data: append(json.RawMessage(nil), data...)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, doc interface{}) error {
	if err := s.fail(OpCreate, collection, id); err != nil {
		return err
	}
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	t := s.table(collection)
	if _, ok := t[id]; ok {
		return core.ErrDocExists
	}
	t[id] = append(json.RawMessage(nil), data...)
	return nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc interface{}) error {
	if err := s.fail(OpSet, collection, id); err != nil {
		return err
	}
	data, err := core.EncodeDocument(doc)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	s.table(collection)[id] = append(json.RawMessage(nil), data...)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := s.fail(OpUpdate, collection, id); err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()

	t := s.table(collection)
	data, ok := t[id]
	if !ok {
		return core.ErrDocNotFound
	}
	merged, err := core.MergeDocument(data, fields)
	if err != nil {
		return err
	}
	t[id] = merged
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.fail(OpDelete, collection, id); err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	delete(s.tables[collection], id)
	return nil
}

func (s *Store) Reserve(ctx context.Context, counter string, floor, n int64) (int64, error) {
	if err := s.fail(OpReserve, counter, ""); err != nil {
		return 0, err
	}
	s.Lock()
	defer s.Unlock()

	cur := s.counters[counter]
	if cur < floor {
		cur = floor
	}
	first := cur + 1
	s.counters[counter] = cur + n
	return first, nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.RLock()
	defer s.RUnlock()
	return len(s.tables[collection])
}

// Reset drops all documents and counters.
func (s *Store) Reset() {
	s.Lock()
	defer s.Unlock()
	s.tables = make(map[string]table)
	s.counters = make(map[string]int64)
	s.FailFunc = nil
}
