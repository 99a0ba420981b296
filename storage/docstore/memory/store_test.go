package memstore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := Open()

	require.NoError(t, s.Create(ctx, "things", "b", doc{Name: "B", Count: 1}))
	require.NoError(t, s.Create(ctx, "things", "a", doc{Name: "A", Count: 2}))
	assert.Equal(t, core.ErrDocExists, s.Create(ctx, "things", "a", doc{Name: "again"}))

	var got doc
	require.NoError(t, s.Get(ctx, "things", "a", &got))
	assert.Equal(t, doc{Name: "A", Count: 2}, got)
	assert.Equal(t, core.ErrDocNotFound, s.Get(ctx, "things", "zzz", &got))

	docs, err := s.List(ctx, "things")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)

	require.NoError(t, s.Update(ctx, "things", "a", map[string]interface{}{"count": 5}))
	require.NoError(t, s.Get(ctx, "things", "a", &got))
	assert.Equal(t, doc{Name: "A", Count: 5}, got)
	assert.Equal(t, core.ErrDocNotFound, s.Update(ctx, "things", "zzz", map[string]interface{}{"count": 1}))

	require.NoError(t, s.Set(ctx, "things", "a", doc{Name: "AA"}))
	require.NoError(t, s.Get(ctx, "things", "a", &got))
	assert.Equal(t, doc{Name: "AA"}, got)

	require.NoError(t, s.Delete(ctx, "things", "a"))
	require.NoError(t, s.Delete(ctx, "things", "a"), "deleting a missing doc is a noop")
	assert.Equal(t, 1, s.Len("things"))
}

func TestStore_Reserve(t *testing.T) {
	ctx := context.Background()
	s := Open()

	tests := []struct {
		name      string
		floor, n  int64
		wantFirst int64
	}{
		{name: "fresh counter", floor: 0, n: 1, wantFirst: 1},
		{name: "next", floor: 0, n: 1, wantFirst: 2},
		{name: "floor raises counter", floor: 10, n: 3, wantFirst: 11},
		{name: "floor below counter is ignored", floor: 4, n: 1, wantFirst: 14},
		{name: "zero n only raises floor", floor: 20, n: 0, wantFirst: 21},
		{name: "after raise", floor: 0, n: 1, wantFirst: 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := s.Reserve(ctx, "seq", tt.floor, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirst, first)
		})
	}
}

func TestStore_FailFunc(t *testing.T) {
	ctx := context.Background()
	s := Open()
	boom := errors.New("boom")
	s.FailFunc = func(op, collection, id string) error {
		if op == OpDelete && id == "x" {
			return boom
		}
		return nil
	}
	require.NoError(t, s.Set(ctx, "things", "x", doc{Name: "X"}))
	assert.Equal(t, boom, s.Delete(ctx, "things", "x"))
	assert.Equal(t, 1, s.Len("things"))
}
