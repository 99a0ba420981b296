package redisstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
)

// setup connects to REDIS_ADDR; the tests are skipped without a server.
func setup(t *testing.T) *Store {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	s := NewStore(client, "registrar-test-"+uuid.New().String())
	t.Cleanup(func() {
		_ = s.Flush(context.Background())
		_ = client.Close()
	})
	return s
}

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	require.NoError(t, s.Create(ctx, "sections", "b", doc{Name: "B"}))
	require.NoError(t, s.Create(ctx, "sections", "a", doc{Name: "A"}))
	assert.Equal(t, core.ErrDocExists, s.Create(ctx, "sections", "a", doc{Name: "A2"}))

	var got doc
	require.NoError(t, s.Get(ctx, "sections", "a", &got))
	assert.Equal(t, "A", got.Name)
	assert.Equal(t, core.ErrDocNotFound, s.Get(ctx, "sections", "nope", &got))

	require.NoError(t, s.Update(ctx, "sections", "a", map[string]interface{}{"count": 4}))
	require.NoError(t, s.Get(ctx, "sections", "a", &got))
	assert.Equal(t, doc{Name: "A", Count: 4}, got)
	assert.Equal(t, core.ErrDocNotFound, s.Update(ctx, "sections", "nope", map[string]interface{}{"count": 1}))

	docs, err := s.List(ctx, "sections")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)

	require.NoError(t, s.Delete(ctx, "sections", "a"))
	require.NoError(t, s.Delete(ctx, "sections", "a"))
	assert.Equal(t, core.ErrDocNotFound, s.Get(ctx, "sections", "a", &got))
}

func TestStore_Reserve(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	first, err := s.Reserve(ctx, "studentSeq", 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(6), first)

	first, err = s.Reserve(ctx, "studentSeq", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), first)

	first, err = s.Reserve(ctx, "studentSeq", 20, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(21), first)
}
