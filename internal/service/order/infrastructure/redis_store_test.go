package infrastructure

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/pkg/redis"
	"orderflow/internal/service/order/domain"
)

func newTestStore(t *testing.T) (*RedisOrderStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisOrderStore(redis.Wrap(rdb))
	require.NoError(t, err)
	return store, mr
}

func newTestOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("Ana", []string{"book"}, 42.5, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return o
}

func TestRedisOrderStore_CreateAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	o := newTestOrder(t)

	require.NoError(t, store.Create(ctx, o))

	t.Run("should store the record under order:<id>", func(t *testing.T) {
		raw, err := mr.Get("order:" + o.ID)
		require.NoError(t, err)

		var fields map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &fields))
		assert.Equal(t, "Ana", fields["customer_name"])
		assert.Equal(t, []interface{}{"book"}, fields["items"])
		assert.Equal(t, 42.5, fields["total"])
		assert.Equal(t, "RECEIVED", fields["status"])
		assert.NotContains(t, fields, "order_id")
		assert.Contains(t, fields, "created_at")
		assert.Contains(t, fields, "updated_at")
	})

	t.Run("should read back every field", func(t *testing.T) {
		got, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Equal(t, o.CustomerName, got.CustomerName)
		assert.Equal(t, o.Items, got.Items)
		assert.Equal(t, o.Total, got.Total)
		assert.Equal(t, domain.StatusReceived, got.Status)
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("should never overwrite an existing order", func(t *testing.T) {
		dup := *o
		dup.CustomerName = "Eve"
		err := store.Create(ctx, &dup)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		got, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana", got.CustomerName)
	})
}

func TestRedisOrderStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	for _, id := range []string{"not-real", ""} {
		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "id %q", id)
	}
}

func TestRedisOrderStore_GetRejectsUndefinedStatus(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("order:bad", `{"customer_name":"Ana","items":["book"],"total":1,"status":"DONE"}`))

	_, err := store.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.ErrorIs(t, err, domain.ErrCorruptRecord)
}

func TestRedisOrderStore_CorruptRecords(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("order:garbled", `{"customer_name":`))

	t.Run("should report undecodable JSON as a corrupt record", func(t *testing.T) {
		_, err := store.Get(ctx, "garbled")
		assert.ErrorIs(t, err, domain.ErrCorruptRecord)
		assert.NotErrorIs(t, err, domain.ErrUnavailable)
	})

	t.Run("should refuse to advance a corrupt record", func(t *testing.T) {
		_, err := store.Advance(ctx, "garbled", domain.StatusProcessing)
		assert.ErrorIs(t, err, domain.ErrCorruptRecord)

		raw, getErr := mr.Get("order:garbled")
		require.NoError(t, getErr)
		assert.Equal(t, `{"customer_name":`, raw)
	})
}

func TestRedisOrderStore_Advance(t *testing.T) {
	ctx := context.Background()

	t.Run("should walk RECEIVED -> PROCESSING -> PROCESSED keeping other fields", func(t *testing.T) {
		store, _ := newTestStore(t)
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))

		got, err := store.Advance(ctx, o.ID, domain.StatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, got.Status)

		got, err = store.Advance(ctx, o.ID, domain.StatusProcessed)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessed, got.Status)

		stored, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessed, stored.Status)
		assert.Equal(t, "Ana", stored.CustomerName)
		assert.Equal(t, []string{"book"}, stored.Items)
		assert.Equal(t, 42.5, stored.Total)
	})

	t.Run("should treat same-status advance as a no-op", func(t *testing.T) {
		store, mr := newTestStore(t)
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))
		before, err := mr.Get("order:" + o.ID)
		require.NoError(t, err)

		got, err := store.Advance(ctx, o.ID, domain.StatusReceived)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReceived, got.Status)

		after, err := mr.Get("order:" + o.ID)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("should never regress a processed order", func(t *testing.T) {
		store, _ := newTestStore(t)
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))
		_, err := store.Advance(ctx, o.ID, domain.StatusProcessing)
		require.NoError(t, err)
		_, err = store.Advance(ctx, o.ID, domain.StatusProcessed)
		require.NoError(t, err)

		current, err := store.Advance(ctx, o.ID, domain.StatusProcessing)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		require.NotNil(t, current)
		assert.Equal(t, domain.StatusProcessed, current.Status)

		stored, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessed, stored.Status)
	})

	t.Run("should refuse to skip PROCESSING", func(t *testing.T) {
		store, _ := newTestStore(t)
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))

		_, err := store.Advance(ctx, o.ID, domain.StatusProcessed)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("should report missing orders", func(t *testing.T) {
		store, _ := newTestStore(t)
		_, err := store.Advance(ctx, "not-real", domain.StatusProcessing)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("should stay monotonic under concurrent redeliveries", func(t *testing.T) {
		store, _ := newTestStore(t)
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))

		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, to := range []domain.Status{domain.StatusProcessing, domain.StatusProcessed} {
					if _, err := store.Advance(ctx, o.ID, to); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
		stored, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessed, stored.Status)
	})
}

func TestRedisOrderStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.Get(ctx, "any")
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	err = store.Create(ctx, newTestOrder(t))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestRedisOrderStore_Scan(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 5; i++ {
		o := newTestOrder(t)
		require.NoError(t, store.Create(ctx, o))
		want = append(want, o.ID)
	}
	require.NoError(t, mr.Set("unrelated", "x"))
	require.NoError(t, mr.Set("order:corrupt", "not json"))

	var got []string
	err := store.Scan(ctx, func(o *domain.Order) error {
		got = append(got, o.ID)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)
}
