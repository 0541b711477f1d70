package accounts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil), mr
}

func TestCacheFetchBalanceStoresValue(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	var calls int32
	loader := func(ctx context.Context) (Balance, error) {
		atomic.AddInt32(&calls, 1)
		return Balance{AccountID: id, Balance: dec("12.50")}, nil
	}

	first, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)
	second, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.True(t, first.Balance.Equal(second.Balance))
	require.True(t, mr.Exists(balanceKey(id)))
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	current := dec("1")
	loader := func(ctx context.Context) (Balance, error) {
		return Balance{AccountID: id, Balance: current}, nil
	}

	_, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)
	current = dec("2")
	require.NoError(t, cache.Invalidate(context.Background(), id))
	require.False(t, mr.Exists(balanceKey(id)))

	got, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(dec("2")))
}

func TestCacheDiscardsFillRacingInvalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	committed := dec("0")
	var calls int32
	loader := func(ctx context.Context) (Balance, error) {
		snapshot := committed
		if atomic.AddInt32(&calls, 1) == 1 {
			committed = dec("100")
			require.NoError(t, cache.Invalidate(ctx, id))
		}
		return Balance{AccountID: id, Balance: snapshot}, nil
	}

	first, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)
	require.True(t, first.Balance.IsZero())
	require.False(t, mr.Exists(balanceKey(id)))

	second, err := cache.FetchBalance(context.Background(), id, loader)
	require.NoError(t, err)
	require.True(t, second.Balance.Equal(dec("100")))
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.True(t, mr.Exists(balanceKey(id)))
}

func TestCacheFillOutlivesCallerCancel(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := cache.FetchBalance(ctx, id, func(loadCtx context.Context) (Balance, error) {
		cancel()
		if err := loadCtx.Err(); err != nil {
			return Balance{}, err
		}
		return Balance{AccountID: id, Balance: dec("7")}, nil
	})

	require.NoError(t, err)
	require.True(t, got.Balance.Equal(dec("7")))
	require.True(t, mr.Exists(balanceKey(id)))
}

func TestCacheDoesNotStoreLoaderErrors(t *testing.T) {
	cache, mr := newTestCache(t)
	id := uuid.New()
	boom := errors.New("no such account")

	_, err := cache.FetchBalance(context.Background(), id, func(ctx context.Context) (Balance, error) {
		return Balance{}, boom
	})

	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists(balanceKey(id)))
}

func TestCacheFallsBackWhenRedisDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()
	id := uuid.New()

	got, err := cache.FetchBalance(context.Background(), id, func(ctx context.Context) (Balance, error) {
		return Balance{AccountID: id, Balance: dec("3")}, nil
	})

	require.NoError(t, err)
	require.True(t, got.Balance.Equal(dec("3")))
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache
	id := uuid.New()

	got, err := cache.FetchBalance(context.Background(), id, func(ctx context.Context) (Balance, error) {
		return Balance{AccountID: id}, nil
	})

	require.NoError(t, err)
	require.Equal(t, id, got.AccountID)
	require.NoError(t, cache.Invalidate(context.Background(), id))
}

func TestCacheConcurrentMissesShareLoadedValue(t *testing.T) {
	cache, _ := newTestCache(t)
	id := uuid.New()
	var calls int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (Balance, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Balance{AccountID: id, Balance: dec("5")}, nil
	}

	results := make([]Balance, 5)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.FetchBalance(context.Background(), id, loader)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Less(t, atomic.LoadInt32(&calls), int32(len(results)))
	for _, got := range results {
		require.True(t, got.Balance.Equal(dec("5")))
	}
}

func TestServiceInvalidatesAfterUpdate(t *testing.T) {
	cache, mr := newTestCache(t)
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "10", true)
	svc := newTestService(ledger, cache)
	ctx := context.Background()

	before, err := svc.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(balanceKey(acc.ID)))

	_, err = svc.UpdateBalance(ctx, acc.ID, dec("5"))
	require.NoError(t, err)
	require.False(t, mr.Exists(balanceKey(acc.ID)))

	after, err := svc.GetBalance(ctx, acc.ID)
	require.NoError(t, err)
	require.True(t, before.Balance.Equal(dec("10")))
	require.True(t, after.Balance.Equal(dec("15")))
}
