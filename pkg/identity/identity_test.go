package identity_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/polkagate/poolkit/pkg/chain"
	"github.com/polkagate/poolkit/pkg/identity"
	"github.com/polkagate/poolkit/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedResolver struct {
	infos []identity.AccountInfo
	calls int
}

func (r *fixedResolver) Lookup(_ context.Context, _ []string) ([]identity.AccountInfo, error) {
	r.calls++
	return r.infos, nil
}

func alice() identity.AccountInfo {
	return identity.AccountInfo{AccountID: "5Alice", Identity: &identity.Identity{Display: "Alice"}}
}

func TestCache_NeedsFetchOnlyWhenEraDiffers(t *testing.T) {
	ctx := context.Background()
	c := identity.NewCache(kv.NewMemoryStore(), "westend", nil)

	need, err := c.NeedsFetch(ctx, 10)
	require.NoError(t, err)
	assert.True(t, need, "nothing saved yet")

	wrote, err := c.Save(ctx, identity.Saved{EraIndex: 10, AccountsInfo: []identity.AccountInfo{alice()}})
	require.NoError(t, err)
	assert.True(t, wrote)

	need, err = c.NeedsFetch(ctx, 10)
	require.NoError(t, err)
	assert.False(t, need)

	need, err = c.NeedsFetch(ctx, 11)
	require.NoError(t, err)
	assert.True(t, need)
}

func TestCache_SaveRules(t *testing.T) {
	ctx := context.Background()
	c := identity.NewCache(kv.NewMemoryStore(), "westend", nil)

	wrote, err := c.Save(ctx, identity.Saved{EraIndex: 10})
	require.NoError(t, err)
	assert.False(t, wrote, "empty list is never saved")

	_, err = c.Save(ctx, identity.Saved{EraIndex: 10, AccountsInfo: []identity.AccountInfo{alice()}})
	require.NoError(t, err)

	wrote, err = c.Save(ctx, identity.Saved{EraIndex: 10, AccountsInfo: []identity.AccountInfo{{AccountID: "5Bob"}}})
	require.NoError(t, err)
	assert.False(t, wrote, "same era is not replaced")

	saved, err := c.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "5Alice", saved.AccountsInfo[0].AccountID)
}

func TestCache_ChainsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	westend := identity.NewCache(store, "westend", nil)
	kusama := identity.NewCache(store, "kusama", nil)

	_, err := westend.Save(ctx, identity.Saved{EraIndex: 3, AccountsInfo: []identity.AccountInfo{alice()}})
	require.NoError(t, err)

	saved, err := kusama.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestCache_GetUsesSavedWithinEra(t *testing.T) {
	ctx := context.Background()
	sim := chain.NewSimulator()
	require.NoError(t, sim.SetQuery(chain.QueryCurrentEra, 7))

	c := identity.NewCache(kv.NewMemoryStore(), "westend", nil)
	r := &fixedResolver{infos: []identity.AccountInfo{alice()}}

	got, err := c.Get(ctx, sim, r, []string{"5Alice"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = c.Get(ctx, sim, r, []string{"5Alice"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, r.calls)

	require.NoError(t, sim.SetQuery(chain.QueryCurrentEra, 8))
	_, err = c.Get(ctx, sim, r, []string{"5Alice"})
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)
}

func TestCache_GetKeepsSavedWhenFetchIsEmpty(t *testing.T) {
	ctx := context.Background()
	sim := chain.NewSimulator()
	require.NoError(t, sim.SetQuery(chain.QueryCurrentEra, 8))

	c := identity.NewCache(kv.NewMemoryStore(), "westend", nil)
	_, err := c.Save(ctx, identity.Saved{EraIndex: 7, AccountsInfo: []identity.AccountInfo{alice()}})
	require.NoError(t, err)

	got, err := c.Get(ctx, sim, &fixedResolver{}, []string{"5Alice"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Identity.Display)
}

func TestCurrentEra_Unavailable(t *testing.T) {
	_, err := identity.CurrentEra(context.Background(), chain.NewSimulator())
	assert.Error(t, err)
}

func TestQueue_Lookup(t *testing.T) {
	sim := chain.NewSimulator()
	require.NoError(t, sim.SetQuery(chain.QueryIdentityOf, identity.Identity{Display: "Alice"}, "5Alice"))

	q := identity.NewQueue(sim, nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := q.Lookup(ctx, []string{"5Alice", "5Bob"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].Identity.Display)
	assert.Equal(t, "5Bob", got[1].AccountID)
	assert.Nil(t, got[1].Identity)
}

func TestQueue_ConcurrentLookupsAreCorrelated(t *testing.T) {
	sim := chain.NewSimulator()
	ids := []string{"5A", "5B", "5C", "5D"}
	for _, id := range ids {
		require.NoError(t, sim.SetQuery(chain.QueryIdentityOf, identity.Identity{Display: "name-" + id}, id))
	}

	q := identity.NewQueue(sim, nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		id   string
		info []identity.AccountInfo
		err  error
	}
	results := make(chan result, len(ids))
	for _, id := range ids {
		go func(id string) {
			info, err := q.Lookup(ctx, []string{id})
			results <- result{id: id, info: info, err: err}
		}(id)
	}
	for range ids {
		r := <-results
		require.NoError(t, r.err)
		require.Len(t, r.info, 1)
		assert.Equal(t, r.id, r.info[0].AccountID)
		assert.Equal(t, "name-"+r.id, r.info[0].Identity.Display)
	}
}

func TestQueue_LookupAfterClose(t *testing.T) {
	q := identity.NewQueue(chain.NewSimulator(), nil)
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Close())

	_, err := q.Lookup(context.Background(), []string{"5A"})
	assert.ErrorIs(t, err, identity.ErrQueueClosed)
}

// stallingAPI blocks identity queries until the caller's context ends.
type stallingAPI struct {
	*chain.Simulator
	entered chan struct{}
}

func newStallingAPI() *stallingAPI {
	return &stallingAPI{Simulator: chain.NewSimulator(), entered: make(chan struct{}, 1)}
}

func (a *stallingAPI) Query(ctx context.Context, path string, args ...any) (json.RawMessage, error) {
	select {
	case a.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueue_LookupBeforeStart(t *testing.T) {
	q := identity.NewQueue(chain.NewSimulator(), nil)
	defer q.Close()

	_, err := q.Lookup(context.Background(), []string{"5A"})
	assert.ErrorIs(t, err, identity.ErrQueueClosed)
}

func TestQueue_LookupHonoursContext(t *testing.T) {
	q := identity.NewQueue(newStallingAPI(), nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Lookup(ctx, []string{"5A"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseFailsPendingLookups(t *testing.T) {
	api := newStallingAPI()
	q := identity.NewQueue(api, nil)
	require.NoError(t, q.Start(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := q.Lookup(context.Background(), []string{"5A"})
		errs <- err
	}()

	select {
	case <-api.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the lookup")
	}
	require.NoError(t, q.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, identity.ErrQueueClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending lookup was not released by Close")
	}
}

func TestQueue_StartAfterClose(t *testing.T) {
	q := identity.NewQueue(chain.NewSimulator(), nil)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Start(context.Background()), identity.ErrQueueClosed)
}
