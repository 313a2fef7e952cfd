package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/polkagate/poolkit/pkg/kv"
	"github.com/polkagate/poolkit/pkg/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore_DefaultsWhenEmpty(t *testing.T) {
	s := settings.NewStore(kv.NewMemoryStore(), nil)
	got, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(), got)
}

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	s := settings.NewStore(kv.NewMemoryStore(), nil)

	want := settings.Defaults()
	want.Theme = settings.ThemeLight
	want.Camera = settings.CameraOn
	want.DefaultChain = "westend"
	require.NoError(t, s.Set(ctx, want))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_GetFillsMissingFields(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, settings.StorageKey, []byte(`{"theme":"light"}`)))

	got, err := settings.NewStore(store, nil).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.ThemeLight, got.Theme)
	assert.Equal(t, settings.CameraOff, got.Camera)
	assert.Equal(t, "default", got.Language)
}

func TestStore_RejectsInvalid(t *testing.T) {
	s := settings.NewStore(kv.NewMemoryStore(), nil)
	bad := settings.Defaults()
	bad.Theme = "neon"
	assert.ErrorIs(t, s.Set(context.Background(), bad), settings.ErrInvalid)
}

func TestStore_SubscribeReceivesLatest(t *testing.T) {
	ctx := context.Background()
	s := settings.NewStore(kv.NewMemoryStore(), nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	first := settings.Defaults()
	first.Language = "en"
	second := settings.Defaults()
	second.Language = "fr"
	require.NoError(t, s.Set(ctx, first))
	require.NoError(t, s.Set(ctx, second))

	got := <-ch
	assert.Equal(t, "fr", got.Language)
}

func TestStore_CancelClosesChannel(t *testing.T) {
	s := settings.NewStore(kv.NewMemoryStore(), nil)
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, s.Set(context.Background(), settings.Defaults()))
}
