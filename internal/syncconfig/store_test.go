package syncconfig

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tabstash-sync/internal/events"
	"github.com/tabstash-sync/internal/storage"
)

func newStore(t *testing.T) (*Store, *[]events.Event) {
	t.Helper()
	bus := events.NewBus()
	var published []events.Event
	bus.Subscribe(func(e events.Event) { published = append(published, e) })
	return NewStore(storage.NewMemoryBackend(), bus), &published
}

func TestSyncType(t *testing.T) {
	assert.True(t, ManualPushMerge.Valid())
	assert.False(t, SyncType("manual-sideways").Valid())

	assert.Equal(t, PushMerge, ManualPushMerge.Mode())
	assert.Equal(t, PullForce, AutoPullForce.Mode())

	assert.True(t, AutoPushForce.IsAuto())
	assert.False(t, ManualPushForce.IsAuto())

	assert.True(t, ManualPushForce.IsPush())
	assert.True(t, AutoPushMerge.IsPush())
	assert.False(t, ManualPullMerge.IsPush())

	assert.Equal(t, AutoPullMerge, ManualPullMerge.Auto())
	assert.Equal(t, AutoPushMerge, AutoPushMerge.Auto())
}

func TestItem_Configured(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want bool
	}{
		{"webdav with target", Item{Kind: "webdav", Target: "https://dav"}, true},
		{"webdav without target", Item{Kind: "webdav", Username: "me", Password: "pw"}, false},
		{"blank target", Item{Kind: "s3", Target: "   "}, false},
		{"gist on default API", Item{Kind: "gist", Password: "ghp_token"}, true},
		{"gist on custom API", Item{Kind: "gist", Target: "https://ghe.example.com/api/v3/", Password: "t"}, true},
		{"gist without token", Item{Kind: "gist", Target: "https://ghe.example.com/api/v3/"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.Configured())
		})
	}
}

func TestCreateItem(t *testing.T) {
	item := CreateItem(Item{Label: "nas", Target: "https://x", SyncStatus: StatusSyncing})

	assert.True(t, strings.HasPrefix(item.Key, "webdav_"))
	assert.Equal(t, "webdav", item.Kind)
	assert.Equal(t, StatusIdle, item.SyncStatus)
	assert.NotNil(t, item.SyncResult)
	assert.Empty(t, item.SyncResult)

	other := CreateItem(Item{Kind: "gist"})
	assert.True(t, strings.HasPrefix(other.Key, "gist_"))
	assert.NotEqual(t, item.Key, other.Key)
}

func TestStore_AddLookupRemove(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	added, err := store.AddItem(ctx, Item{Label: "nas", Target: "https://x"})
	require.NoError(t, err)

	got, err := store.Item(ctx, added.Key)
	require.NoError(t, err)
	assert.Equal(t, "nas", got.Label)

	label := "renamed"
	password := "new-secret"
	require.NoError(t, store.UpdateItem(ctx, added.Key, Edit{Label: &label, Password: &password}))
	got, err = store.Item(ctx, added.Key)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Label)
	assert.Equal(t, "new-secret", got.Password)
	assert.Equal(t, "https://x", got.Target)

	require.NoError(t, store.RemoveItem(ctx, added.Key))
	_, err = store.Item(ctx, added.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.RemoveItem(ctx, added.Key), ErrNotFound)
}

func TestStore_SetConfigRejectsDuplicateKeys(t *testing.T) {
	store, _ := newStore(t)
	err := store.SetConfig(context.Background(), &Config{ConfigList: []Item{{Key: "k1"}, {Key: "k1"}}})
	assert.Error(t, err)
}

func TestStore_SetStatusPersistsThenPublishes(t *testing.T) {
	ctx := context.Background()
	store, published := newStore(t)
	require.NoError(t, store.SetConfig(ctx, &Config{ConfigList: []Item{{Key: "k1", SyncStatus: StatusIdle}}}))

	require.NoError(t, store.SetStatus(ctx, "k1", StatusSyncing))

	item, err := store.Item(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, StatusSyncing, item.SyncStatus)
	require.Len(t, *published, 1)
	assert.Equal(t, events.Event{Type: events.StatusChanged, Key: "k1", Status: "syncing"}, (*published)[0])

	assert.ErrorIs(t, store.SetStatus(ctx, "missing", StatusIdle), ErrNotFound)
	assert.Len(t, *published, 1)
}

func TestStore_AddResultBoundsHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.SetConfig(ctx, &Config{ConfigList: []Item{{Key: "k1"}}}))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxResults; i++ {
		require.NoError(t, store.AddResult(ctx, "k1", ResultItem{
			SyncType: ManualPushMerge,
			SyncTime: base.Add(time.Duration(i) * time.Minute),
			Outcome:  Success,
			Reason:   fmt.Sprint(i),
		}))
	}
	item, err := store.Item(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, item.SyncResult, MaxResults)
	oldest := item.SyncResult[MaxResults-1]
	assert.Equal(t, "0", oldest.Reason)

	// the 51st entry evicts the oldest and becomes the head
	require.NoError(t, store.AddResult(ctx, "k1", ResultItem{
		SyncType: ManualPushMerge,
		SyncTime: base.Add(time.Hour * 2),
		Outcome:  Failed,
		Reason:   "newest",
	}))
	item, err = store.Item(ctx, "k1")
	require.NoError(t, err)
	require.Len(t, item.SyncResult, MaxResults)
	assert.Equal(t, "newest", item.SyncResult[0].Reason)
	assert.Equal(t, "49", item.SyncResult[1].Reason)
	assert.Equal(t, "1", item.SyncResult[MaxResults-1].Reason)
	for i := 1; i < len(item.SyncResult); i++ {
		assert.True(t, item.SyncResult[i-1].SyncTime.After(item.SyncResult[i].SyncTime))
	}
}

func TestStore_ClearResults(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.SetConfig(ctx, &Config{ConfigList: []Item{{Key: "k1"}}}))
	require.NoError(t, store.AddResult(ctx, "k1", ResultItem{Outcome: Success}))

	require.NoError(t, store.ClearResults(ctx, "k1"))

	item, err := store.Item(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, item.SyncResult)
}

func TestStore_ResetStatuses(t *testing.T) {
	ctx := context.Background()
	store, published := newStore(t)
	require.NoError(t, store.SetConfig(ctx, &Config{ConfigList: []Item{
		{Key: "stuck", SyncStatus: StatusSyncing},
		{Key: "fine", SyncStatus: StatusIdle},
	}}))

	require.NoError(t, store.ResetStatuses(ctx))

	cfg, err := store.Config(ctx)
	require.NoError(t, err)
	for _, item := range cfg.ConfigList {
		assert.Equal(t, StatusIdle, item.SyncStatus, item.Key)
	}
	require.Len(t, *published, 1)
	assert.Equal(t, "stuck", (*published)[0].Key)
}

func TestStore_UpsertKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	require.NoError(t, store.Upsert(ctx, Item{Key: "seed", Kind: "webdav", Target: "https://old"}))
	require.NoError(t, store.AddResult(ctx, "seed", ResultItem{Outcome: Success}))
	require.NoError(t, store.Upsert(ctx, Item{Key: "seed", Kind: "webdav", Target: "https://new"}))

	item, err := store.Item(ctx, "seed")
	require.NoError(t, err)
	assert.Equal(t, "https://new", item.Target)
	assert.Len(t, item.SyncResult, 1)
}
