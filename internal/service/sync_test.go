package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesync-backend/internal/domain"
)

func TestGetSnapshotNewPlayerIsEmpty(t *testing.T) {
	store := newFakeStore()
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.GetSnapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, snapshot.Data)
	assert.Empty(t, snapshot.Data)
}

func TestGetSnapshotReturnsStoredDocument(t *testing.T) {
	store := newFakeStore()
	store.profiles[7] = map[string]any{"name": "p7", "level": float64(3)}
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.GetSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "p7", snapshot.Data["name"])
	assert.Equal(t, float64(3), snapshot.Data["level"])
}

func TestGetSnapshotPopulatesCache(t *testing.T) {
	store := newFakeStore()
	store.profiles[7] = map[string]any{"name": "p7"}
	cache := newFakeCache()
	svc := NewSyncService(store, cache, testLogger())

	_, err := svc.GetSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, cache.snapshots[7])

	// A later read is served from the cache even after the store changes
	store.profiles[7] = map[string]any{"name": "changed"}
	snapshot, err := svc.GetSnapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "p7", snapshot.Data["name"])
}

func TestMergeSnapshotNilDocumentRejected(t *testing.T) {
	svc := NewSyncService(newFakeStore(), nil, testLogger())

	_, err := svc.MergeSnapshot(context.Background(), 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestMergeSnapshotCombinesDocuments(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{
		"name": "old",
		"settings": map[string]any{
			"sound": true,
		},
	}
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{
		"name": "new",
		"settings": map[string]any{
			"theme": "dark",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "new", snapshot.Data["name"])
	settings := snapshot.Data["settings"].(map[string]any)
	assert.Equal(t, true, settings["sound"])
	assert.Equal(t, "dark", settings["theme"])
}

func TestMergeSnapshotPreservesStoredOnlyFields(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"inventory": []any{"sword"}, "level": float64(9)}
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{"level": float64(10)})
	require.NoError(t, err)

	assert.Equal(t, []any{"sword"}, snapshot.Data["inventory"])
	assert.Equal(t, float64(10), snapshot.Data["level"])
}

func TestMergeSnapshotStripsAuthoritativeKeys(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(500)}
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{
		"coins": float64(999999),
		"name":  "p1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), snapshot.Data["coins"])
	assert.Equal(t, "p1", snapshot.Data["name"])
}

func TestMergeSnapshotEmptyPayloadPerformsNoWrite(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"name": "kept"}
	svc := NewSyncService(store, nil, testLogger())

	// Every field sanitizes away, including the authoritative one
	snapshot, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{
		"name":  nil,
		"title": "   ",
		"coins": float64(100),
		"bag":   map[string]any{"slot": ""},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, store.replaceCalls)
	assert.Equal(t, "kept", snapshot.Data["name"])
	assert.NotContains(t, snapshot.Data, "coins")
}

func TestMergeSnapshotNullsDoNotErase(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"name": "kept", "level": float64(5)}
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{
		"name":  nil,
		"level": float64(6),
	})
	require.NoError(t, err)

	assert.Equal(t, "kept", snapshot.Data["name"])
	assert.Equal(t, float64(6), snapshot.Data["level"])
}

func TestMergeSnapshotInvalidatesCacheAndPublishes(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	cache.snapshots[1] = &domain.Snapshot{Data: map[string]any{"stale": true}}
	publisher := &fakePublisher{}

	svc := NewSyncService(store, cache, testLogger())
	svc.SetPublisher(publisher)

	_, err := svc.MergeSnapshot(context.Background(), 1, map[string]any{"name": "p1"})
	require.NoError(t, err)

	assert.Nil(t, cache.snapshots[1])
	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.WalletEventMerge, events[0].Type)
	assert.Equal(t, int64(1), events[0].PlayerID)
	assert.NotEmpty(t, events[0].EventID)
}

func TestMergeSnapshotDoesNotOverwriteConcurrentDebit(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(100), "name": "old"}
	syncSvc := NewSyncService(store, nil, testLogger())
	walletSvc := NewWalletService(store, &fakeVerifier{}, nil, nil, testLogger())

	// A spend lands after the merge has read the document but before it
	// writes the merged result back
	store.beforeReplace = func() {
		_, err := walletSvc.Debit(context.Background(), 1, 80, "spend")
		require.NoError(t, err)
	}

	snapshot, err := syncSvc.MergeSnapshot(context.Background(), 1, map[string]any{"name": "new"})
	require.NoError(t, err)

	assert.Equal(t, "new", snapshot.Data["name"])
	assert.Equal(t, int64(20), snapshot.Data["coins"])

	balance, err := walletSvc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestMergeSnapshotDoesNotOverwriteConcurrentCredit(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(100)}
	syncSvc := NewSyncService(store, nil, testLogger())
	walletSvc := NewWalletService(store, &fakeVerifier{result: verifiedResult()}, nil, nil, testLogger())

	store.beforeReplace = func() {
		_, err := walletSvc.CreditFromPurchase(context.Background(), 1, "coins_500", "mid-merge-token")
		require.NoError(t, err)
	}

	snapshot, err := syncSvc.MergeSnapshot(context.Background(), 1, map[string]any{"name": "p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(600), snapshot.Data["coins"])
}

func TestMergeSnapshotFirstWriteCreatesProfile(t *testing.T) {
	store := newFakeStore()
	svc := NewSyncService(store, nil, testLogger())

	snapshot, err := svc.MergeSnapshot(context.Background(), 42, map[string]any{"name": "fresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", snapshot.Data["name"])

	stored, err := store.GetProfile(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.Data["name"])
}
