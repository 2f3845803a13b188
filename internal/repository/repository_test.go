package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"isle_quest_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := New(Config{Path: filepath.Join(t.TempDir(), "data", "users.db")})
	require.True(t, store.Ready(), "store with a valid path must come up")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUser(wallet string) *model.User {
	now := time.Now().Truncate(time.Millisecond)
	return &model.User{
		Wallet:           wallet,
		TotalXP:          12_345,
		SubscriptionTier: model.TierOne,
		LastVerifiedTx:   "ABCDEF",
		ClaimedQuests:    map[string]struct{}{"1": {}, "3": {}},
		Referrals:        map[string]struct{}{"w-friend": {}},
		Profile: map[string]any{
			"twitterHandle": "@isler",
			"referralCode":  "ISLE42",
		},
		Authed:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStore_DegradedMode(t *testing.T) {
	store := New(Config{})

	assert.False(t, store.Ready())

	u, err := store.GetUser(context.Background(), "w1")
	assert.NoError(t, err)
	assert.Nil(t, u)

	ok, err := store.SaveUser(context.Background(), testUser("w1"))
	assert.NoError(t, err)
	assert.False(t, ok)

	users, err := store.TopUsers(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, users)

	consumed, err := store.TxConsumed(context.Background(), "tx1")
	assert.NoError(t, err)
	assert.False(t, consumed)
}

func TestStore_SaveAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveUser(ctx, testUser("w1"))
	require.NoError(t, err)
	require.True(t, saved)

	u, err := store.GetUser(ctx, "w1")
	require.NoError(t, err)

	assert.Equal(t, "w1", u.Wallet)
	assert.Equal(t, 12_345.0, u.TotalXP)
	assert.Equal(t, "Wave Rider", u.Level.Name)
	assert.Equal(t, model.TierOne, u.SubscriptionTier)
	assert.Equal(t, "ABCDEF", u.LastVerifiedTx, "the consumed-payment marker must survive a restart")
	assert.Equal(t, map[string]struct{}{"1": {}, "3": {}}, u.ClaimedQuests)
	assert.Equal(t, map[string]struct{}{"w-friend": {}}, u.Referrals)
	assert.Equal(t, "@isler", u.Profile["twitterHandle"])
	assert.Equal(t, "ISLE42", u.Profile["referralCode"])
	assert.False(t, u.Authed, "authed must never be persisted")
}

func TestStore_TxConsumed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveUser(ctx, testUser("w1"))
	require.NoError(t, err)

	consumed, err := store.TxConsumed(ctx, "abcdef")
	require.NoError(t, err)
	assert.True(t, consumed, "hash matching is case-insensitive")

	consumed, err = store.TxConsumed(ctx, "other")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestStore_GetUser_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := testUser("w1")
	_, err := store.SaveUser(ctx, u)
	require.NoError(t, err)

	u.TotalXP = 35_000
	u.SubscriptionActive = true
	now := time.Now()
	u.SubscriptionPaidAt = &now
	u.ClaimedQuests["9"] = struct{}{}
	_, err = store.SaveUser(ctx, u)
	require.NoError(t, err)

	got, err := store.GetUser(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 35_000.0, got.TotalXP)
	assert.Equal(t, "Reef Explorer", got.Level.Name)
	assert.True(t, got.SubscriptionActive)
	require.NotNil(t, got.SubscriptionPaidAt)
	assert.Equal(t, now.UnixMilli(), got.SubscriptionPaidAt.UnixMilli())
	assert.Contains(t, got.ClaimedQuests, "9")
}

func TestStore_MalformedBlobYieldsEmptyProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (wallet, total_xp, created_at, updated_at, profile)
		 VALUES (?, ?, ?, ?, ?)`,
		"w-bad", 500.0, time.Now().UnixMilli(), time.Now().UnixMilli(), `{not json`)
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "w-bad")
	require.NoError(t, err)
	assert.Equal(t, 500.0, u.TotalXP, "promoted column must survive a broken blob")
	assert.Empty(t, u.Profile)
	assert.Empty(t, u.ClaimedQuests)
}

func TestStore_ColumnsWinOverBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (wallet, total_xp, subscription_tier, created_at, updated_at, profile)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"w-col", 9_000.0, "tier2", time.Now().UnixMilli(), time.Now().UnixMilli(),
		`{"totalXP": 1, "subscriptionTier": "free", "extra": "kept"}`)
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "w-col")
	require.NoError(t, err)
	assert.Equal(t, 9_000.0, u.TotalXP)
	assert.Equal(t, model.TierTwo, u.SubscriptionTier)
	assert.Equal(t, "kept", u.Profile["extra"])
}

func TestStore_LegacyBlobTotalMigrated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// row written before the total_xp column carried the value
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO users (wallet, total_xp, created_at, updated_at, profile)
		 VALUES (?, 0, ?, ?, ?)`,
		"w-legacy", time.Now().UnixMilli(), time.Now().UnixMilli(),
		`{"progressTotal": 61000}`)
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "w-legacy")
	require.NoError(t, err)
	assert.Equal(t, 61_000.0, u.TotalXP)
	assert.Equal(t, "Lagoon Legend", u.Level.Name)
}

func TestStore_TopUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, u := range []struct {
		wallet string
		xp     float64
	}{{"w-low", 100}, {"w-high", 90_000}, {"w-mid", 20_000}} {
		user := testUser(u.wallet)
		user.TotalXP = u.xp
		_, err := store.SaveUser(ctx, user)
		require.NoError(t, err)
	}

	top, err := store.TopUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "w-high", top[0].Wallet)
	assert.Equal(t, "w-mid", top[1].Wallet)
}

func TestStore_ProfileCycleDoesNotBreakSave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := testUser("w-cycle")
	loop := map[string]any{"name": "loop"}
	loop["self"] = loop
	u.Profile["loop"] = loop

	saved, err := store.SaveUser(ctx, u)
	require.NoError(t, err)
	require.True(t, saved)

	got, err := store.GetUser(ctx, "w-cycle")
	require.NoError(t, err)
	stored, ok := got.Profile["loop"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "loop", stored["name"])
	_, hasSelf := stored["self"]
	assert.False(t, hasSelf)
}
