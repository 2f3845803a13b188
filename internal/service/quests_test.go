package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/ratelimit"
	"isle_quest_backend/internal/repository"
	"isle_quest_backend/internal/service/mocks"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fixture runs the quest machinery against a degraded store so everything
// stays in the session-scoped fallback.
type questFixture struct {
	users  *UserService
	proofs ProofStore
	quests *QuestService
}

func newQuestFixture(t *testing.T) *questFixture {
	t.Helper()
	users := NewUserService(repository.New(repository.Config{}))
	proofs := NewMemoryProofStore()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), time.Minute, 10)
	return &questFixture{
		users:  users,
		proofs: proofs,
		quests: NewQuestService(users, DefaultCatalog(), proofs, limiter, nil),
	}
}

func TestSubmitProof_Validation(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		wallet  string
		questID string
		vendor  model.ProofVendor
		url     string
		wantErr error
	}{
		{name: "missing wallet", questID: "1", vendor: model.VendorLink, url: "https://example.com", wantErr: ErrValidation},
		{name: "missing url", wallet: "w1", questID: "1", vendor: model.VendorLink, wantErr: ErrValidation},
		{name: "unknown vendor", wallet: "w1", questID: "1", vendor: "myspace", url: "https://example.com", wantErr: ErrValidation},
		{name: "relative url", wallet: "w1", questID: "1", vendor: model.VendorLink, url: "/not/absolute", wantErr: ErrValidation},
		{name: "unknown quest", wallet: "w1", questID: "404", vendor: model.VendorLink, url: "https://example.com", wantErr: ErrQuestNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.quests.SubmitProof(ctx, "1.2.3.4", tt.wallet, tt.questID, tt.vendor, tt.url)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitProof_ApprovalPolicy(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	proof, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "2", model.VendorLink, "https://example.com/post")
	require.NoError(t, err)
	assert.Equal(t, model.ProofApproved, proof.Status)

	proof, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/isler/status/1")
	require.NoError(t, err)
	assert.Equal(t, model.ProofPending, proof.Status, "non-link vendors wait for review")
}

func TestSubmitProof_ResubmissionOverwrites(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/old")
	require.NoError(t, err)

	_, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorLink, "https://example.com/new")
	require.NoError(t, err)

	stored, ok := f.proofs.Get("w1", "1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/new", stored.URL)
	assert.Equal(t, model.VendorLink, stored.Vendor)
	assert.Equal(t, model.ProofApproved, stored.Status)
}

func TestSubmitProof_RateLimited(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/p")
		require.NoError(t, err, "submission %d should pass", i+1)
	}

	_, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/p")
	assert.ErrorIs(t, err, ErrRateLimited)

	// a different wallet is its own window
	_, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w2", "1", model.VendorTwitter, "https://x.com/p")
	assert.NoError(t, err)
}

func TestSubmitProof_InvalidAttemptsCountAgainstWindow(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "404", model.VendorLink, "https://example.com")
		require.ErrorIs(t, err, ErrQuestNotFound)
	}

	// the rejected attempts consumed the window, so a valid one is refused
	_, err := f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorLink, "https://example.com")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestListQuests_StoreErrorPropagates(t *testing.T) {
	store := &mocks.MockUserStore{}
	users := NewUserService(store)
	quests := NewQuestService(users, DefaultCatalog(), NewMemoryProofStore(),
		ratelimit.New(ratelimit.NewMemoryStore(), time.Minute, 10), nil)
	ctx := context.Background()

	boom := errors.New("disk on fire")
	store.On("GetUser", mock.Anything, "w1").Return(nil, boom)

	_, err := quests.ListQuests(ctx, "w1")
	assert.ErrorIs(t, err, boom, "an outage must not be rendered as an unclaimed view")

	// the anonymous listing never touches the store
	statuses, err := quests.ListQuests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, statuses, 5)
}

func TestClaim_ProofGating(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)

	// no proof at all
	_, _, err = f.quests.Claim(ctx, "1.2.3.4", "w1", "1")
	assert.ErrorIs(t, err, ErrProofRequired)

	// pending proof is not enough
	_, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/p")
	require.NoError(t, err)
	_, _, err = f.quests.Claim(ctx, "1.2.3.4", "w1", "1")
	assert.ErrorIs(t, err, ErrProofRequired)

	// out-of-band review approves it
	proof, _ := f.proofs.Get("w1", "1")
	proof.Status = model.ProofApproved
	f.proofs.Put(proof)

	delta, u, err := f.quests.Claim(ctx, "1.2.3.4", "w1", "1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, delta)
	assert.Equal(t, 10.0, u.TotalXP)
}

func TestClaim_Idempotent(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)

	delta, _, err := f.quests.Claim(ctx, "1.2.3.4", "w1", "5")
	require.NoError(t, err)
	assert.Equal(t, 25.0, delta)

	delta, u, err := f.quests.Claim(ctx, "1.2.3.4", "w1", "5")
	require.NoError(t, err)
	assert.Equal(t, 0.0, delta, "second claim must be a zero-delta no-op")
	assert.Equal(t, 25.0, u.TotalXP, "exactly one grant")
}

func TestClaim_TierMultiplier(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)

	subs := NewSubscriptionService(f.users, nil, f.quests.limiter, func() Settings { return Settings{} }, NewPaymentNotifier())
	_, _, err = subs.Subscribe(ctx, "w1", model.TierOne)
	require.NoError(t, err)

	_, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "2", model.VendorLink, "https://example.com")
	require.NoError(t, err)

	delta, u, err := f.quests.Claim(ctx, "1.2.3.4", "w1", "2")
	require.NoError(t, err)
	assert.Equal(t, 13.0, delta, "base 10 XP at the tier1 1.3 multiplier")
	assert.Equal(t, 13.0, u.TotalXP)
}

func TestClaim_UnknownWalletAndQuest(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, _, err := f.quests.Claim(ctx, "1.2.3.4", "w-unbound", "5")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, _, err = f.quests.Claim(ctx, "1.2.3.4", "w1", "404")
	assert.ErrorIs(t, err, ErrQuestNotFound)
}

func TestClaim_ConcurrentRequestsGrantOnce(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	deltas := make(chan float64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			delta, _, err := f.quests.Claim(ctx, "1.2.3.4", "w1", "5")
			if err == nil {
				deltas <- delta
			}
		}()
	}
	wg.Wait()
	close(deltas)

	var total float64
	for d := range deltas {
		total += d
	}
	assert.Equal(t, 25.0, total, "exactly one racer may win the grant")

	u, err := f.users.GetUser(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, u.TotalXP)
}

func TestClaim_ReadersNeverShareWriterMaps(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)

	// claimed-set writers racing readers that iterate the same record
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = f.quests.Claim(ctx, "1.2.3.4", "w1", "5")
		}()
		go func() {
			defer wg.Done()
			u, err := f.users.GetUser(ctx, "w1")
			if err != nil {
				return
			}
			for range u.ClaimedQuests {
			}
			_, _ = f.quests.ListQuests(ctx, "w1")
		}()
	}
	wg.Wait()

	u, err := f.users.GetUser(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, u.TotalXP)
}

func TestListQuests(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	_, err := f.users.BindWallet(ctx, "w1")
	require.NoError(t, err)
	_, _, err = f.quests.Claim(ctx, "1.2.3.4", "w1", "5")
	require.NoError(t, err)
	_, err = f.quests.SubmitProof(ctx, "1.2.3.4", "w1", "1", model.VendorTwitter, "https://x.com/p")
	require.NoError(t, err)

	statuses, err := f.quests.ListQuests(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, statuses, 5)

	byID := make(map[string]QuestStatus)
	for _, st := range statuses {
		byID[st.Quest.ID] = st
	}
	assert.True(t, byID["5"].Claimed)
	assert.False(t, byID["1"].Claimed)
	require.NotNil(t, byID["1"].Proof)
	assert.Equal(t, model.ProofPending, byID["1"].Proof.Status)
	assert.Nil(t, byID["2"].Proof)
}
