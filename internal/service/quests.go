package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/progression"

	"github.com/google/uuid"
)

const (
	actionProof = "proof"
	actionClaim = "claim"
)

// AwardFunc computes the XP delta for a successful claim. The state machine
// itself never computes multipliers.
type AwardFunc func(u *model.User, q model.Quest) float64

// TierAward is the default award: base quest XP scaled by the subscription
// tier multiplier.
func TierAward(u *model.User, q model.Quest) float64 {
	return q.XP * u.SubscriptionTier.Multiplier()
}

// QuestStatus is a quest joined with one wallet's progress against it.
type QuestStatus struct {
	Quest   model.Quest
	Claimed bool
	Proof   *model.QuestProof
}

type QuestService struct {
	users   *UserService
	catalog QuestCatalog
	proofs  ProofStore
	limiter RateLimiter
	award   AwardFunc
}

func NewQuestService(users *UserService, catalog QuestCatalog, proofs ProofStore, limiter RateLimiter, award AwardFunc) *QuestService {
	if award == nil {
		award = TierAward
	}
	return &QuestService{
		users:   users,
		catalog: catalog,
		proofs:  proofs,
		limiter: limiter,
		award:   award,
	}
}

// ListQuests returns every quest; when wallet is non-empty each entry also
// carries that wallet's claim and proof state.
func (s *QuestService) ListQuests(ctx context.Context, wallet string) ([]QuestStatus, error) {
	quests := s.catalog.All()
	statuses := make([]QuestStatus, len(quests))

	var claimed map[string]struct{}
	if wallet = strings.TrimSpace(wallet); wallet != "" {
		u, err := s.users.load(ctx, wallet)
		switch {
		case err == nil:
			claimed = u.ClaimedQuests
		case errors.Is(err, ErrUserNotFound):
			// unknown wallets get the anonymous view
		default:
			return nil, err
		}
	}

	for i, q := range quests {
		statuses[i] = QuestStatus{Quest: q}
		if wallet == "" {
			continue
		}
		if _, ok := claimed[q.ID]; ok {
			statuses[i].Claimed = true
		}
		if p, ok := s.proofs.Get(wallet, q.ID); ok {
			statuses[i].Proof = p
		}
	}
	return statuses, nil
}

// SubmitProof records proof evidence for a (wallet, quest) pair, overwriting
// any previous submission. Link proofs with a resolvable host are approved
// synchronously; other vendors stay pending for out-of-band review.
func (s *QuestService) SubmitProof(ctx context.Context, ip, wallet, questID string, vendor model.ProofVendor, rawURL string) (*model.QuestProof, error) {
	wallet = strings.TrimSpace(wallet)
	rawURL = strings.TrimSpace(rawURL)
	if wallet == "" || questID == "" || rawURL == "" {
		return nil, fmt.Errorf("%w: wallet, quest id and url are required", ErrValidation)
	}

	// The window counts every attempt, including ones that fail validation
	// below, so malformed floods cannot probe for free.
	allowed, err := s.limiter.Allow(ctx, ip, wallet, actionProof)
	if err != nil {
		return nil, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	if !vendor.Valid() {
		return nil, fmt.Errorf("%w: unknown vendor %q", ErrValidation, vendor)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("%w: url must be absolute and well-formed", ErrValidation)
	}

	if _, ok := s.catalog.ByID(questID); !ok {
		return nil, ErrQuestNotFound
	}

	status := model.ProofPending
	if vendor == model.VendorLink && parsed.Host != "" {
		status = model.ProofApproved
	}

	proof := &model.QuestProof{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		QuestID:   questID,
		Vendor:    vendor,
		URL:       rawURL,
		Status:    status,
		UpdatedAt: time.Now(),
	}
	s.proofs.Put(proof)
	return proof, nil
}

// Claim converts an eligible quest into an XP grant, at most once per
// (wallet, quest). A repeat claim succeeds with a zero delta.
func (s *QuestService) Claim(ctx context.Context, ip, wallet, questID string) (float64, *model.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" || questID == "" {
		return 0, nil, fmt.Errorf("%w: wallet and quest id are required", ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, ip, wallet, actionClaim)
	if err != nil {
		return 0, nil, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !allowed {
		return 0, nil, ErrRateLimited
	}

	quest, ok := s.catalog.ByID(questID)
	if !ok {
		return 0, nil, ErrQuestNotFound
	}

	lock := s.users.lockWallet(wallet)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.load(ctx, wallet)
	if err != nil {
		return 0, nil, err
	}

	if _, done := u.ClaimedQuests[questID]; done {
		return 0, u, nil
	}

	if quest.RequiresProof {
		proof, ok := s.proofs.Get(wallet, questID)
		if !ok || proof.Status != model.ProofApproved {
			return 0, nil, ErrProofRequired
		}
	}

	delta := s.award(u, quest)
	updated := progression.GrantXP(*u, delta)
	if updated.ClaimedQuests == nil {
		updated.ClaimedQuests = make(map[string]struct{})
	}
	updated.ClaimedQuests[questID] = struct{}{}
	updated.UpdatedAt = time.Now()

	if err := s.users.save(ctx, &updated); err != nil {
		return 0, nil, err
	}
	return delta, &updated, nil
}
