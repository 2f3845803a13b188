package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/payment"
	"isle_quest_backend/internal/progression"

	"github.com/google/uuid"
)

const actionVerify = "verify"

// PaymentInstructions tell the client how to pay for a subscription: the
// memo carries the subscription tag plus a uniqueness suffix so concurrent
// subscribers do not collide.
type PaymentInstructions struct {
	To     string
	Amount *big.Int
	Memo   string
}

type SubscriptionStatus struct {
	Tier      model.SubscriptionTier
	Active    bool
	CanClaim  bool
	PaidAt    *time.Time
	ClaimedAt *time.Time
	LastDelta float64
}

// SubscriptionService is the sibling state machine to quest claiming, gated
// by payment verification instead of proof submission.
type SubscriptionService struct {
	users    *UserService
	verifier PaymentVerifier
	limiter  RateLimiter
	settings SettingsProvider
	notifier *PaymentNotifier
}

func NewSubscriptionService(users *UserService, verifier PaymentVerifier, limiter RateLimiter, settings SettingsProvider, notifier *PaymentNotifier) *SubscriptionService {
	return &SubscriptionService{
		users:    users,
		verifier: verifier,
		limiter:  limiter,
		settings: settings,
		notifier: notifier,
	}
}

// Subscribe changes the wallet's tier and returns the payment instructions
// for activating it. Re-subscribing to the current tier is rejected as a
// business-rule conflict.
func (s *SubscriptionService) Subscribe(ctx context.Context, wallet string, tier model.SubscriptionTier) (*model.User, *PaymentInstructions, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}
	if !tier.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown tier %q", ErrValidation, tier)
	}

	lock := s.users.lockWallet(wallet)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.load(ctx, wallet)
	if err != nil {
		return nil, nil, err
	}

	if u.SubscriptionTier == tier {
		return nil, nil, ErrAlreadyOnTier
	}

	updated := *u
	updated.SubscriptionTier = tier
	updated.UpdatedAt = time.Now()
	if err := s.users.save(ctx, &updated); err != nil {
		return nil, nil, err
	}

	if tier == model.TierFree {
		return &updated, nil, nil
	}

	st := s.settings()
	return &updated, &PaymentInstructions{
		To:     st.ReceiveAddress,
		Amount: st.MinAmount,
		Memo:   fmt.Sprintf("%s:%s", payment.SubscriptionMemoTag, uuid.NewString()),
	}, nil
}

// VerifyPayment reconciles a claimed transaction against the ledger and, on
// success, stamps the payment audit trail. It never awards XP; that is the
// bonus claim's job.
func (s *SubscriptionService) VerifyPayment(ctx context.Context, ip, wallet, txHash string) (payment.VerifyResult, error) {
	wallet = strings.TrimSpace(wallet)
	txHash = strings.TrimSpace(txHash)
	if wallet == "" || txHash == "" {
		return payment.VerifyResult{}, fmt.Errorf("%w: wallet and tx hash are required", ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, ip, wallet, actionVerify)
	if err != nil {
		return payment.VerifyResult{}, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !allowed {
		return payment.VerifyResult{}, ErrRateLimited
	}

	st := s.settings()
	result, err := s.verifier.Verify(ctx, payment.VerifyRequest{
		TxHash:       txHash,
		ToAddress:    st.ReceiveAddress,
		MinAmount:    st.MinAmount,
		ExpectedMemo: payment.SubscriptionMemoTag,
	})
	if err != nil {
		return result, err
	}
	if !result.Verified {
		return result, nil
	}

	lock := s.users.lockWallet(wallet)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.load(ctx, wallet)
	if err != nil {
		return result, err
	}

	// One on-chain payment funds at most one grant: a hash this wallet
	// already verified must not re-arm the bonus, and a hash another wallet
	// consumed must not arm it here.
	if strings.EqualFold(u.LastVerifiedTx, txHash) {
		return result, nil
	}
	consumed, err := s.users.txConsumed(ctx, txHash)
	if err != nil {
		return result, err
	}
	if consumed {
		return result, nil
	}

	now := time.Now()
	updated := *u
	updated.LastVerifiedTx = txHash
	updated.SubscriptionActive = true
	updated.LastPaymentAt = &now
	updated.SubscriptionPaidAt = &now
	updated.UpdatedAt = now
	if err := s.users.save(ctx, &updated); err != nil {
		return result, err
	}

	amount := "0"
	if result.Amount != nil {
		amount = result.Amount.String()
	}
	s.notifier.Publish(PaymentEvent{
		Wallet:   wallet,
		Amount:   amount,
		Comment:  result.Comment,
		PaidAt:   now,
		CanClaim: updated.CanClaimSubscriptionBonus(),
	})
	return result, nil
}

func (s *SubscriptionService) Status(ctx context.Context, wallet string) (*SubscriptionStatus, error) {
	u, err := s.users.GetUser(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &SubscriptionStatus{
		Tier:      u.SubscriptionTier,
		Active:    u.SubscriptionActive,
		CanClaim:  u.CanClaimSubscriptionBonus(),
		PaidAt:    u.SubscriptionPaidAt,
		ClaimedAt: u.SubscriptionClaimedAt,
		LastDelta: u.SubscriptionLastDelta,
	}, nil
}

// ClaimBonus consumes the most recent verified payment and grants the bonus
// XP. With no unconsumed payment it is an idempotent no-op, not an error.
func (s *SubscriptionService) ClaimBonus(ctx context.Context, ip, wallet string) (float64, *model.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return 0, nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}

	allowed, err := s.limiter.Allow(ctx, ip, wallet, actionClaim)
	if err != nil {
		return 0, nil, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !allowed {
		return 0, nil, ErrRateLimited
	}

	lock := s.users.lockWallet(wallet)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.load(ctx, wallet)
	if err != nil {
		return 0, nil, err
	}

	if !u.CanClaimSubscriptionBonus() {
		return 0, u, nil
	}

	delta := s.settings().BonusXP
	updated := progression.GrantXP(*u, delta)
	now := time.Now()
	updated.SubscriptionClaimedAt = &now
	updated.SubscriptionLastDelta = delta
	updated.UpdatedAt = now

	if err := s.users.save(ctx, &updated); err != nil {
		return 0, nil, err
	}
	return delta, &updated, nil
}
