package service

import (
	"context"
	"errors"
	"math/big"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/payment"
)

var (
	ErrValidation    = errors.New("invalid input")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrUserNotFound  = errors.New("user not found")
	ErrQuestNotFound = errors.New("quest not found")

	// ErrProofRequired is a business-rule rejection: the quest needs an
	// approved proof before it can be claimed.
	ErrProofRequired = errors.New("proof_required")

	// ErrAlreadyOnTier rejects a subscribe call that would not change
	// anything.
	ErrAlreadyOnTier = errors.New("already on this tier")
)

type Service struct {
	*UserService
	*QuestService
	*SubscriptionService
}

func NewService(users *UserService, quests *QuestService, subs *SubscriptionService) *Service {
	return &Service{
		UserService:         users,
		QuestService:        quests,
		SubscriptionService: subs,
	}
}

// UserStore is the durable wallet -> record mapping. A degraded store
// reports (nil, nil) reads, false writes and Ready() == false; services keep
// a session-scoped in-memory fallback on top of it.
type UserStore interface {
	Ready() bool
	GetUser(ctx context.Context, wallet string) (*model.User, error)
	SaveUser(ctx context.Context, u *model.User) (bool, error)
	TopUsers(ctx context.Context, limit int) ([]*model.User, error)
	TxConsumed(ctx context.Context, hash string) (bool, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResult, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, ip, wallet, action string) (bool, error)
}

type QuestCatalog interface {
	All() []model.Quest
	ByID(id string) (model.Quest, bool)
}

// ProofStore holds the ephemeral proof records. It is non-authoritative and
// must be backed by shared storage before this service is scaled past a
// single process.
type ProofStore interface {
	Get(wallet, questID string) (*model.QuestProof, bool)
	Put(p *model.QuestProof)
}

// Settings is the payment/reward configuration surface. It is resolved
// through a provider func on every call so config overrides are observable
// without a restart.
type Settings struct {
	Network        string
	ReceiveAddress string
	MinAmount      *big.Int
	BonusXP        float64
}

type SettingsProvider func() Settings
