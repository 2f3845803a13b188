package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/progression"
	"isle_quest_backend/internal/repository"
)

const leaderboardSize = 100

type UserService struct {
	store UserStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	// session-scoped records used only while the durable store is degraded
	mem map[string]*model.User
}

func NewUserService(store UserStore) *UserService {
	return &UserService{
		store: store,
		locks: make(map[string]*sync.Mutex),
		mem:   make(map[string]*model.User),
	}
}

// lockWallet returns the serialization point for a wallet. Every
// read-modify-write of a user record happens under this lock so racing
// claims cannot both observe an unclaimed state.
func (s *UserService) lockWallet(wallet string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[wallet]
	if !ok {
		l = &sync.Mutex{}
		s.locks[wallet] = l
	}
	return l
}

// BindWallet creates the user record on first session bind. Binding an
// existing wallet is a no-op returning the current record.
func (s *UserService) BindWallet(ctx context.Context, wallet string) (*model.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}

	lock := s.lockWallet(wallet)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.load(ctx, wallet)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := time.Now()
	u = &model.User{
		Wallet:           wallet,
		TotalXP:          0,
		Level:            progression.DeriveLevel(0),
		SubscriptionTier: model.TierFree,
		ClaimedQuests:    make(map[string]struct{}),
		Referrals:        make(map[string]struct{}),
		Profile:          make(map[string]any),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, wallet string) (*model.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}
	return s.load(ctx, wallet)
}

// load reads a record from the durable store, falling back to the
// session-scoped map while the store is degraded.
func (s *UserService) load(ctx context.Context, wallet string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, wallet)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u != nil {
		return u, nil
	}

	s.mu.Lock()
	cached, ok := s.mem[wallet]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return cached.Clone(), nil
}

// save writes through to the durable store; when the store reports it could
// not persist, the record is kept in the session-scoped fallback instead.
func (s *UserService) save(ctx context.Context, u *model.User) error {
	persisted, err := s.store.SaveUser(ctx, u)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	if !persisted {
		s.mu.Lock()
		s.mem[u.Wallet] = u.Clone()
		s.mu.Unlock()
	}
	return nil
}

// txConsumed reports whether any wallet already verified this transaction
// hash, checking the durable store first and the session-scoped records when
// the store is degraded.
func (s *UserService) txConsumed(ctx context.Context, hash string) (bool, error) {
	consumed, err := s.store.TxConsumed(ctx, hash)
	if err != nil || consumed {
		return consumed, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.mem {
		if strings.EqualFold(u.LastVerifiedTx, hash) {
			return true, nil
		}
	}
	return false, nil
}

func (s *UserService) Leaderboard(ctx context.Context) ([]*model.User, error) {
	users, err := s.store.TopUsers(ctx, leaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	if users != nil {
		return users, nil
	}

	// degraded store: rank whatever this process has seen
	s.mu.Lock()
	users = make([]*model.User, 0, len(s.mem))
	for _, u := range s.mem {
		users = append(users, u.Clone())
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].TotalXP > users[j].TotalXP })
	if len(users) > leaderboardSize {
		users = users[:leaderboardSize]
	}
	return users, nil
}
