package model

import "time"

type SubscriptionTier string

const (
	TierFree  SubscriptionTier = "free"
	TierOne   SubscriptionTier = "tier1"
	TierTwo   SubscriptionTier = "tier2"
	TierThree SubscriptionTier = "tier3"
)

func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFree, TierOne, TierTwo, TierThree:
		return true
	}
	return false
}

// Multiplier is the XP factor applied to quest rewards for paying users.
func (t SubscriptionTier) Multiplier() float64 {
	switch t {
	case TierOne:
		return 1.3
	case TierTwo:
		return 1.6
	case TierThree:
		return 2.0
	default:
		return 1.0
	}
}

// User is the per-wallet reward ledger record. Wallet is the primary key and
// immutable once created. Profile carries fields the core does not interpret
// (social handles, referral code, frontend state) and must survive
// read-modify-write cycles untouched.
type User struct {
	Wallet  string
	TotalXP float64
	Level   LevelInfo

	SubscriptionTier      SubscriptionTier
	SubscriptionActive    bool
	LastPaymentAt         *time.Time
	SubscriptionPaidAt    *time.Time
	SubscriptionClaimedAt *time.Time
	SubscriptionLastDelta float64
	// LastVerifiedTx is the hash of the most recently verified payment.
	// Re-verifying the same hash must not re-arm the bonus claim.
	LastVerifiedTx string

	ClaimedQuests map[string]struct{}
	Referrals     map[string]struct{}

	Profile map[string]any

	// Authed is session-scoped and never persisted.
	Authed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LevelInfo is derived from TotalXP and never stored independently of it.
type LevelInfo struct {
	Tier        int
	Name        string
	Symbol      string
	XPIntoLevel float64
	XPToNext    float64
	Progress    float64
}

// Clone returns a copy that shares no mutable state with the receiver, so
// concurrent holders of the same wallet's record never alias one map.
func (u *User) Clone() *User {
	cp := *u
	cp.ClaimedQuests = cloneSet(u.ClaimedQuests)
	cp.Referrals = cloneSet(u.Referrals)
	if u.Profile != nil {
		cp.Profile = make(map[string]any, len(u.Profile))
		for k, v := range u.Profile {
			cp.Profile[k] = v
		}
	}
	return &cp
}

func cloneSet(set map[string]struct{}) map[string]struct{} {
	if set == nil {
		return nil
	}
	out := make(map[string]struct{}, len(set))
	for member := range set {
		out[member] = struct{}{}
	}
	return out
}

// CanClaimSubscriptionBonus reports whether a verified payment has occurred
// since the last subscription bonus claim.
func (u *User) CanClaimSubscriptionBonus() bool {
	if u.SubscriptionPaidAt == nil {
		return false
	}
	if u.SubscriptionClaimedAt == nil {
		return true
	}
	return u.SubscriptionClaimedAt.Before(*u.SubscriptionPaidAt)
}
