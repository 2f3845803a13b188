package repository

import (
	"context"
	"database/sql"
	"time"

	"isle_quest_backend/internal/model"
	"isle_quest_backend/internal/progression"
	"isle_quest_backend/pkg/logger"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// profile blob keys promoted into dedicated columns or struct fields; they
// are lifted out of Profile on hydration so Profile only carries opaque
// passthrough data.
var promotedKeys = []string{
	"wallet", "totalXP", "total_xp", "progressTotal", "xp",
	"subscriptionTier", "subscriptionActive",
	"lastPaymentAt", "subscriptionPaidAt", "subscriptionClaimedAt",
	"subscriptionLastDelta", "lastVerifiedTx", "claimedQuests", "referrals",
	"createdAt", "updatedAt", transientAuthedKey,
}

type userRow struct {
	Wallet                string        `db:"wallet"`
	TotalXP               float64       `db:"total_xp"`
	Paid                  bool          `db:"paid"`
	SubscriptionTier      string        `db:"subscription_tier"`
	LastPaymentAt         sql.NullInt64 `db:"last_payment_at"`
	SubscriptionPaidAt    sql.NullInt64 `db:"subscription_paid_at"`
	SubscriptionClaimedAt sql.NullInt64 `db:"subscription_claimed_at"`
	SubscriptionLastDelta float64       `db:"subscription_last_delta"`
	LastVerifiedTx        string        `db:"last_verified_tx"`
	CreatedAt             int64         `db:"created_at"`
	UpdatedAt             int64         `db:"updated_at"`
	Profile               []byte        `db:"profile"`
}

// GetUser loads the record for a wallet. A degraded store reports
// (nil, nil); a ready store with no such wallet reports ErrNotFound.
func (s *Store) GetUser(ctx context.Context, wallet string) (*model.User, error) {
	if !s.Ready() {
		return nil, nil
	}

	query, args, err := squirrel.
		Select("*").
		From("users").
		Where(squirrel.Eq{"wallet": wallet}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var row userRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return hydrate(row), nil
}

// SaveUser upserts the full record keyed by wallet in one atomic statement.
// A degraded store reports (false, nil).
func (s *Store) SaveUser(ctx context.Context, u *model.User) (bool, error) {
	if !s.Ready() {
		return false, nil
	}

	blob, err := json.Marshal(serialize(u))
	if err != nil {
		return false, errors.Wrap(err, "failed to serialize user profile")
	}

	query, args, err := squirrel.
		Insert("users").
		SetMap(map[string]interface{}{
			"wallet":                  u.Wallet,
			"total_xp":                progression.Coerce(u.TotalXP),
			"paid":                    u.SubscriptionActive,
			"subscription_tier":       string(u.SubscriptionTier),
			"last_payment_at":         timeToMs(u.LastPaymentAt),
			"subscription_paid_at":    timeToMs(u.SubscriptionPaidAt),
			"subscription_claimed_at": timeToMs(u.SubscriptionClaimedAt),
			"subscription_last_delta": u.SubscriptionLastDelta,
			"last_verified_tx":        u.LastVerifiedTx,
			"created_at":              u.CreatedAt.UnixMilli(),
			"updated_at":              u.UpdatedAt.UnixMilli(),
			"profile":                 string(blob),
		}).
		Suffix(`ON CONFLICT(wallet) DO UPDATE SET
			total_xp = excluded.total_xp,
			paid = excluded.paid,
			subscription_tier = excluded.subscription_tier,
			last_payment_at = excluded.last_payment_at,
			subscription_paid_at = excluded.subscription_paid_at,
			subscription_claimed_at = excluded.subscription_claimed_at,
			subscription_last_delta = excluded.subscription_last_delta,
			last_verified_tx = excluded.last_verified_tx,
			updated_at = excluded.updated_at,
			profile = excluded.profile`).
		ToSql()
	if err != nil {
		return false, err
	}

	err = s.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, execErr := tx.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to upsert user")
	}
	return true, nil
}

// TxConsumed reports whether any wallet has already verified this
// transaction hash. Degraded stores have no fleet view and report false.
func (s *Store) TxConsumed(ctx context.Context, hash string) (bool, error) {
	if !s.Ready() {
		return false, nil
	}

	query, args, err := squirrel.
		Select("COUNT(1)").
		From("users").
		Where(squirrel.Expr("last_verified_tx = ? COLLATE NOCASE", hash)).
		ToSql()
	if err != nil {
		return false, err
	}

	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

// TopUsers returns up to limit records ordered by XP descending. Degraded
// stores have no fleet view and report nothing.
func (s *Store) TopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	if !s.Ready() {
		return nil, nil
	}

	query, args, err := squirrel.
		Select("*").
		From("users").
		OrderBy("total_xp DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	users := make([]*model.User, len(rows))
	for i, row := range rows {
		users[i] = hydrate(row)
	}
	return users, nil
}

// serialize builds the JSON-safe blob document: the sanitized opaque profile
// plus the promoted fields, so the blob alone is a complete backup of the
// record.
func serialize(u *model.User) map[string]any {
	doc, _ := Sanitize(u.Profile).(map[string]any)
	if doc == nil {
		doc = make(map[string]any)
	}

	doc["wallet"] = u.Wallet
	doc["totalXP"] = progression.Coerce(u.TotalXP)
	doc["subscriptionTier"] = string(u.SubscriptionTier)
	doc["subscriptionActive"] = u.SubscriptionActive
	doc["subscriptionLastDelta"] = u.SubscriptionLastDelta
	doc["lastVerifiedTx"] = u.LastVerifiedTx
	doc["lastPaymentAt"] = timeToMs(u.LastPaymentAt)
	doc["subscriptionPaidAt"] = timeToMs(u.SubscriptionPaidAt)
	doc["subscriptionClaimedAt"] = timeToMs(u.SubscriptionClaimedAt)
	doc["claimedQuests"] = setToSorted(u.ClaimedQuests)
	doc["referrals"] = setToSorted(u.Referrals)
	doc["createdAt"] = u.CreatedAt.UnixMilli()
	doc["updatedAt"] = u.UpdatedAt.UnixMilli()
	delete(doc, transientAuthedKey)
	return doc
}

// hydrate rebuilds a model.User from a row. The promoted columns are the
// source of truth wherever the blob disagrees; the blob only contributes the
// opaque profile fields, the membership sets and the legacy XP total for
// rows written before the column existed.
func hydrate(row userRow) *model.User {
	var profile map[string]any
	if len(row.Profile) > 0 {
		if err := json.Unmarshal(row.Profile, &profile); err != nil {
			logger.Logger().Warn("malformed profile blob, using empty profile",
				zap.String("wallet", row.Wallet), zap.Error(err))
			profile = nil
		}
	}
	if profile == nil {
		profile = make(map[string]any)
	}

	totalXP := progression.Coerce(row.TotalXP)
	if totalXP == 0 {
		if legacy, ok := progression.CanonicalTotal(profile); ok {
			totalXP = legacy
		}
	}

	tier := model.SubscriptionTier(row.SubscriptionTier)
	if !tier.Valid() {
		tier = model.TierFree
	}

	u := &model.User{
		Wallet:                row.Wallet,
		TotalXP:               totalXP,
		Level:                 progression.DeriveLevel(totalXP),
		SubscriptionTier:      tier,
		SubscriptionActive:    row.Paid,
		LastPaymentAt:         msToTime(row.LastPaymentAt),
		SubscriptionPaidAt:    msToTime(row.SubscriptionPaidAt),
		SubscriptionClaimedAt: msToTime(row.SubscriptionClaimedAt),
		SubscriptionLastDelta: row.SubscriptionLastDelta,
		LastVerifiedTx:        row.LastVerifiedTx,
		ClaimedQuests:         stringSet(profile["claimedQuests"]),
		Referrals:             stringSet(profile["referrals"]),
		CreatedAt:             time.UnixMilli(row.CreatedAt),
		UpdatedAt:             time.UnixMilli(row.UpdatedAt),
	}

	for _, key := range promotedKeys {
		delete(profile, key)
	}
	u.Profile = profile
	return u
}

// stringSet rehydrates an array stored in the blob into a unique-membership
// set, dropping anything that is not a string.
func stringSet(v any) map[string]struct{} {
	out := make(map[string]struct{})
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, member := range arr {
		if s, ok := member.(string); ok && s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func timeToMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func msToTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}
