// Package progression maps a cumulative XP total onto the fixed ladder of
// isle level tiers. Everything here is pure and synchronous; malformed input
// is coerced rather than rejected.
package progression

import (
	"math"

	"isle_quest_backend/internal/model"
)

type Threshold struct {
	Name   string
	Symbol string
	MinXP  float64
}

// Levels is ordered by ascending MinXP. The current tier is the last entry
// whose MinXP is <= the total.
var Levels = []Threshold{
	{Name: "Beachcomber", Symbol: "🐚", MinXP: 0},
	{Name: "Wave Rider", Symbol: "🌊", MinXP: 10_000},
	{Name: "Reef Explorer", Symbol: "🐠", MinXP: 30_000},
	{Name: "Lagoon Legend", Symbol: "🐬", MinXP: 60_000},
	{Name: "Tide Master", Symbol: "🌀", MinXP: 100_000},
	{Name: "Isle Champion", Symbol: "🏝️", MinXP: 150_000},
	{Name: "Isle Sovereign", Symbol: "👑", MinXP: 250_000},
}

// Coerce clamps a total to a usable non-negative number. NaN and infinities
// come out as 0.
func Coerce(totalXP float64) float64 {
	if math.IsNaN(totalXP) || math.IsInf(totalXP, 0) {
		return 0
	}
	if totalXP < 0 {
		return 0
	}
	return totalXP
}

func DeriveLevel(totalXP float64) model.LevelInfo {
	total := Coerce(totalXP)

	tier := 0
	for i, lvl := range Levels {
		if total >= lvl.MinXP {
			tier = i
		}
	}

	cur := Levels[tier]
	info := model.LevelInfo{
		Tier:        tier,
		Name:        cur.Name,
		Symbol:      cur.Symbol,
		XPIntoLevel: total - cur.MinXP,
	}

	if tier == len(Levels)-1 {
		// Final tier: no next threshold, progress pinned at 1 and
		// "XP to next" reports the XP already earned into it.
		info.Progress = 1
		info.XPToNext = info.XPIntoLevel
		return info
	}

	next := Levels[tier+1]
	span := next.MinXP - cur.MinXP
	info.XPToNext = next.MinXP - total
	info.Progress = math.Min(1, math.Max(0, info.XPIntoLevel/span))
	return info
}

// Apply returns a copy of u with TotalXP set and level info re-derived. The
// input is not mutated and fields the engine does not know about carry over
// unchanged.
func Apply(u model.User, totalXP float64) model.User {
	out := u
	out.TotalXP = Coerce(totalXP)
	out.Level = DeriveLevel(out.TotalXP)
	return out
}

// GrantXP adds delta to the user's total and re-derives the level. Delta may
// be fractional; callers granting rewards must not pass negative values, but
// the function itself only clamps the resulting total at zero.
func GrantXP(u model.User, delta float64) model.User {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		delta = 0
	}
	return Apply(u, u.TotalXP+delta)
}

// legacy field names that carried the XP total in older profile blobs, in
// precedence order
var legacyTotalKeys = []string{"totalXP", "total_xp", "progressTotal", "xp"}

// CanonicalTotal resolves the XP total out of a raw profile map that may use
// any of the legacy field spellings. It is the one-time migration applied at
// the persistence boundary; business logic only ever sees User.TotalXP.
func CanonicalTotal(profile map[string]any) (float64, bool) {
	for _, key := range legacyTotalKeys {
		v, ok := profile[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return Coerce(n), true
		case int:
			return Coerce(float64(n)), true
		case int64:
			return Coerce(float64(n)), true
		}
	}
	return 0, false
}
