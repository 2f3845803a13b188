package payment

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// SubscriptionMemoTag marks subscription payments. When the expected memo
// contains the tag, matching is loosened to "comment contains the tag" so the
// per-transaction uniqueness suffix appended by the caller does not have to
// round-trip exactly.
const SubscriptionMemoTag = "ISLE-SUB"

const historyLimit = 50

// ErrMissingField is a caller error: a required verification parameter was
// absent. Distinct from a "not verified" verdict.
var ErrMissingField = errors.New("tx hash and destination address are required")

type HistoryProvider interface {
	Transactions(ctx context.Context, address string, limit int) ([]Transaction, error)
}

type VerifyRequest struct {
	TxHash       string
	ToAddress    string
	MinAmount    *big.Int
	ExpectedMemo string
}

// VerifyResult reports the verdict along with the actually-observed
// destination, amount and comment so a mismatch can be surfaced precisely.
type VerifyResult struct {
	Verified bool
	Amount   *big.Int
	To       string
	Comment  string
}

type Verifier struct {
	history HistoryProvider
}

func NewVerifier(history HistoryProvider) *Verifier {
	return &Verifier{history: history}
}

// Verify reconciles a claimed transaction hash against the recent history of
// the destination address. A transaction that is simply not there yet yields
// Verified=false with no error and is safe to retry; provider failures
// propagate as errors and are never reinterpreted as a negative verdict.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if strings.TrimSpace(req.TxHash) == "" || strings.TrimSpace(req.ToAddress) == "" {
		return VerifyResult{}, ErrMissingField
	}

	txs, err := v.history.Transactions(ctx, req.ToAddress, historyLimit)
	if err != nil {
		return VerifyResult{}, err
	}

	var match *Transaction
	for i := range txs {
		if txs[i].Matches(req.TxHash) {
			match = &txs[i]
			break
		}
	}
	if match == nil {
		return VerifyResult{}, nil
	}

	result := VerifyResult{
		Amount:  match.Amount,
		To:      match.Destination,
		Comment: match.Comment,
	}

	if strings.TrimSpace(match.Destination) != strings.TrimSpace(req.ToAddress) {
		return result, nil
	}

	if req.MinAmount != nil {
		amount := match.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		if amount.Cmp(req.MinAmount) < 0 {
			return result, nil
		}
	}

	if req.ExpectedMemo != "" && !memoMatches(match.Comment, req.ExpectedMemo) {
		return result, nil
	}

	result.Verified = true
	return result, nil
}

func memoMatches(comment, expected string) bool {
	if strings.Contains(expected, SubscriptionMemoTag) {
		return strings.Contains(comment, SubscriptionMemoTag)
	}
	return strings.Contains(comment, expected)
}
