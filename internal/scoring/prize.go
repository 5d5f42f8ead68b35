package scoring

import (
	"fmt"

	"contest-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// PlatformFeePercent is withheld from every prize pool.
const PlatformFeePercent = 10

var hundred = decimal.NewFromInt(100)

// PrizeInput carries everything the prize calculator needs.
type PrizeInput struct {
	EntryFee   decimal.Decimal
	PrizeSplit []int
	Ranking    []domain.Standing // already ranked, see Rank
}

// NetPool returns the pool after the platform fee for joined participants.
func NetPool(entryFee decimal.Decimal, joined int) (total, fee, net decimal.Decimal) {
	total = entryFee.Mul(decimal.NewFromInt(int64(joined)))
	net = total.Mul(decimal.NewFromInt(100 - PlatformFeePercent)).Div(hundred)
	fee = total.Sub(net)
	return total, fee, net
}

// ComputePayouts splits the net pool across ranks. Tier amounts are floored to
// whole currency units and the residue goes to rank 1, so payouts always sum to
// the net pool. Exactly two participants play winner-take-all.
func ComputePayouts(in PrizeInput) (domain.PrizeTable, error) {
	joined := len(in.Ranking)
	if joined < 2 {
		return domain.PrizeTable{}, fmt.Errorf("compute payouts for %d participants: %w", joined, domain.ErrInsufficientParticipants)
	}
	if err := ValidateSplit(in.PrizeSplit); err != nil && joined != 2 {
		return domain.PrizeTable{}, err
	}

	total, fee, net := NetPool(in.EntryFee, joined)
	payouts := make([]domain.Payout, joined)
	for i, s := range in.Ranking {
		payouts[i] = domain.Payout{Rank: i + 1, UserID: s.UserID, Amount: decimal.Zero}
	}

	if joined == 2 {
		payouts[0].Amount = net
	} else {
		distributed := decimal.Zero
		for i, pct := range in.PrizeSplit {
			if i >= joined {
				break
			}
			amount := net.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Floor()
			payouts[i].Amount = amount
			distributed = distributed.Add(amount)
		}
		payouts[0].Amount = payouts[0].Amount.Add(net.Sub(distributed))
	}

	return domain.PrizeTable{
		TotalPool:   total,
		PlatformFee: fee,
		NetPool:     net,
		Payouts:     payouts,
	}, nil
}

// ValidateSplit checks that every tier is positive and the tiers sum to 100.
func ValidateSplit(split []int) error {
	if len(split) == 0 {
		return fmt.Errorf("%w: prize split is empty", domain.ErrInvalidContestSpec)
	}
	sum := 0
	for i, pct := range split {
		if pct <= 0 {
			return fmt.Errorf("%w: prize split tier %d must be positive", domain.ErrInvalidContestSpec, i+1)
		}
		sum += pct
	}
	if sum != 100 {
		return fmt.Errorf("%w: prize split sums to %d, want 100", domain.ErrInvalidContestSpec, sum)
	}
	return nil
}
