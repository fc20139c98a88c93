package settlement

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Splits holds the per-recipient cents carved out of one purchase.
type Splits struct {
	CreatorCents    int64
	AmbassadorCents int64
	LotteryCents    int64
}

// ShareConfig is the percentage layout applied to a purchase amount.
type ShareConfig struct {
	CreatorPct    int
	AmbassadorPct int
	LotteryPct    int
}

// ComputeSplits carves the amount into shares. Each share rounds to whole
// cents independently, so the three parts may drift from the total by a cent
// or two; reconciliation treats the parts as authoritative.
func ComputeSplits(amountCents int64, shares ShareConfig) Splits {
	amount := decimal.NewFromInt(amountCents)
	return Splits{
		CreatorCents:    sharePart(amount, shares.CreatorPct),
		AmbassadorCents: sharePart(amount, shares.AmbassadorPct),
		LotteryCents:    sharePart(amount, shares.LotteryPct),
	}
}

func sharePart(amount decimal.Decimal, pct int) int64 {
	if pct <= 0 {
		return 0
	}
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(0).IntPart()
}
