package enums

import "fmt"

// PayoutStatus tracks the payout state machine.
// Forward-only: pending -> requested -> approved -> paid, with failed as the
// terminal error state reachable from any execution attempt.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusRequested PayoutStatus = "requested"
	PayoutStatusApproved  PayoutStatus = "approved"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusFailed    PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusRequested,
	PayoutStatusApproved,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
