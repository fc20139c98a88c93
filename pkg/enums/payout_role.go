package enums

import "fmt"

// PayoutRole names the revenue share a payout row settles.
type PayoutRole string

const (
	PayoutRoleCreator    PayoutRole = "creator"
	PayoutRoleAmbassador PayoutRole = "ambassador"
	PayoutRoleWinner     PayoutRole = "winner"
)

var validPayoutRoles = []PayoutRole{
	PayoutRoleCreator,
	PayoutRoleAmbassador,
	PayoutRoleWinner,
}

// String implements fmt.Stringer.
func (p PayoutRole) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PayoutRole) IsValid() bool {
	for _, candidate := range validPayoutRoles {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutRole converts raw input into a PayoutRole.
func ParsePayoutRole(value string) (PayoutRole, error) {
	for _, candidate := range validPayoutRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout role %q", value)
}
