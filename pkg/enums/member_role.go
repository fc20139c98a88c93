package enums

import "fmt"

// MemberRole identifies the actor role carried in access tokens and profiles.
type MemberRole string

const (
	MemberRoleStudent    MemberRole = "student"
	MemberRoleAmbassador MemberRole = "ambassador"
	MemberRoleAdmin      MemberRole = "admin"
)

var validMemberRoles = []MemberRole{
	MemberRoleStudent,
	MemberRoleAmbassador,
	MemberRoleAdmin,
}

// String implements fmt.Stringer.
func (m MemberRole) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into a MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
