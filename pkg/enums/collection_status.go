package enums

import "fmt"

// CollectionStatus tracks the lifecycle of a limited drop.
type CollectionStatus string

const (
	CollectionStatusDraft   CollectionStatus = "draft"
	CollectionStatusActive  CollectionStatus = "active"
	CollectionStatusSoldOut CollectionStatus = "sold_out"
)

var validCollectionStatuses = []CollectionStatus{
	CollectionStatusDraft,
	CollectionStatusActive,
	CollectionStatusSoldOut,
}

// String implements fmt.Stringer.
func (c CollectionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c CollectionStatus) IsValid() bool {
	for _, candidate := range validCollectionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCollectionStatus converts raw input into a CollectionStatus.
func ParseCollectionStatus(value string) (CollectionStatus, error) {
	for _, candidate := range validCollectionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid collection status %q", value)
}
