package enums

import (
	"fmt"
	"strings"
)

// OrderPayoutStatus tracks whether a company's share of an order has been
// claimed by a payout. Owned by the payout service.
type OrderPayoutStatus string

const (
	OrderPayoutStatusUnpaid  OrderPayoutStatus = "unpaid"
	OrderPayoutStatusPending OrderPayoutStatus = "pending"
	OrderPayoutStatusPaid    OrderPayoutStatus = "paid"
)

var validOrderPayoutStatuses = []OrderPayoutStatus{
	OrderPayoutStatusUnpaid,
	OrderPayoutStatusPending,
	OrderPayoutStatusPaid,
}

func (s OrderPayoutStatus) IsValid() bool {
	for _, candidate := range validOrderPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderPayoutStatus converts raw input into OrderPayoutStatus.
func ParseOrderPayoutStatus(value string) (OrderPayoutStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderPayoutStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payout status %q", value)
}
