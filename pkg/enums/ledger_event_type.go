package enums

// LedgerEventType classifies an append-only money movement.
type LedgerEventType string

const (
	LedgerEventTypeCashCollected LedgerEventType = "cash_collected"
	LedgerEventTypeVendorPayout  LedgerEventType = "vendor_payout"
	LedgerEventTypeAdjustment    LedgerEventType = "adjustment"
	LedgerEventTypeRefund        LedgerEventType = "refund"
)

// ledgerReference names the row a ledger event must point at. Empty means
// any of order, company or payout will do.
var ledgerReference = map[LedgerEventType]string{
	LedgerEventTypeCashCollected: "order",
	LedgerEventTypeVendorPayout:  "payout",
	LedgerEventTypeAdjustment:    "",
	LedgerEventTypeRefund:        "order",
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	_, ok := ledgerReference[t]
	return ok
}

// RequiredReference returns "order", "payout" or "" for types that accept
// any reference.
func (t LedgerEventType) RequiredReference() string {
	return ledgerReference[t]
}
