package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// PurchaseState represents the terminal state of a purchase token record
type PurchaseState string

const (
	PurchaseStateCredited PurchaseState = "credited"
	PurchaseStateRejected PurchaseState = "rejected"
)

// PurchaseRecord is one verification attempt for a purchase token.
// Rows are immutable after insertion; the token's uniqueness constraint is
// the linearization point for "this purchase has been processed".
type PurchaseRecord struct {
	Token       string          `json:"token"`
	PlayerID    int64           `json:"player_id"`
	ProductID   string          `json:"product_id"`
	Amount      int64           `json:"amount"`
	State       PurchaseState   `json:"state"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LedgerEntry is a best-effort audit record for a balance change
type LedgerEntry struct {
	PlayerID  int64     `json:"player_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxLedgerReasonLen bounds the free-text reason stored in the audit trail
const MaxLedgerReasonLen = 255

// TruncateLedgerReason caps a reason at MaxLedgerReasonLen bytes without
// splitting a UTF-8 rune; a torn rune would make the row invalid text.
func TruncateLedgerReason(reason string) string {
	if len(reason) <= MaxLedgerReasonLen {
		return reason
	}
	cut := MaxLedgerReasonLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// CreditResult reports a successful top-up
type CreditResult struct {
	ProductID string `json:"product_id"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

// DebitResult reports a successful spend
type DebitResult struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

// VerificationResult is the purchase gateway's verdict plus its raw response,
// persisted for audit regardless of outcome
type VerificationResult struct {
	Verified bool
	Raw      json.RawMessage
}

// PriceTable maps product identifiers to the coin amount they grant
type PriceTable map[string]int64

// DefaultPriceTable returns the built-in product catalog
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"coins_150":  150,
		"coins_500":  500,
		"coins_1200": 1200,
	}
}

// Amount resolves a product identifier to its coin grant
func (p PriceTable) Amount(productID string) (int64, bool) {
	amount, ok := p[productID]
	if !ok || amount <= 0 {
		return 0, false
	}
	return amount, true
}
