package domain

import "time"

// WalletEventType identifies what changed a player's stored state
type WalletEventType string

const (
	WalletEventCredit WalletEventType = "credit"
	WalletEventDebit  WalletEventType = "debit"
	WalletEventMerge  WalletEventType = "merge"
)

// WalletEvent is published to the event stream after a successful state
// change. Delivery is best-effort; the database row is the source of truth.
type WalletEvent struct {
	EventID   string          `json:"event_id"`
	Type      WalletEventType `json:"type"`
	PlayerID  int64           `json:"player_id"`
	Amount    int64           `json:"amount,omitempty"`
	Balance   int64           `json:"balance,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
