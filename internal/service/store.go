package service

import (
	"context"

	"github.com/gamesync-backend/internal/domain"
)

// ProfileStore is the persistence surface the sync path consumes
type ProfileStore interface {
	EnsureProfile(ctx context.Context, playerID int64) error
	GetProfile(ctx context.Context, playerID int64) (*domain.Profile, error)
	ReplaceProfileData(ctx context.Context, playerID int64, data map[string]any) (*domain.Profile, error)
}

// WalletStore is the persistence surface the ledger path consumes
type WalletStore interface {
	GetBalance(ctx context.Context, playerID int64) (int64, error)
	HasPurchaseToken(ctx context.Context, token string) (bool, error)
	CreditPurchase(ctx context.Context, rec domain.PurchaseRecord) (int64, error)
	RecordRejectedPurchase(ctx context.Context, rec domain.PurchaseRecord) error
	DebitCoins(ctx context.Context, playerID, amount int64, reason string) (int64, error)
}

// PurchaseVerifier confirms purchase tokens with the store API
type PurchaseVerifier interface {
	Verify(ctx context.Context, productID, token string) (domain.VerificationResult, error)
}

// EventPublisher emits wallet events to the event stream
type EventPublisher interface {
	PublishWalletEvent(ctx context.Context, event domain.WalletEvent) error
}

// SnapshotCache is the optional read-through cache in front of the store
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, playerID int64) (*domain.Snapshot, error)
	SetSnapshot(ctx context.Context, playerID int64, snapshot *domain.Snapshot) error
	GetBalance(ctx context.Context, playerID int64) (int64, bool, error)
	SetBalance(ctx context.Context, playerID, balance int64) error
	InvalidatePlayer(ctx context.Context, playerID int64) error
}
