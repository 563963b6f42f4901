package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gamesync-backend/internal/domain"
)

// fakeStore is an in-memory ProfileStore and WalletStore. DebitCoins
// serializes on a per-store mutex, mirroring the row lock the real
// implementation takes.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[int64]map[string]any
	updated  map[int64]time.Time
	tokens   map[string]domain.PurchaseRecord
	ledger   []domain.LedgerEntry

	replaceCalls int
	creditErr    error
	debitErr     error

	// beforeReplace runs once, unlocked, at the top of ReplaceProfileData,
	// standing in for work committed between a read and its write-back
	beforeReplace func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[int64]map[string]any),
		updated:  make(map[int64]time.Time),
		tokens:   make(map[string]domain.PurchaseRecord),
	}
}

func (f *fakeStore) EnsureProfile(_ context.Context, playerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[playerID]; !ok {
		f.profiles[playerID] = map[string]any{}
		f.updated[playerID] = time.Now()
	}
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, playerID int64) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.profiles[playerID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &domain.Profile{PlayerID: playerID, Data: data, UpdatedAt: f.updated[playerID]}, nil
}

func (f *fakeStore) ReplaceProfileData(_ context.Context, playerID int64, data map[string]any) (*domain.Profile, error) {
	if hook := f.beforeReplace; hook != nil {
		f.beforeReplace = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++

	// The row's own coins value survives the write, as in the real upsert
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = value
	}
	delete(out, domain.CoinsKey)
	if existing, ok := f.profiles[playerID]; ok {
		if coins, has := existing[domain.CoinsKey]; has {
			out[domain.CoinsKey] = coins
		}
	}

	f.profiles[playerID] = out
	f.updated[playerID] = time.Now()
	return &domain.Profile{PlayerID: playerID, Data: out, UpdatedAt: f.updated[playerID]}, nil
}

func (f *fakeStore) GetBalance(_ context.Context, playerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Coins(f.profiles[playerID]), nil
}

func (f *fakeStore) HasPurchaseToken(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[token]
	return ok, nil
}

func (f *fakeStore) CreditPurchase(_ context.Context, rec domain.PurchaseRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creditErr != nil {
		return 0, f.creditErr
	}
	if _, ok := f.tokens[rec.Token]; ok {
		return 0, domain.ErrPurchaseAlreadyProcessed
	}
	f.tokens[rec.Token] = rec
	doc := f.profiles[rec.PlayerID]
	balance := domain.Coins(doc) + rec.Amount
	f.profiles[rec.PlayerID] = domain.SetCoins(doc, balance)
	f.updated[rec.PlayerID] = time.Now()
	return balance, nil
}

func (f *fakeStore) RecordRejectedPurchase(_ context.Context, rec domain.PurchaseRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[rec.Token]; ok {
		return domain.ErrPurchaseAlreadyProcessed
	}
	f.tokens[rec.Token] = rec
	return nil
}

func (f *fakeStore) DebitCoins(_ context.Context, playerID, amount int64, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return 0, f.debitErr
	}
	doc := f.profiles[playerID]
	balance := domain.Coins(doc)
	if balance < amount {
		return 0, &domain.InsufficientBalanceError{Balance: balance, Requested: amount}
	}
	newBalance := balance - amount
	f.profiles[playerID] = domain.SetCoins(doc, newBalance)
	f.updated[playerID] = time.Now()
	f.ledger = append(f.ledger, domain.LedgerEntry{
		PlayerID: playerID,
		Delta:    -amount,
		Reason:   reason,
	})
	return newBalance, nil
}

// fakeVerifier returns a canned verification outcome
type fakeVerifier struct {
	mu     sync.Mutex
	result domain.VerificationResult
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _, _ string) (domain.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.WalletEvent
}

func (f *fakePublisher) PublishWalletEvent(_ context.Context, event domain.WalletEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []domain.WalletEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.WalletEvent(nil), f.events...)
}

// fakeCache is an in-memory SnapshotCache
type fakeCache struct {
	mu        sync.Mutex
	snapshots map[int64]*domain.Snapshot
	balances  map[int64]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		snapshots: make(map[int64]*domain.Snapshot),
		balances:  make(map[int64]int64),
	}
}

func (f *fakeCache) GetSnapshot(_ context.Context, playerID int64) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[playerID], nil
}

func (f *fakeCache) SetSnapshot(_ context.Context, playerID int64, snapshot *domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[playerID] = snapshot
	return nil
}

func (f *fakeCache) GetBalance(_ context.Context, playerID int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[playerID]
	return balance, ok, nil
}

func (f *fakeCache) SetBalance(_ context.Context, playerID, balance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[playerID] = balance
	return nil
}

func (f *fakeCache) InvalidatePlayer(_ context.Context, playerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, playerID)
	delete(f.balances, playerID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
