package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gamesync-backend/internal/domain"
	"github.com/gamesync-backend/internal/merge"
	"github.com/gamesync-backend/internal/websocket"
)

// SyncService reconciles client-submitted game state with the stored profile
type SyncService struct {
	store     ProfileStore
	cache     SnapshotCache
	publisher EventPublisher
	hub       *websocket.Hub
	logger    *slog.Logger
}

// NewSyncService creates a new sync service. Cache and publisher may be nil.
func NewSyncService(store ProfileStore, cache SnapshotCache, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// SetPublisher attaches the wallet event stream
func (s *SyncService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SetHub attaches the WebSocket hub for push notifications
func (s *SyncService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}

// GetSnapshot returns the player's stored document, creating an empty
// profile on first access. A brand-new player gets an empty document, not
// an error.
func (s *SyncService) GetSnapshot(ctx context.Context, playerID int64) (*domain.Snapshot, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSnapshot(ctx, playerID)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", "player_id", playerID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	// Insert-if-absent, then unconditionally read: the read may race with a
	// concurrent insert from another request, but both converge on one row.
	if err := s.store.EnsureProfile(ctx, playerID); err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", err)
	}
	profile, err := s.store.GetProfile(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}

	snapshot := &domain.Snapshot{Data: profile.Data, UpdatedAt: profile.UpdatedAt}
	s.cacheSnapshot(ctx, playerID, snapshot)
	return snapshot, nil
}

// MergeSnapshot combines a client-submitted partial document with the stored
// one. Client fields with no opinion (nulls, blanks, emptied objects) are
// dropped, server-authoritative fields are stripped, and an effectively empty
// payload performs no write at all. The read here is unlocked; the store's
// replace keeps the row's own balance, so a ledger write landing between
// this read and the write-back is never clobbered.
func (s *SyncService) MergeSnapshot(ctx context.Context, playerID int64, clientDoc map[string]any) (*domain.Snapshot, error) {
	if clientDoc == nil {
		return nil, domain.ErrInvalidDocument
	}

	sanitized := merge.Sanitize(clientDoc)
	for _, key := range domain.AuthoritativeKeys {
		delete(sanitized, key)
	}

	if len(sanitized) == 0 {
		// Nothing new to report: read-only fallback
		return s.GetSnapshot(ctx, playerID)
	}

	if err := s.store.EnsureProfile(ctx, playerID); err != nil {
		return nil, fmt.Errorf("ensuring profile: %w", err)
	}
	stored, err := s.store.GetProfile(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting profile for merge: %w", err)
	}

	merged := merge.Merge(stored.Data, sanitized)
	profile, err := s.store.ReplaceProfileData(ctx, playerID, merged)
	if err != nil {
		return nil, fmt.Errorf("persisting merged profile: %w", err)
	}

	s.invalidateCache(ctx, playerID)
	s.publishEvent(ctx, domain.WalletEvent{
		EventID:   uuid.New().String(),
		Type:      domain.WalletEventMerge,
		PlayerID:  playerID,
		Timestamp: time.Now(),
	})
	if s.hub != nil {
		s.hub.BroadcastSyncUpdate(playerID, profile.UpdatedAt)
	}

	return &domain.Snapshot{Data: profile.Data, UpdatedAt: profile.UpdatedAt}, nil
}

func (s *SyncService) cacheSnapshot(ctx context.Context, playerID int64, snapshot *domain.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetSnapshot(ctx, playerID, snapshot); err != nil {
		s.logger.Warn("snapshot cache write failed", "player_id", playerID, "error", err)
	}
}

func (s *SyncService) invalidateCache(ctx context.Context, playerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePlayer(ctx, playerID); err != nil {
		s.logger.Warn("cache invalidation failed", "player_id", playerID, "error", err)
	}
}

func (s *SyncService) publishEvent(ctx context.Context, event domain.WalletEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishWalletEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish wallet event", "event_id", event.EventID, "error", err)
		// Don't fail the request if event publishing fails
	}
}
