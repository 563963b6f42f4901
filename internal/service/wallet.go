package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gamesync-backend/internal/domain"
	"github.com/gamesync-backend/internal/websocket"
)

// WalletService mutates the server-authoritative coin balance. Credits are
// idempotent per purchase token; debits are serialized per player by the
// store's row lock so the balance never goes negative.
type WalletService struct {
	store     WalletStore
	prices    domain.PriceTable
	verifier  PurchaseVerifier
	cache     SnapshotCache
	publisher EventPublisher
	hub       *websocket.Hub
	logger    *slog.Logger
}

// NewWalletService creates a new wallet service. Cache and publisher may be nil.
func NewWalletService(store WalletStore, verifier PurchaseVerifier, prices domain.PriceTable, cache SnapshotCache, logger *slog.Logger) *WalletService {
	if prices == nil {
		prices = domain.DefaultPriceTable()
	}
	return &WalletService{
		store:    store,
		prices:   prices,
		verifier: verifier,
		cache:    cache,
		logger:   logger,
	}
}

// SetPublisher attaches the wallet event stream
func (s *WalletService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SetHub attaches the WebSocket hub for push notifications
func (s *WalletService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}

// GetBalance returns the player's current coin balance
func (s *WalletService) GetBalance(ctx context.Context, playerID int64) (int64, error) {
	if s.cache != nil {
		balance, ok, err := s.cache.GetBalance(ctx, playerID)
		if err != nil {
			s.logger.Warn("balance cache read failed", "player_id", playerID, "error", err)
		} else if ok {
			return balance, nil
		}
	}

	balance, err := s.store.GetBalance(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("reading balance: %w", err)
	}
	s.cacheBalance(ctx, playerID, balance)
	return balance, nil
}

// CreditFromPurchase verifies a purchase token and credits the product's
// coin amount exactly once. Retries and concurrent duplicates report
// ErrPurchaseAlreadyProcessed instead of crediting again.
func (s *WalletService) CreditFromPurchase(ctx context.Context, playerID int64, productID, token string) (*domain.CreditResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidPurchaseToken
	}
	amount, ok := s.prices.Amount(productID)
	if !ok {
		return nil, domain.ErrUnknownProduct
	}

	// Fast-path duplicate rejection before contacting the gateway. The
	// token's uniqueness constraint at insert time is the real guarantee.
	exists, err := s.store.HasPurchaseToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("checking purchase token: %w", err)
	}
	if exists {
		return nil, domain.ErrPurchaseAlreadyProcessed
	}

	verification, verr := s.verifier.Verify(ctx, productID, token)
	if verr != nil || !verification.Verified {
		if verr != nil {
			s.logger.Warn("purchase verification unreachable",
				"player_id", playerID,
				"product_id", productID,
				"error", verr,
			)
		}
		rejected := domain.PurchaseRecord{
			Token:       token,
			PlayerID:    playerID,
			ProductID:   productID,
			Amount:      amount,
			State:       domain.PurchaseStateRejected,
			RawResponse: verification.Raw,
		}
		if err := s.store.RecordRejectedPurchase(ctx, rejected); err != nil {
			if domain.IsConflict(err) {
				return nil, err
			}
			s.logger.Error("failed to record rejected purchase", "player_id", playerID, "error", err)
		}
		return nil, domain.ErrVerificationFailed
	}

	rec := domain.PurchaseRecord{
		Token:       token,
		PlayerID:    playerID,
		ProductID:   productID,
		Amount:      amount,
		State:       domain.PurchaseStateCredited,
		RawResponse: verification.Raw,
	}
	balance, err := s.store.CreditPurchase(ctx, rec)
	if err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("crediting purchase: %w", err)
	}

	s.invalidateCache(ctx, playerID)
	s.cacheBalance(ctx, playerID, balance)
	s.publishEvent(ctx, domain.WalletEvent{
		EventID:   uuid.New().String(),
		Type:      domain.WalletEventCredit,
		PlayerID:  playerID,
		Amount:    amount,
		Balance:   balance,
		ProductID: productID,
		Timestamp: time.Now(),
	})
	if s.hub != nil {
		s.hub.BroadcastWalletUpdate(websocket.WalletUpdate{
			PlayerID: playerID,
			Type:     domain.WalletEventCredit,
			Delta:    amount,
			Balance:  balance,
		})
	}

	return &domain.CreditResult{ProductID: productID, Amount: amount, Balance: balance}, nil
}

// Debit spends coins from the player's balance. The store performs the
// check-then-write under a per-player row lock; an insufficient balance
// surfaces with the value observed inside that critical section.
func (s *WalletService) Debit(ctx context.Context, playerID, amount int64, reason string) (*domain.DebitResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	balance, err := s.store.DebitCoins(ctx, playerID, amount, reason)
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, playerID)
	s.cacheBalance(ctx, playerID, balance)
	s.publishEvent(ctx, domain.WalletEvent{
		EventID:   uuid.New().String(),
		Type:      domain.WalletEventDebit,
		PlayerID:  playerID,
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if s.hub != nil {
		s.hub.BroadcastWalletUpdate(websocket.WalletUpdate{
			PlayerID: playerID,
			Type:     domain.WalletEventDebit,
			Delta:    -amount,
			Balance:  balance,
			Reason:   reason,
		})
	}

	return &domain.DebitResult{Amount: amount, Balance: balance}, nil
}

func (s *WalletService) cacheBalance(ctx context.Context, playerID, balance int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetBalance(ctx, playerID, balance); err != nil {
		s.logger.Warn("balance cache write failed", "player_id", playerID, "error", err)
	}
}

func (s *WalletService) invalidateCache(ctx context.Context, playerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePlayer(ctx, playerID); err != nil {
		s.logger.Warn("cache invalidation failed", "player_id", playerID, "error", err)
	}
}

func (s *WalletService) publishEvent(ctx context.Context, event domain.WalletEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishWalletEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish wallet event", "event_id", event.EventID, "error", err)
		// Don't fail the request if event publishing fails
	}
}
