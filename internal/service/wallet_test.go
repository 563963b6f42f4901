package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamesync-backend/internal/domain"
)

func verifiedResult() domain.VerificationResult {
	return domain.VerificationResult{
		Verified: true,
		Raw:      json.RawMessage(`{"purchaseState":0}`),
	}
}

func TestCreditFromPurchaseHappyPath(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	result, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	require.NoError(t, err)

	assert.Equal(t, "coins_150", result.ProductID)
	assert.Equal(t, int64(150), result.Amount)
	assert.Equal(t, int64(150), result.Balance)
	assert.Equal(t, 1, verifier.calls)

	rec := store.tokens["token-1"]
	assert.Equal(t, domain.PurchaseStateCredited, rec.State)
	assert.JSONEq(t, `{"purchaseState":0}`, string(rec.RawResponse))
}

func TestCreditFromPurchaseAccumulates(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	require.NoError(t, err)
	result, err := svc.CreditFromPurchase(context.Background(), 1, "coins_500", "token-2")
	require.NoError(t, err)

	assert.Equal(t, int64(650), result.Balance)
}

func TestCreditFromPurchaseDuplicateTokenCreditsOnce(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	require.NoError(t, err)

	_, err = svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	assert.ErrorIs(t, err, domain.ErrPurchaseAlreadyProcessed)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
	// The duplicate is rejected before the gateway is contacted again
	assert.Equal(t, 1, verifier.calls)
}

func TestCreditFromPurchaseConcurrentDuplicates(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: verifiedResult()}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "race-token")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrPurchaseAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, succeeded)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
}

func TestCreditFromPurchaseUnknownProduct(t *testing.T) {
	verifier := &fakeVerifier{result: verifiedResult()}
	svc := NewWalletService(newFakeStore(), verifier, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_9999", "token-1")
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)
	assert.Equal(t, 0, verifier.calls)
}

func TestCreditFromPurchaseBlankToken(t *testing.T) {
	svc := NewWalletService(newFakeStore(), &fakeVerifier{}, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidPurchaseToken)
}

func TestCreditFromPurchaseVerificationRejected(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{result: domain.VerificationResult{
		Verified: false,
		Raw:      json.RawMessage(`{"purchaseState":1}`),
	}}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	assert.ErrorIs(t, err, domain.ErrVerificationFailed)

	// The rejected attempt is recorded so a retry with the same token conflicts
	rec, ok := store.tokens["token-1"]
	require.True(t, ok)
	assert.Equal(t, domain.PurchaseStateRejected, rec.State)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCreditFromPurchaseGatewayUnreachable(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{err: errors.New("connect: connection refused")}
	svc := NewWalletService(store, verifier, nil, nil, testLogger())

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-1")
	assert.ErrorIs(t, err, domain.ErrVerificationFailed)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestCreditFromPurchasePublishesEvent(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	svc := NewWalletService(store, &fakeVerifier{result: verifiedResult()}, nil, nil, testLogger())
	svc.SetPublisher(publisher)

	_, err := svc.CreditFromPurchase(context.Background(), 1, "coins_500", "token-1")
	require.NoError(t, err)

	events := publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.WalletEventCredit, events[0].Type)
	assert.Equal(t, int64(500), events[0].Amount)
	assert.Equal(t, int64(500), events[0].Balance)
	assert.Equal(t, "coins_500", events[0].ProductID)
}

func TestDebitHappyPath(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(100)}
	svc := NewWalletService(store, &fakeVerifier{}, nil, nil, testLogger())

	result, err := svc.Debit(context.Background(), 1, 30, "hint")
	require.NoError(t, err)
	assert.Equal(t, int64(30), result.Amount)
	assert.Equal(t, int64(70), result.Balance)

	require.Len(t, store.ledger, 1)
	assert.Equal(t, int64(-30), store.ledger[0].Delta)
	assert.Equal(t, "hint", store.ledger[0].Reason)
}

func TestDebitInsufficientBalance(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(20)}
	svc := NewWalletService(store, &fakeVerifier{}, nil, nil, testLogger())

	_, err := svc.Debit(context.Background(), 1, 50, "hint")

	var insufficient *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(20), insufficient.Balance)
	assert.Equal(t, int64(50), insufficient.Requested)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestDebitRejectsNonPositiveAmounts(t *testing.T) {
	svc := NewWalletService(newFakeStore(), &fakeVerifier{}, nil, nil, testLogger())

	_, err := svc.Debit(context.Background(), 1, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Debit(context.Background(), 1, -10, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDebitConcurrentSpendsNeverOverdraw(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(100)}
	svc := NewWalletService(store, &fakeVerifier{}, nil, nil, testLogger())

	// Two 80-coin spends race against a 100-coin balance; exactly one wins
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), 1, 80, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			var insufficient *domain.InsufficientBalanceError
			assert.ErrorAs(t, err, &insufficient)
		}
	}
	assert.Equal(t, 1, succeeded)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
}

func TestGetBalanceMissingProfileIsZero(t *testing.T) {
	svc := NewWalletService(newFakeStore(), &fakeVerifier{}, nil, nil, testLogger())

	balance, err := svc.GetBalance(context.Background(), 404)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestGetBalanceUsesCache(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(75)}
	cache := newFakeCache()
	svc := NewWalletService(store, &fakeVerifier{}, nil, cache, testLogger())

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)
	assert.Equal(t, int64(75), cache.balances[1])

	// Cached value shadows a store change until invalidated
	store.profiles[1] = map[string]any{"coins": int64(999)}
	balance, err = svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)
}

func TestDebitRefreshesCachedBalance(t *testing.T) {
	store := newFakeStore()
	store.profiles[1] = map[string]any{"coins": int64(100)}
	cache := newFakeCache()
	cache.balances[1] = 100
	svc := NewWalletService(store, &fakeVerifier{}, nil, cache, testLogger())

	_, err := svc.Debit(context.Background(), 1, 40, "unlock")
	require.NoError(t, err)
	assert.Equal(t, int64(60), cache.balances[1])
}

func TestCustomPriceTable(t *testing.T) {
	store := newFakeStore()
	prices := domain.PriceTable{"gems_10": 10}
	svc := NewWalletService(store, &fakeVerifier{result: verifiedResult()}, prices, nil, testLogger())

	result, err := svc.CreditFromPurchase(context.Background(), 1, "gems_10", "token-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Amount)

	_, err = svc.CreditFromPurchase(context.Background(), 1, "coins_150", "token-2")
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)
}
