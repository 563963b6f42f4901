package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gamesync-backend/internal/domain"
)

// HasPurchaseToken checks whether a token already has a record. This is the
// fast-path duplicate rejection; the uniqueness constraint on the token
// column remains the real guarantee, since this check and the credit insert
// are not atomic with each other.
func (r *Repository) HasPurchaseToken(ctx context.Context, token string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM purchase_tokens WHERE token = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking purchase token: %w", err)
	}
	return exists, nil
}

// CreditPurchase records a verified purchase and increases the balance in a
// single transaction. The token row insert is the linearization point: a
// concurrent request holding the same token loses on the primary key and
// surfaces ErrPurchaseAlreadyProcessed, leaving the balance untouched.
func (r *Repository) CreditPurchase(ctx context.Context, rec domain.PurchaseRecord) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("beginning credit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO purchase_tokens (token, player_id, product_id, amount, state, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, rec.Token, rec.PlayerID, rec.ProductID, rec.Amount, string(domain.PurchaseStateCredited), rec.RawResponse)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrPurchaseAlreadyProcessed
		}
		return 0, fmt.Errorf("inserting purchase token: %w", err)
	}

	newBalance, err := adjustBalance(ctx, tx, rec.PlayerID, rec.Amount)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing credit: %w", err)
	}
	return newBalance, nil
}

// RecordRejectedPurchase stores a failed verification attempt for audit. The
// token still consumes its uniqueness slot, so a known-bad token cannot be
// replayed later under a different amount.
func (r *Repository) RecordRejectedPurchase(ctx context.Context, rec domain.PurchaseRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO purchase_tokens (token, player_id, product_id, amount, state, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, rec.Token, rec.PlayerID, rec.ProductID, rec.Amount, string(domain.PurchaseStateRejected), rec.RawResponse)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPurchaseAlreadyProcessed
		}
		return fmt.Errorf("recording rejected purchase: %w", err)
	}
	return nil
}

// DebitCoins decrements the balance under a row lock so the check and the
// write form one critical section. An insufficient balance performs no write
// and reports the value observed under the lock. On success an audit ledger
// entry is appended after commit; its failure is logged, never surfaced.
func (r *Repository) DebitCoins(ctx context.Context, playerID, amount int64, reason string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("beginning debit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (player_id, data, updated_at)
		VALUES ($1, '{}'::jsonb, now())
		ON CONFLICT (player_id) DO NOTHING
	`, playerID); err != nil {
		return 0, fmt.Errorf("ensuring profile for debit: %w", err)
	}

	var data map[string]any
	if err := tx.QueryRow(ctx, `
		SELECT data FROM profiles WHERE player_id = $1 FOR UPDATE
	`, playerID).Scan(&data); err != nil {
		return 0, fmt.Errorf("locking profile for debit: %w", err)
	}

	balance := domain.Coins(data)
	if balance < amount {
		return 0, &domain.InsufficientBalanceError{Balance: balance, Requested: amount}
	}

	newBalance := balance - amount
	if _, err := tx.Exec(ctx, `
		UPDATE profiles
		SET data = jsonb_set(COALESCE(data, '{}'::jsonb), '{coins}', to_jsonb($2::bigint)),
		    updated_at = now()
		WHERE player_id = $1
	`, playerID, newBalance); err != nil {
		return 0, fmt.Errorf("updating balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing debit: %w", err)
	}

	if err := r.AppendLedgerEntry(ctx, domain.LedgerEntry{
		PlayerID: playerID,
		Delta:    -amount,
		Reason:   domain.TruncateLedgerReason(reason),
	}); err != nil {
		r.logger.Warn("failed to append ledger entry",
			"player_id", playerID,
			"error", err,
		)
		// Don't fail the debit if audit recording fails
	}

	return newBalance, nil
}

// AppendLedgerEntry writes one audit trail row
func (r *Repository) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallet_ledger (player_id, delta, reason, created_at)
		VALUES ($1, $2, $3, now())
	`, entry.PlayerID, entry.Delta, entry.Reason)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return nil
}

// adjustBalance reads the locked document inside tx and rewrites the coins
// field with the delta applied
func adjustBalance(ctx context.Context, tx pgx.Tx, playerID, delta int64) (int64, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (player_id, data, updated_at)
		VALUES ($1, '{}'::jsonb, now())
		ON CONFLICT (player_id) DO NOTHING
	`, playerID); err != nil {
		return 0, fmt.Errorf("ensuring profile for credit: %w", err)
	}

	var data map[string]any
	if err := tx.QueryRow(ctx, `
		SELECT data FROM profiles WHERE player_id = $1 FOR UPDATE
	`, playerID).Scan(&data); err != nil {
		return 0, fmt.Errorf("locking profile for credit: %w", err)
	}

	newBalance := domain.Coins(data) + delta
	if _, err := tx.Exec(ctx, `
		UPDATE profiles
		SET data = jsonb_set(COALESCE(data, '{}'::jsonb), '{coins}', to_jsonb($2::bigint)),
		    updated_at = now()
		WHERE player_id = $1
	`, playerID, newBalance); err != nil {
		return 0, fmt.Errorf("updating balance: %w", err)
	}
	return newBalance, nil
}
