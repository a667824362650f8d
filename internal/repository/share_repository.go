package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthvault/internal/domain"
)

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

func (r *ShareRepository) Create(ctx context.Context, share *domain.Share) error {
	query := `
        INSERT INTO shares (
            id, owner_id, recipient_email, node_ids,
            access_token, access_key, expires_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        ) RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		share.ID,
		share.OwnerID,
		share.RecipientEmail,
		share.NodeIDs,
		share.AccessToken,
		share.AccessKey,
		share.ExpiresAt,
	).Scan(&share.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}

	return nil
}

// GetByToken находит действующий share по токену. Срок действия входит
// прямо в условие выборки: несуществующий и истекший токены дают один и
// тот же ErrNotFound, наружу не утекает, существовал ли токен вообще.
func (r *ShareRepository) GetByToken(ctx context.Context, token string) (*domain.Share, error) {
	query := `
        SELECT * FROM shares
        WHERE access_token = $1
        AND expires_at > CURRENT_TIMESTAMP`

	var share domain.Share
	if err := r.db.GetContext(ctx, &share, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get share by token: %w", err)
	}

	return &share, nil
}

func (r *ShareRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Share, error) {
	query := `SELECT * FROM shares WHERE id = $1`

	var share domain.Share
	if err := r.db.GetContext(ctx, &share, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: share %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &share, nil
}

// ListByOwner возвращает только действующие share владельца.
func (r *ShareRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Share, error) {
	query := `
        SELECT * FROM shares
        WHERE owner_id = $1
        AND expires_at > CURRENT_TIMESTAMP
        ORDER BY created_at DESC`

	var shares []domain.Share
	if err := r.db.SelectContext(ctx, &shares, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}

	return shares, nil
}

func (r *ShareRepository) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	query := `DELETE FROM shares WHERE id = $1 AND owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: share %s", domain.ErrNotFound, id)
	}

	return nil
}

// DeleteExpired подчищает строки с истекшим сроком. Чистая гигиена:
// корректность чтения обеспечивает GetByToken, а не эта операция.
func (r *ShareRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM shares WHERE expires_at < CURRENT_TIMESTAMP`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shares: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rows, nil
}
