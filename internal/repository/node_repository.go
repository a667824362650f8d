package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"healthvault/internal/domain"
)

type NodeRepository struct {
	db *sqlx.DB
}

func NewNodeRepository(db *sqlx.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// isUniqueViolation распознает нарушение уникального индекса Postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create вставляет узел. Уникальность имени среди соседей гарантирует
// индекс nodes_owner_parent_name_idx: проверка на уровне сервиса — лишь
// быстрый путь, при гонке решающим остается constraint.
func (r *NodeRepository) Create(ctx context.Context, node *domain.Node) error {
	query := `
        INSERT INTO nodes (
            id, owner_id, parent_id, type, name,
            mime_type, storage_key, backend, size_bytes, encrypted_file_key
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        ) RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		node.ID,
		node.OwnerID,
		node.ParentID,
		node.Type,
		node.Name,
		node.MIMEType,
		node.StorageKey,
		node.Backend,
		node.SizeBytes,
		node.EncryptedFileKey,
	).Scan(&node.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", domain.ErrDuplicateName, node.Name)
		}
		return fmt.Errorf("failed to create node: %w", err)
	}

	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	query := `SELECT * FROM nodes WHERE id = $1`

	var node domain.Node
	if err := r.db.GetContext(ctx, &node, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return &node, nil
}

// GetByIDs возвращает найденные узлы; отсутствующие идентификаторы
// молча пропускаются, это решение вызывающей стороны.
func (r *NodeRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}

	query := `SELECT * FROM nodes WHERE id = ANY($1)`

	var nodes []domain.Node
	if err := r.db.SelectContext(ctx, &nodes, query, pq.Array(strIDs)); err != nil {
		return nil, fmt.Errorf("failed to get nodes: %w", err)
	}

	return nodes, nil
}

// ListChildren возвращает детей папки (или корня при parentID == nil).
// Порядок не гарантируется.
func (r *NodeRepository) ListChildren(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Node, error) {
	query := `
        SELECT * FROM nodes
        WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2`

	var nodes []domain.Node
	if err := r.db.SelectContext(ctx, &nodes, query, ownerID, parentID); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	return nodes, nil
}

// ExistsName проверяет, занято ли имя среди соседей. excludeID исключает
// сам узел при переименовании.
func (r *NodeRepository) ExistsName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string, excludeID *uuid.UUID) (bool, error) {
	query := `
        SELECT EXISTS(
            SELECT 1 FROM nodes
            WHERE owner_id = $1
            AND parent_id IS NOT DISTINCT FROM $2
            AND name = $3
            AND ($4::uuid IS NULL OR id != $4)
        )`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, ownerID, parentID, name, excludeID); err != nil {
		return false, fmt.Errorf("failed to check name existence: %w", err)
	}

	return exists, nil
}

func (r *NodeRepository) UpdateName(ctx context.Context, id uuid.UUID, ownerID, name string) error {
	query := `UPDATE nodes SET name = $1 WHERE id = $2 AND owner_id = $3`

	result, err := r.db.ExecContext(ctx, query, name, id, ownerID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
		}
		return fmt.Errorf("failed to rename node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}

	return nil
}

// DeleteByIDs удаляет строки одной командой: каскад либо срабатывает
// целиком, либо не трогает метаданные вовсе.
func (r *NodeRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}

	query := `DELETE FROM nodes WHERE id = ANY($1)`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(strIDs)); err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}

	return nil
}
