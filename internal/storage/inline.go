package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"healthvault/internal/domain"
)

// maxInlineSize — собственный потолок inline-бэкенда: полезная нагрузка
// живёт прямо в строке таблицы, крупные файлы сюда не принимаются.
const maxInlineSize = 5 * 1024 * 1024

// InlineBackend хранит полезную нагрузку в таблице inline_blobs той же базы,
// что и метаданные. Запись — одиночный INSERT, поэтому частичного состояния
// при неудаче не остаётся.
type InlineBackend struct {
	db *sqlx.DB
}

func NewInlineBackend(db *sqlx.DB) *InlineBackend {
	return &InlineBackend{db: db}
}

func (b *InlineBackend) Tag() string { return TagInline }

func (b *InlineBackend) MaxSize() int64 { return maxInlineSize }

func (b *InlineBackend) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	query := `INSERT INTO inline_blobs (key, data) VALUES ($1, $2)`
	if _, err := b.db.ExecContext(ctx, query, key, data); err != nil {
		return "", fmt.Errorf("failed to insert inline blob: %w", err)
	}
	return b.ResolveURL(key), nil
}

func (b *InlineBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	query := `SELECT data FROM inline_blobs WHERE key = $1`
	if err := b.db.GetContext(ctx, &data, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: blob %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read inline blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *InlineBackend) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM inline_blobs WHERE key = $1`
	if _, err := b.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete inline blob: %w", err)
	}
	return nil
}

func (b *InlineBackend) ResolveURL(key string) string {
	return "/v1/blobs/" + TagInline + "/" + key
}
