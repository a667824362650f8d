package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"healthvault/internal/domain"
)

// Chain обходит настроенный список бэкендов в порядке приоритета.
// Список загружается на старте и далее только читается.
type Chain struct {
	backends []Backend
}

func NewChain(backends ...Backend) (*Chain, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one storage backend is required")
	}
	return &Chain{backends: backends}, nil
}

// Store сохраняет полезную нагрузку в первый согласившийся бэкенд.
// Пустая или превышающая глобальный лимит нагрузка отклоняется до любого
// обращения к бэкендам. Повторных попыток в рамках одного бэкенда нет:
// неудача означает переход к следующему. После первого успеха обход
// останавливается, двойной записи не бывает.
func (c *Chain) Store(ctx context.Context, data []byte, ownerID, folderHint string) (*domain.BlobReference, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrValidation)
	}
	if int64(len(data)) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit of %d bytes",
			domain.ErrValidation, len(data), MaxPayloadSize)
	}

	key := newObjectKey(ownerID, folderHint)

	for _, b := range c.backends {
		if max := b.MaxSize(); max > 0 && int64(len(data)) > max {
			log.Debug().Str("backend", b.Tag()).Int("size", len(data)).
				Msg("payload exceeds backend capacity, trying next")
			continue
		}

		url, err := b.Put(ctx, key, data)
		if err != nil {
			log.Warn().Err(err).Str("backend", b.Tag()).Str("key", key).
				Msg("backend store failed, trying next")
			continue
		}

		log.Info().Str("backend", b.Tag()).Str("key", key).Int("size", len(data)).
			Msg("blob stored")

		return &domain.BlobReference{
			StorageKey: key,
			SecureURL:  url,
			SizeBytes:  int64(len(data)),
			Backend:    b.Tag(),
		}, nil
	}

	return nil, domain.ErrStorageExhausted
}

// Delete удаляет объект из бэкенда, принявшего запись. Ошибки только
// логируются: вызывающая сторона должна иметь возможность удалить метаданные
// даже при неудачной очистке blob-а. Осиротевший blob — приемлемая утечка
// места, осиротевшие метаданные — нет.
func (c *Chain) Delete(ctx context.Context, tag, key string) {
	b := c.backend(tag)
	if b == nil {
		log.Warn().Str("backend", tag).Str("key", key).Msg("unknown backend tag for deletion")
		return
	}

	if err := b.Remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("backend", tag).Str("key", key).Msg("blob delete failed")
		return
	}

	log.Info().Str("backend", tag).Str("key", key).Msg("blob deleted")
}

// RetrieveURL возвращает стабильную ссылку на объект, пригодную для клиента.
func (c *Chain) RetrieveURL(tag, key string) string {
	b := c.backend(tag)
	if b == nil {
		return ""
	}
	return b.ResolveURL(key)
}

// Open открывает объект для чтения, используется маршрутом скачивания.
func (c *Chain) Open(ctx context.Context, tag, key string) (io.ReadCloser, error) {
	b := c.backend(tag)
	if b == nil {
		return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrNotFound, tag)
	}
	return b.Open(ctx, key)
}

func (c *Chain) backend(tag string) Backend {
	for _, b := range c.backends {
		if b.Tag() == tag {
			return b
		}
	}
	return nil
}
