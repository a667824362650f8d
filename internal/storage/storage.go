package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"healthvault/internal/domain"
)

const (
	// MaxPayloadSize — глобальный потолок размера полезной нагрузки.
	// Проверяется один раз, до обращения к бэкендам.
	MaxPayloadSize = 50 * 1024 * 1024

	// Теги бэкендов. Тег сохраняется в BlobReference и в строке узла,
	// по нему маршрутизируется удаление и выдача URL.
	TagLocal  = "local"
	TagInline = "inline"
	TagS3     = "s3"
	TagMinio  = "minio"
)

// Backend — одна реализация хранилища в цепочке. Все бэкенды взаимозаменяемы:
// цепочка обходит их в порядке приоритета и останавливается на первом успехе.
type Backend interface {
	// Tag возвращает идентификатор бэкенда.
	Tag() string

	// MaxSize возвращает собственный потолок размера для бэкенда.
	// 0 означает, что действует только глобальный лимит.
	MaxSize() int64

	// Put сохраняет данные под ключом и возвращает публичный URL
	// или внутреннюю ссылку на маршрут скачивания.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Open открывает сохранённый объект для чтения.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Remove удаляет объект. Отсутствие объекта ошибкой не считается.
	Remove(ctx context.Context, key string) error

	// ResolveURL возвращает стабильную ссылку на объект.
	ResolveURL(key string) string
}

// newObjectKey строит ключ вида ownerID/folderHint/<uuid>. В ключ не попадает
// ничего, выведенного из содержимого: полезная нагрузка зашифрована клиентом
// и сервер о ней ничего не знает.
func newObjectKey(ownerID, folderHint string) string {
	if folderHint == "" {
		folderHint = "root"
	}
	return fmt.Sprintf("%s/%s/%s", ownerID, folderHint, uuid.New().String())
}

// validateKey отсекает ключи, способные выйти за пределы корня хранилища.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty storage key", domain.ErrValidation)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: invalid storage key %q", domain.ErrValidation, key)
	}
	return nil
}
