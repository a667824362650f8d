package auth

import (
	"fmt"
	"net/http"
)

// Идентификация выполняется выше по стеку: внешний слой аутентификации
// проверяет учетные данные и передает сюда уже разрешенный идентификатор
// владельца заголовком. Ядро трактует его как непрозрачную строку.
const ownerHeader = "X-Owner-Id"

// OwnerID извлекает идентификатор владельца из запроса.
func OwnerID(r *http.Request) (string, error) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		return "", fmt.Errorf("missing %s header", ownerHeader)
	}
	return owner, nil
}
