package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"healthvault/internal/storage"
)

// BlobHandler отдает содержимое blob-ов, сохраненных в бэкендах без
// собственного публичного URL (local, inline). Маршрут не аутентифицируется:
// ключ содержит случайный UUID, а содержимое — шифротекст клиента.
type BlobHandler struct {
	chain *storage.Chain
}

func NewBlobHandler(chain *storage.Chain) *BlobHandler {
	return &BlobHandler{chain: chain}
}

func (h *BlobHandler) Download(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "backend")
	key := chi.URLParam(r, "*")

	rc, err := h.chain.Open(r.Context(), tag, key)
	if err != nil {
		respondError(w, err)
		return
	}
	defer rc.Close()

	// Сервер не знает настоящего типа содержимого: оно зашифровано.
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("backend", tag).Str("key", key).Msg("blob download interrupted")
	}
}
