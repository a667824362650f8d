package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"healthvault/internal/auth"
	"healthvault/internal/domain"
	"healthvault/internal/service"
)

type ShareHandler struct {
	shares *service.ShareService
	nodes  *service.NodeService
}

func NewShareHandler(shares *service.ShareService, nodes *service.NodeService) *ShareHandler {
	return &ShareHandler{shares: shares, nodes: nodes}
}

type createShareRequest struct {
	NodeIDs        []string `json:"nodeIds"`
	RecipientEmail string   `json:"recipientEmail"`
	DurationHours  int      `json:"durationHours"`
}

func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	nodeIDs := make([]uuid.UUID, 0, len(req.NodeIDs))
	for _, raw := range req.NodeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid node id %q", domain.ErrValidation, raw))
			return
		}
		nodeIDs = append(nodeIDs, id)
	}

	result, err := h.shares.Create(r.Context(), ownerID, nodeIDs, req.RecipientEmail, req.DurationHours)
	if err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Msg("create share failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.toShareView(result))
}

func (h *ShareHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	shares, err := h.shares.ListForOwner(r.Context(), ownerID)
	if err != nil {
		respondError(w, err)
		return
	}

	views := make([]ShareView, 0, len(shares))
	for i := range shares {
		views = append(views, newShareView(&shares[i], nil))
	}

	respondJSON(w, http.StatusOK, views)
}

// View разрешает share по токену. Маршрут не требует аутентификации:
// сам токен и есть учетные данные.
func (h *ShareHandler) View(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "accessToken")

	result, err := h.shares.Resolve(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toShareView(result))
}

func (h *ShareHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	shareID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid share id", domain.ErrValidation))
		return
	}

	if err := h.shares.Revoke(r.Context(), shareID, ownerID); err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Str("share", shareID.String()).Msg("revoke failed")
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ShareHandler) toShareView(result *domain.ShareWithNodes) ShareView {
	nodeViews := make([]NodeView, 0, len(result.Nodes))
	for i := range result.Nodes {
		node := &result.Nodes[i]
		nodeViews = append(nodeViews, newNodeView(node, h.nodes.DownloadURL(node)))
	}
	return newShareView(&result.Share, nodeViews)
}
