package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"healthvault/internal/auth"
	"healthvault/internal/domain"
	"healthvault/internal/service"
	"healthvault/internal/storage"
)

// maxUploadMemory — сколько multipart-данных держится в памяти до спила
// на диск при разборе формы.
const maxUploadMemory = 32 << 20

type NodeHandler struct {
	nodes *service.NodeService
}

func NewNodeHandler(nodes *service.NodeService) *NodeHandler {
	return &NodeHandler{nodes: nodes}
}

type createFolderRequest struct {
	ParentID *string `json:"parentId,omitempty"`
	Name     string  `json:"name"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *NodeHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	parentID, err := parseOptionalUUID(req.ParentID)
	if err != nil {
		respondError(w, err)
		return
	}

	folder, err := h.nodes.CreateFolder(r.Context(), ownerID, parentID, req.Name)
	if err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Msg("create folder failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, newNodeView(folder, ""))
}

func (h *NodeHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, fmt.Errorf("%w: file part is required", domain.ErrValidation))
		return
	}
	defer file.Close()

	// Лимит цепочки проверяется по фактическим байтам, но читать больше
	// глобального потолка нет смысла.
	payload, err := io.ReadAll(io.LimitReader(file, storage.MaxPayloadSize+1))
	if err != nil {
		respondError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	mimeType := r.FormValue("mimeType")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	encryptedFileKey := r.FormValue("encryptedFileKey")

	var parentID *uuid.UUID
	if raw := r.FormValue("parentId"); raw != "" {
		parentID, err = parseOptionalUUID(&raw)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	node, err := h.nodes.CreateFile(r.Context(), ownerID, parentID, name, mimeType, encryptedFileKey, payload)
	if err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Str("name", name).Msg("upload file failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, newNodeView(node, h.nodes.DownloadURL(node)))
}

func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var parentID *uuid.UUID
	if raw := r.URL.Query().Get("parentId"); raw != "" {
		parentID, err = parseOptionalUUID(&raw)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	nodes, err := h.nodes.List(r.Context(), ownerID, parentID)
	if err != nil {
		respondError(w, err)
		return
	}

	views := make([]NodeView, 0, len(nodes))
	for i := range nodes {
		views = append(views, newNodeView(&nodes[i], h.nodes.DownloadURL(&nodes[i])))
	}

	respondJSON(w, http.StatusOK, views)
}

func (h *NodeHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	nodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid node id", domain.ErrValidation))
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	node, err := h.nodes.Rename(r.Context(), nodeID, ownerID, req.Name)
	if err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Str("node", nodeID.String()).Msg("rename failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newNodeView(node, h.nodes.DownloadURL(node)))
}

func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.OwnerID(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	nodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: invalid node id", domain.ErrValidation))
		return
	}

	if err := h.nodes.Delete(r.Context(), nodeID, ownerID); err != nil {
		log.Warn().Err(err).Str("owner", ownerID).Str("node", nodeID.String()).Msg("delete failed")
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", domain.ErrValidation, *raw)
	}
	return &id, nil
}
