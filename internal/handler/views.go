package handler

import (
	"time"

	"healthvault/internal/domain"
)

// Внешний контракт использует camelCase, внутренние модели — snake_case,
// поэтому ответы собираются из отдельных view-структур.

type NodeView struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	ParentID    *string   `json:"parentId,omitempty"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	MIMEType    *string   `json:"mimeType,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newNodeView(n *domain.Node, downloadURL string) NodeView {
	view := NodeView{
		ID:          n.ID.String(),
		OwnerID:     n.OwnerID,
		Type:        string(n.Type),
		Name:        n.Name,
		MIMEType:    n.MIMEType,
		DownloadURL: downloadURL,
		CreatedAt:   n.CreatedAt,
	}
	if n.ParentID != nil {
		parent := n.ParentID.String()
		view.ParentID = &parent
	}
	return view
}

type ShareView struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"ownerId"`
	RecipientEmail string     `json:"recipientEmail"`
	NodeIDs        []string   `json:"nodeIds"`
	AccessToken    string     `json:"accessToken"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	SharedNodes    []NodeView `json:"sharedNodes"`
}

func newShareView(s *domain.Share, sharedNodes []NodeView) ShareView {
	if sharedNodes == nil {
		sharedNodes = []NodeView{}
	}
	return ShareView{
		ID:             s.ID.String(),
		OwnerID:        s.OwnerID,
		RecipientEmail: s.RecipientEmail,
		NodeIDs:        []string(s.NodeIDs),
		AccessToken:    s.AccessToken,
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
		SharedNodes:    sharedNodes,
	}
}
