package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Share представляет ограниченный по времени набор узлов, доступный
// получателю по токену без аутентификации.
type Share struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	OwnerID        string         `json:"owner_id" db:"owner_id"`
	RecipientEmail string         `json:"recipient_email" db:"recipient_email"`
	NodeIDs        pq.StringArray `json:"node_ids" db:"node_ids"`
	AccessToken    string         `json:"access_token" db:"access_token"`
	AccessKey      string         `json:"access_key" db:"access_key"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// ShareWithNodes — share вместе с актуальным состоянием входящих в него узлов.
// Узлы, удалённые владельцем после создания share, в список не попадают.
type ShareWithNodes struct {
	Share Share  `json:"share"`
	Nodes []Node `json:"nodes"`
}
