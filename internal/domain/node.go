package domain

import (
	"time"

	"github.com/google/uuid"
)

type NodeType string

const (
	NodeTypeFolder NodeType = "folder"
	NodeTypeFile   NodeType = "file"
)

// Node представляет один элемент (папку или файл) в иерархии владельца.
// Поля MIMEType, StorageKey, Backend и EncryptedFileKey заполняются только
// для файлов; для папок они всегда NULL.
type Node struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	ParentID         *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	Type             NodeType   `json:"type" db:"type"`
	Name             string     `json:"name" db:"name"`
	MIMEType         *string    `json:"mime_type,omitempty" db:"mime_type"`
	StorageKey       *string    `json:"storage_key,omitempty" db:"storage_key"`
	Backend          *string    `json:"backend,omitempty" db:"backend"`
	SizeBytes        int64      `json:"size_bytes" db:"size_bytes"`
	EncryptedFileKey *string    `json:"encrypted_file_key,omitempty" db:"encrypted_file_key"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

func (n *Node) IsFolder() bool {
	return n.Type == NodeTypeFolder
}

func (n *Node) IsFile() bool {
	return n.Type == NodeTypeFile
}

// BlobReference описывает результат успешной записи в хранилище.
// Backend идентифицирует бэкенд, принявший запись: по нему маршрутизируется
// последующее удаление, без повторного перебора цепочки.
type BlobReference struct {
	StorageKey string `json:"storage_key"`
	SecureURL  string `json:"secure_url"`
	SizeBytes  int64  `json:"size_bytes"`
	Backend    string `json:"backend"`
}
