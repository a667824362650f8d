package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"healthvault/internal/domain"
)

// maxCascadeNodes — практический потолок каскадного удаления. Обход
// прерывается до удаления первой строки, поэтому слишком большое поддерево
// никогда не остается удаленным наполовину.
const maxCascadeNodes = 5000

// NodeRepository описывает доступ к метаданным узлов. Реализуется
// repository.NodeRepository, в тестах — фейками.
type NodeRepository interface {
	Create(ctx context.Context, node *domain.Node) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Node, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Node, error)
	ListChildren(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Node, error)
	ExistsName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string, excludeID *uuid.UUID) (bool, error)
	UpdateName(ctx context.Context, id uuid.UUID, ownerID, name string) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

// BlobStore описывает цепочку хранилищ со стороны сервиса.
type BlobStore interface {
	Store(ctx context.Context, data []byte, ownerID, folderHint string) (*domain.BlobReference, error)
	Delete(ctx context.Context, tag, key string)
	RetrieveURL(tag, key string) string
}

// NodeService поддерживает иерархию папок и файлов владельца.
type NodeService struct {
	nodeRepo NodeRepository
	blobs    BlobStore
}

func NewNodeService(nodeRepo NodeRepository, blobs BlobStore) *NodeService {
	return &NodeService{
		nodeRepo: nodeRepo,
		blobs:    blobs,
	}
}

// List возвращает детей папки; parentID == nil означает корень владельца.
func (s *NodeService) List(ctx context.Context, ownerID string, parentID *uuid.UUID) ([]domain.Node, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	return s.nodeRepo.ListChildren(ctx, ownerID, parentID)
}

// CreateFolder создает папку. Имя должно быть уникально среди соседей.
func (s *NodeService) CreateFolder(ctx context.Context, ownerID string, parentID *uuid.UUID, name string) (*domain.Node, error) {
	if err := validateNodeInput(ownerID, name); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}
	if err := s.checkSiblingName(ctx, ownerID, parentID, name, nil); err != nil {
		return nil, err
	}

	folder := &domain.Node{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		ParentID: parentID,
		Type:     domain.NodeTypeFolder,
		Name:     name,
	}

	if err := s.nodeRepo.Create(ctx, folder); err != nil {
		return nil, err
	}

	return folder, nil
}

// CreateFile сохраняет полезную нагрузку через цепочку хранилищ и только
// после успешной записи создает строку узла: неудавшееся сохранение не
// оставляет висящего узла. Содержимое зашифровано клиентом, сервер хранит
// ключ шифрования как непрозрачную строку.
func (s *NodeService) CreateFile(ctx context.Context, ownerID string, parentID *uuid.UUID, name, mimeType, encryptedFileKey string, payload []byte) (*domain.Node, error) {
	if err := validateNodeInput(ownerID, name); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, ownerID, parentID); err != nil {
		return nil, err
	}
	if err := s.checkSiblingName(ctx, ownerID, parentID, name, nil); err != nil {
		return nil, err
	}

	folderHint := "root"
	if parentID != nil {
		folderHint = "folder_" + parentID.String()
	}

	ref, err := s.blobs.Store(ctx, payload, ownerID, folderHint)
	if err != nil {
		return nil, err
	}

	file := &domain.Node{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		ParentID:         parentID,
		Type:             domain.NodeTypeFile,
		Name:             name,
		MIMEType:         &mimeType,
		StorageKey:       &ref.StorageKey,
		Backend:          &ref.Backend,
		SizeBytes:        ref.SizeBytes,
		EncryptedFileKey: &encryptedFileKey,
	}

	if err := s.nodeRepo.Create(ctx, file); err != nil {
		// Строка не записана — подчищаем blob, чтобы не плодить сирот.
		s.blobs.Delete(ctx, ref.Backend, ref.StorageKey)
		return nil, err
	}

	return file, nil
}

// Rename меняет имя узла. Имя — единственное изменяемое поле.
func (s *NodeService) Rename(ctx context.Context, nodeID uuid.UUID, ownerID, newName string) (*domain.Node, error) {
	if err := validateNodeInput(ownerID, newName); err != nil {
		return nil, err
	}

	node, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: node %s", domain.ErrUnauthorized, nodeID)
	}
	if node.Name == newName {
		return node, nil
	}

	if err := s.checkSiblingName(ctx, ownerID, node.ParentID, newName, &node.ID); err != nil {
		return nil, err
	}

	if err := s.nodeRepo.UpdateName(ctx, nodeID, ownerID, newName); err != nil {
		return nil, err
	}

	node.Name = newName
	return node, nil
}

// Delete удаляет узел. Для папки поддерево обходится явной очередью в
// ширину, без рекурсии вызовов; blob-ы файлов удаляются ровно одной
// попыткой каждый, а все строки метаданных уходят одной командой уже
// после попыток очистки.
func (s *NodeService) Delete(ctx context.Context, nodeID uuid.UUID, ownerID string) error {
	node, err := s.nodeRepo.GetByID(ctx, nodeID)
	if err != nil {
		return err
	}
	if node.OwnerID != ownerID {
		return fmt.Errorf("%w: node %s", domain.ErrUnauthorized, nodeID)
	}

	type blobRef struct {
		tag string
		key string
	}

	ids := []uuid.UUID{node.ID}
	var refs []blobRef

	if node.IsFile() {
		if node.Backend != nil && node.StorageKey != nil {
			refs = append(refs, blobRef{tag: *node.Backend, key: *node.StorageKey})
		}
	} else {
		queue := []uuid.UUID{node.ID}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			children, err := s.nodeRepo.ListChildren(ctx, ownerID, &current)
			if err != nil {
				return err
			}

			for i := range children {
				child := children[i]
				ids = append(ids, child.ID)
				if len(ids) > maxCascadeNodes {
					return fmt.Errorf("%w: subtree exceeds %d nodes", domain.ErrValidation, maxCascadeNodes)
				}

				switch {
				case child.IsFolder():
					queue = append(queue, child.ID)
				case child.Backend != nil && child.StorageKey != nil:
					refs = append(refs, blobRef{tag: *child.Backend, key: *child.StorageKey})
				}
			}
		}
	}

	for _, ref := range refs {
		s.blobs.Delete(ctx, ref.tag, ref.key)
	}

	return s.nodeRepo.DeleteByIDs(ctx, ids)
}

// DownloadURL возвращает ссылку на содержимое файла; для папок пусто.
func (s *NodeService) DownloadURL(node *domain.Node) string {
	if node == nil || !node.IsFile() || node.Backend == nil || node.StorageKey == nil {
		return ""
	}
	return s.blobs.RetrieveURL(*node.Backend, *node.StorageKey)
}

func validateNodeInput(ownerID, name string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return nil
}

// checkParent проверяет, что родитель существует, является папкой и
// принадлежит тому же владельцу. nil — корень владельца, он всегда валиден.
func (s *NodeService) checkParent(ctx context.Context, ownerID string, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}

	parent, err := s.nodeRepo.GetByID(ctx, *parentID)
	if err != nil {
		return err
	}
	if parent.OwnerID != ownerID {
		return fmt.Errorf("%w: parent %s", domain.ErrUnauthorized, parentID)
	}
	if !parent.IsFolder() {
		return fmt.Errorf("%w: parent %s is not a folder", domain.ErrValidation, parentID)
	}

	return nil
}

// checkSiblingName — быстрая проверка занятости имени. Гонку двух
// одновременных созданий она не закрывает: решающим остается уникальный
// индекс, нарушение которого репозиторий возвращает тем же ErrDuplicateName.
func (s *NodeService) checkSiblingName(ctx context.Context, ownerID string, parentID *uuid.UUID, name string, excludeID *uuid.UUID) error {
	exists, err := s.nodeRepo.ExistsName(ctx, ownerID, parentID, name, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
	}
	return nil
}
