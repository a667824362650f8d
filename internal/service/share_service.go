package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"healthvault/internal/domain"
)

// ShareRepository описывает доступ к записям share.
type ShareRepository interface {
	Create(ctx context.Context, share *domain.Share) error
	GetByToken(ctx context.Context, token string) (*domain.Share, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Share, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Share, error)
	Delete(ctx context.Context, id uuid.UUID, ownerID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Notifier уведомляет получателя о новом share. Доставка — внешняя забота:
// неудача логируется и не отменяет создание.
type Notifier interface {
	SendShareNotification(ctx context.Context, recipientEmail, shareLink string) error
}

// ShareService выпускает и разрешает ограниченные по времени share-токены.
type ShareService struct {
	shareRepo   ShareRepository
	nodeRepo    NodeRepository
	notifier    Notifier
	frontendURL string
	now         func() time.Time
}

func NewShareService(shareRepo ShareRepository, nodeRepo NodeRepository, notifier Notifier, frontendURL string) *ShareService {
	return &ShareService{
		shareRepo:   shareRepo,
		nodeRepo:    nodeRepo,
		notifier:    notifier,
		frontendURL: frontendURL,
		now:         time.Now,
	}
}

// generateToken возвращает 32 случайных байта в base64url без паддинга —
// достаточно энтропии, чтобы подбор был невозможен.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create выпускает share на набор узлов. Все узлы проверяются до записи:
// любой отсутствующий или чужой идентификатор отменяет операцию целиком,
// частичных share не бывает.
func (s *ShareService) Create(ctx context.Context, ownerID string, nodeIDs []uuid.UUID, recipientEmail string, durationHours int) (*domain.ShareWithNodes, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("%w: node ids are required", domain.ErrValidation)
	}
	if recipientEmail == "" {
		return nil, fmt.Errorf("%w: recipient email is required", domain.ErrValidation)
	}
	if durationHours <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrValidation)
	}

	uniqueIDs := dedupeIDs(nodeIDs)

	nodes, err := s.nodeRepo.GetByIDs(ctx, uniqueIDs)
	if err != nil {
		return nil, err
	}
	if len(nodes) != len(uniqueIDs) {
		return nil, fmt.Errorf("%w: some nodes were not found", domain.ErrNotFound)
	}
	for i := range nodes {
		if nodes[i].OwnerID != ownerID {
			return nil, fmt.Errorf("%w: you can only share your own nodes", domain.ErrUnauthorized)
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	accessKey, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access key: %w", err)
	}

	strIDs := make([]string, 0, len(uniqueIDs))
	for _, id := range uniqueIDs {
		strIDs = append(strIDs, id.String())
	}

	share := &domain.Share{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		RecipientEmail: recipientEmail,
		NodeIDs:        strIDs,
		AccessToken:    token,
		AccessKey:      accessKey,
		ExpiresAt:      s.now().Add(time.Duration(durationHours) * time.Hour),
	}

	if err := s.shareRepo.Create(ctx, share); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		link := fmt.Sprintf("%s/share/%s", s.frontendURL, token)
		if err := s.notifier.SendShareNotification(ctx, recipientEmail, link); err != nil {
			log.Warn().Err(err).Str("share_id", share.ID.String()).
				Msg("failed to notify share recipient")
		}
	}

	return &domain.ShareWithNodes{Share: *share, Nodes: nodes}, nil
}

// Resolve разрешает share по токену. Несуществующий и истекший токены
// неразличимы для вызывающего. Узлы, удаленные владельцем после создания
// share, молча выпадают из результата.
func (s *ShareService) Resolve(ctx context.Context, token string) (*domain.ShareWithNodes, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
	}

	share, err := s.shareRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(share.NodeIDs))
	for _, raw := range share.NodeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Warn().Str("share_id", share.ID.String()).Str("node_id", raw).
				Msg("skipping malformed node id in share")
			continue
		}
		ids = append(ids, id)
	}

	nodes, err := s.nodeRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &domain.ShareWithNodes{Share: *share, Nodes: nodes}, nil
}

// ListForOwner возвращает действующие share владельца.
func (s *ShareService) ListForOwner(ctx context.Context, ownerID string) ([]domain.Share, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	return s.shareRepo.ListByOwner(ctx, ownerID)
}

// Revoke безвозвратно удаляет share владельца.
func (s *ShareService) Revoke(ctx context.Context, shareID uuid.UUID, ownerID string) error {
	share, err := s.shareRepo.GetByID(ctx, shareID)
	if err != nil {
		return err
	}
	if share.OwnerID != ownerID {
		return fmt.Errorf("%w: share %s", domain.ErrUnauthorized, shareID)
	}

	return s.shareRepo.Delete(ctx, shareID, ownerID)
}

// SweepExpired удаляет истекшие строки. Запускается планировщиком;
// на корректность разрешения токенов не влияет.
func (s *ShareService) SweepExpired(ctx context.Context) error {
	n, err := s.shareRepo.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("swept expired shares")
	}
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
