package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/domain"
)

// fakeShareRepo воспроизводит контракт репозитория, включая проверку срока
// действия прямо в выборке по токену.
type fakeShareRepo struct {
	shares map[uuid.UUID]*domain.Share
	now    func() time.Time
}

func newFakeShareRepo(now func() time.Time) *fakeShareRepo {
	return &fakeShareRepo{shares: make(map[uuid.UUID]*domain.Share), now: now}
}

func (r *fakeShareRepo) Create(_ context.Context, share *domain.Share) error {
	share.CreatedAt = r.now()
	copied := *share
	r.shares[share.ID] = &copied
	return nil
}

func (r *fakeShareRepo) GetByToken(_ context.Context, token string) (*domain.Share, error) {
	for _, share := range r.shares {
		if share.AccessToken == token && share.ExpiresAt.After(r.now()) {
			copied := *share
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
}

func (r *fakeShareRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Share, error) {
	share, ok := r.shares[id]
	if !ok {
		return nil, fmt.Errorf("%w: share %s", domain.ErrNotFound, id)
	}
	copied := *share
	return &copied, nil
}

func (r *fakeShareRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Share, error) {
	var out []domain.Share
	for _, share := range r.shares {
		if share.OwnerID == ownerID && share.ExpiresAt.After(r.now()) {
			out = append(out, *share)
		}
	}
	return out, nil
}

func (r *fakeShareRepo) Delete(_ context.Context, id uuid.UUID, ownerID string) error {
	share, ok := r.shares[id]
	if !ok || share.OwnerID != ownerID {
		return fmt.Errorf("%w: share %s", domain.ErrNotFound, id)
	}
	delete(r.shares, id)
	return nil
}

func (r *fakeShareRepo) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for id, share := range r.shares {
		if !share.ExpiresAt.After(r.now()) {
			delete(r.shares, id)
			n++
		}
	}
	return n, nil
}

type fakeNotifier struct {
	sendErr error
	emails  []string
	links   []string
}

func (n *fakeNotifier) SendShareNotification(_ context.Context, recipientEmail, shareLink string) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.emails = append(n.emails, recipientEmail)
	n.links = append(n.links, shareLink)
	return nil
}

type shareFixture struct {
	svc       *ShareService
	shareRepo *fakeShareRepo
	nodeRepo  *fakeNodeRepo
	notifier  *fakeNotifier
	clock     *time.Time
}

func newShareFixture() *shareFixture {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &start
	now := func() time.Time { return *clock }

	shareRepo := newFakeShareRepo(now)
	nodeRepo := newFakeNodeRepo()
	notifier := &fakeNotifier{}

	svc := NewShareService(shareRepo, nodeRepo, notifier, "https://vault.example.com")
	svc.now = now

	return &shareFixture{svc: svc, shareRepo: shareRepo, nodeRepo: nodeRepo, notifier: notifier, clock: clock}
}

func (f *shareFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *shareFixture) addNode(ownerID string) *domain.Node {
	node := &domain.Node{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Type:    domain.NodeTypeFile,
		Name:    fmt.Sprintf("file-%s.pdf", uuid.New().String()[:8]),
	}
	f.nodeRepo.nodes[node.ID] = node
	return node
}

func TestShareCreate_Success(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	result, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 24)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Share.AccessToken)
	assert.NotEmpty(t, result.Share.AccessKey)
	assert.NotEqual(t, result.Share.AccessToken, result.Share.AccessKey)
	assert.Equal(t, f.clock.Add(24*time.Hour), result.Share.ExpiresAt)
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, node.ID, result.Nodes[0].ID)

	// Получатель уведомлен ссылкой с токеном.
	require.Len(t, f.notifier.links, 1)
	assert.Equal(t, "https://vault.example.com/share/"+result.Share.AccessToken, f.notifier.links[0])
	assert.Equal(t, []string{"friend@example.com"}, f.notifier.emails)
}

func TestShareCreate_TokensAreUnique(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	first, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "a@example.com", 1)
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "b@example.com", 1)
	require.NoError(t, err)

	assert.NotEqual(t, first.Share.AccessToken, second.Share.AccessToken)
}

func TestShareCreate_MissingNodeIsAllOrNothing(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	_, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID, uuid.New()}, "friend@example.com", 24)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.shareRepo.shares, "a partial share must not be persisted")
	assert.Empty(t, f.notifier.emails)
}

func TestShareCreate_ForeignNode(t *testing.T) {
	f := newShareFixture()
	mine := f.addNode("owner-1")
	theirs := f.addNode("owner-2")

	_, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{mine.ID, theirs.ID}, "friend@example.com", 24)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, f.shareRepo.shares)
}

func TestShareCreate_Validation(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	_, err := f.svc.Create(context.Background(), "owner-1", nil, "friend@example.com", 24)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "", 24)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestShareCreate_DuplicateIDsCollapsed(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	result, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID, node.ID}, "friend@example.com", 24)
	require.NoError(t, err)
	assert.Len(t, result.Share.NodeIDs, 1)
}

func TestShareCreate_NotifierFailureDoesNotFail(t *testing.T) {
	f := newShareFixture()
	f.notifier.sendErr = fmt.Errorf("mail provider down")
	node := f.addNode("owner-1")

	result, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 24)
	require.NoError(t, err)
	assert.Len(t, f.shareRepo.shares, 1)
	assert.NotEmpty(t, result.Share.AccessToken)
}

func TestShareResolve_Success(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	created, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 24)
	require.NoError(t, err)

	resolved, err := f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.NoError(t, err)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, node.ID, resolved.Nodes[0].ID)
}

// Истекший и никогда не существовавший токены должны быть неразличимы.
func TestShareResolve_ExpiredLooksLikeUnknown(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	created, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 2)
	require.NoError(t, err)

	f.advance(3 * time.Hour)

	_, expiredErr := f.svc.Resolve(context.Background(), created.Share.AccessToken)
	_, unknownErr := f.svc.Resolve(context.Background(), "never-existed")

	require.ErrorIs(t, expiredErr, domain.ErrNotFound)
	require.ErrorIs(t, unknownErr, domain.ErrNotFound)
}

func TestShareResolve_JustBeforeAndAfterExpiry(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	created, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 1)
	require.NoError(t, err)

	f.advance(time.Hour - time.Second)
	_, err = f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.NoError(t, err)

	f.advance(2 * time.Second)
	_, err = f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShareResolve_DeletedNodesDropOut(t *testing.T) {
	f := newShareFixture()
	kept := f.addNode("owner-1")
	removed := f.addNode("owner-1")

	created, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{kept.ID, removed.ID}, "friend@example.com", 24)
	require.NoError(t, err)

	// Владелец удалил один из узлов уже после создания share.
	delete(f.nodeRepo.nodes, removed.ID)

	resolved, err := f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.NoError(t, err)
	require.Len(t, resolved.Nodes, 1)
	assert.Equal(t, kept.ID, resolved.Nodes[0].ID)
}

func TestShareResolve_EmptyToken(t *testing.T) {
	f := newShareFixture()

	_, err := f.svc.Resolve(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShareRevoke(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	created, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "friend@example.com", 24)
	require.NoError(t, err)

	// Чужой владелец отозвать не может, share продолжает работать.
	err = f.svc.Revoke(context.Background(), created.Share.ID, "owner-2")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.NoError(t, err)

	// Свой — может, токен сразу перестает работать.
	require.NoError(t, f.svc.Revoke(context.Background(), created.Share.ID, "owner-1"))
	_, err = f.svc.Resolve(context.Background(), created.Share.AccessToken)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestShareListForOwner_SkipsExpired(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	_, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "a@example.com", 1)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "b@example.com", 48)
	require.NoError(t, err)

	f.advance(2 * time.Hour)

	shares, err := f.svc.ListForOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, "b@example.com", shares[0].RecipientEmail)
}

func TestSweepExpired(t *testing.T) {
	f := newShareFixture()
	node := f.addNode("owner-1")

	_, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "a@example.com", 1)
	require.NoError(t, err)
	kept, err := f.svc.Create(context.Background(), "owner-1", []uuid.UUID{node.ID}, "b@example.com", 48)
	require.NoError(t, err)

	f.advance(2 * time.Hour)

	require.NoError(t, f.svc.SweepExpired(context.Background()))
	assert.Len(t, f.shareRepo.shares, 1)
	assert.Contains(t, f.shareRepo.shares, kept.Share.ID)
}
