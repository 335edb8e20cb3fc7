package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpals/internal/blobstore"
	"petpals/internal/docstore"
	"petpals/internal/models"
	"petpals/internal/repository"
)

type fixture struct {
	store    *docstore.MemoryStore
	blobs    *blobstore.MemoryStore
	posts    repository.PostRepository
	comments repository.CommentRepository
	profiles repository.ProfileRepository
	authors  *AuthorResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore(nil)
	profiles := repository.NewProfileRepository(store)
	return &fixture{
		store:    store,
		blobs:    blobstore.NewMemoryStore(),
		posts:    repository.NewPostRepository(store),
		comments: repository.NewCommentRepository(store),
		profiles: profiles,
		authors:  NewAuthorResolver(profiles, 4),
	}
}

// profileLookupStub is a stub for ProfileLookup.
type profileLookupStub struct {
	getByIDFn func(context.Context, string) (*models.UserProfile, error)
}

func (s *profileLookupStub) GetByID(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.getByIDFn(ctx, userID)
}

// failingFor wraps next so lookups for the listed ids fail with err.
func failingFor(next ProfileLookup, err error, ids ...string) *profileLookupStub {
	fail := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fail[id] = struct{}{}
	}
	return &profileLookupStub{getByIDFn: func(ctx context.Context, id string) (*models.UserProfile, error) {
		if _, ok := fail[id]; ok {
			return nil, err
		}
		return next.GetByID(ctx, id)
	}}
}

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn          func(context.Context, *models.Post) error
	getByIDFn         func(context.Context, string) (*models.Post, error)
	listRecentFn      func(context.Context, int) ([]*models.Post, error)
	listByUserFn      func(context.Context, string) ([]*models.Post, error)
	subscribeRecentFn func(context.Context, int) (*docstore.Subscription, error)
	updateTextFn      func(context.Context, string, string) error
	updateLikesFn     func(context.Context, string, func([]string) []string) ([]string, error)
	deleteFn          func(context.Context, string) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) ListRecent(ctx context.Context, limit int) ([]*models.Post, error) {
	return s.listRecentFn(ctx, limit)
}
func (s *postRepoStub) ListByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	return s.listByUserFn(ctx, userID)
}
func (s *postRepoStub) SubscribeRecent(ctx context.Context, limit int) (*docstore.Subscription, error) {
	return s.subscribeRecentFn(ctx, limit)
}
func (s *postRepoStub) UpdateText(ctx context.Context, id, text string) error {
	return s.updateTextFn(ctx, id, text)
}
func (s *postRepoStub) UpdateLikes(ctx context.Context, id string, mutate func([]string) []string) ([]string, error) {
	return s.updateLikesFn(ctx, id, mutate)
}
func (s *postRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:          func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn:         func(_ context.Context, id string) (*models.Post, error) { return &models.Post{ID: id}, nil },
		listRecentFn:      func(_ context.Context, _ int) ([]*models.Post, error) { return nil, nil },
		listByUserFn:      func(_ context.Context, _ string) ([]*models.Post, error) { return nil, nil },
		subscribeRecentFn: func(_ context.Context, _ int) (*docstore.Subscription, error) { return nil, errors.New("not supported") },
		updateTextFn:      func(_ context.Context, _, _ string) error { return nil },
		updateLikesFn: func(_ context.Context, _ string, mutate func([]string) []string) ([]string, error) {
			return mutate(nil), nil
		},
		deleteFn: func(_ context.Context, _ string) error { return nil },
	}
}

// faultyStore wraps a Store and injects failures into batch commits and
// document deletes while counting commits.
type faultyStore struct {
	docstore.Store

	mu            sync.Mutex
	commits       int
	failCommitsAt int // 1-based; 0 never fails
	failDeleteIn  string
}

func (s *faultyStore) Batch() docstore.Batch {
	return &faultyBatch{Batch: s.Store.Batch(), parent: s}
}

func (s *faultyStore) Delete(ctx context.Context, collection, id string) error {
	if s.failDeleteIn != "" && collection == s.failDeleteIn {
		return errors.New("delete rejected")
	}
	return s.Store.Delete(ctx, collection, id)
}

func (s *faultyStore) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

type faultyBatch struct {
	docstore.Batch
	parent *faultyStore
}

func (b *faultyBatch) Commit(ctx context.Context) error {
	b.parent.mu.Lock()
	b.parent.commits++
	n := b.parent.commits
	b.parent.mu.Unlock()
	if b.parent.failCommitsAt > 0 && n >= b.parent.failCommitsAt {
		return errors.New("commit rejected")
	}
	return b.Batch.Commit(ctx)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}
