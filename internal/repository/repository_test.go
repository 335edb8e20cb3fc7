package repository

import (
	"context"
	"fmt"
	"testing"

	"petpals/internal/cache"
	"petpals/internal/docstore"
	"petpals/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	repo := NewPostRepository(store)

	post := &models.Post{
		UserID:       "u1",
		Text:         "walk in the park",
		Timestamp:    1700000000000,
		Location:     &models.GeoPoint{Latitude: 32.08, Longitude: 34.78},
		LocationName: "Tel Aviv",
	}
	require.NoError(t, repo.Create(ctx, post))
	require.NotEmpty(t, post.ID)

	doc, err := store.Get(ctx, PostsCollection, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.Data["userId"])
	assert.Contains(t, doc.Data, "likedBy")
	loc, ok := doc.Data["location"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, loc, "latitude")

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Text, got.Text)
	assert.Equal(t, "Tel Aviv", got.LocationName)
	assert.Empty(t, got.LikedBy)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestPostRepository_ListRecentOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	repo := NewPostRepository(docstore.NewMemoryStore(nil))

	for i, ts := range []int64{300, 100, 200} {
		require.NoError(t, repo.Create(ctx, &models.Post{ID: fmt.Sprintf("p%d", i), UserID: "u1", Text: "x", Timestamp: ts}))
	}

	posts, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(300), posts[0].Timestamp)
	assert.Equal(t, int64(200), posts[1].Timestamp)

	byUser, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 3)
}

func TestDecodePosts_SkipsMalformed(t *testing.T) {
	docs := []*docstore.Document{
		{Collection: PostsCollection, ID: "ok", Data: docstore.Data{"userId": "u1", "text": "hi"}},
		{Collection: PostsCollection, ID: "bad", Data: docstore.Data{"userId": 42}},
	}
	posts := DecodePosts(context.Background(), docs)
	require.Len(t, posts, 1)
	assert.Equal(t, "ok", posts[0].ID)
}

func TestPostRepository_UpdateLikesWritesCount(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	repo := NewPostRepository(store)
	require.NoError(t, repo.Create(ctx, &models.Post{ID: "p1", UserID: "u1", Text: "x", Likes: 7}))

	likedBy, err := repo.UpdateLikes(ctx, "p1", func(in []string) []string { return append(in, "u2") })
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, likedBy)

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)

	_, err = repo.UpdateLikes(ctx, "missing", func(in []string) []string { return in })
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCommentRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewCommentRepository(docstore.NewMemoryStore(nil))

	for i := 3; i >= 1; i-- {
		c := &models.Comment{PostID: "p1", UserID: "u1", Text: fmt.Sprintf("c%d", i), Timestamp: int64(i)}
		require.NoError(t, repo.Create(ctx, c))
		require.NotEmpty(t, c.ID)
	}

	list, err := repo.ListByPost(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c1", list[0].Text)
	assert.Equal(t, "p1", list[0].PostID)

	ids, err := repo.PageIDs(ctx, "p1", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, repo.DeleteBatch(ctx, "p1", ids))
	list, err = repo.ListByPost(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, "p1", list[0].ID))
	_, err = repo.GetByID(ctx, "p1", list[0].ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestProfileRepository_CacheInvalidation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	require.NotNil(t, cache.InitRedis(mr.Addr()))
	defer cache.SetClient(nil)

	ctx := context.Background()
	repo := NewProfileRepository(docstore.NewMemoryStore(nil))

	_, err = repo.GetByID(ctx, "u1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.False(t, mr.Exists(cache.ProfileKey("u1")))

	require.NoError(t, repo.Save(ctx, &models.UserProfile{UserID: "u1", PetName: "Rex", PetAge: 3}))
	p, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rex", p.PetName)
	assert.True(t, mr.Exists(cache.ProfileKey("u1")))

	require.NoError(t, repo.SetLocation(ctx, "u1", models.GeoPoint{Latitude: 1, Longitude: 2}, 42))
	assert.False(t, mr.Exists(cache.ProfileKey("u1")))

	p, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, p.Location)
	assert.Equal(t, 2.0, p.Location.Longitude)
	require.NotNil(t, p.LastLocationUpdate)
	assert.Equal(t, int64(42), *p.LastLocationUpdate)
	assert.Equal(t, "Rex", p.PetName, "location update must merge")

	require.NoError(t, repo.Save(ctx, &models.UserProfile{UserID: "u1", PetName: "Max"}))
	p, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Max", p.PetName)
	assert.NotNil(t, p.Location, "profile save must keep location")

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// racingStore caches a stale profile while a write is in flight, the way a
// concurrent reader would.
type racingStore struct {
	docstore.Store
	mr            *miniredis.Miniredis
	cachedAtStart bool
}

func (s *racingStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	s.cachedAtStart = s.mr.Exists(cache.ProfileKey(id))
	if err := cache.SetJSON(ctx, cache.ProfileKey(id), models.UserProfile{UserID: id, PetName: "Stale"}, cache.ProfileTTL); err != nil {
		return err
	}
	return s.Store.Set(ctx, collection, id, data, merge)
}

func TestProfileRepository_WriteDropsEntryCachedMidWrite(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	require.NotNil(t, cache.InitRedis(mr.Addr()))
	defer cache.SetClient(nil)

	ctx := context.Background()
	store := &racingStore{Store: docstore.NewMemoryStore(nil), mr: mr}
	repo := NewProfileRepository(store)

	require.NoError(t, cache.SetJSON(ctx, cache.ProfileKey("u1"), models.UserProfile{UserID: "u1", PetName: "Old"}, cache.ProfileTTL))
	require.NoError(t, repo.Save(ctx, &models.UserProfile{UserID: "u1", PetName: "Rex"}))
	assert.False(t, store.cachedAtStart, "cached profile must be dropped before the write")
	assert.False(t, mr.Exists(cache.ProfileKey("u1")))

	p, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rex", p.PetName)
}
