package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpals/internal/blobstore"
	"petpals/internal/models"
	"petpals/internal/repository"
	"petpals/internal/testutil"
)

func newPostService(f *fixture, posts repository.PostRepository) *PostService {
	pipeline := NewDeletionPipeline(f.blobs, posts, f.comments, 300)
	return NewPostService(posts, f.blobs, pipeline, testutil.FixedClock(1_700_000_000_000), DefaultOptions())
}

func TestPostService_CreatePostValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{"blank text", CreatePostInput{UserID: "u1", Text: "   "}},
		{"text too long", CreatePostInput{UserID: "u1", Text: strings.Repeat("a", 2001)}},
		{"bad location", CreatePostInput{UserID: "u1", Text: "hi", Location: &models.GeoPoint{Latitude: 91, Longitude: 0}}},
		{"not an image", CreatePostInput{UserID: "u1", Text: "hi", Image: []byte("plain text, not pixels")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(context.Background(), tt.in)
			assertValidationError(t, err)
		})
	}

	_, err := svc.CreatePost(context.Background(), CreatePostInput{Text: "anonymous"})
	assertCode(t, err, models.CodeUnauthorized)
}

func TestPostService_CreatePostWithImageAndLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, CreatePostInput{
		UserID:       "u1",
		Text:         "  beach day  ",
		Image:        testutil.TinyPNG(t, 8, 8),
		Location:     &models.GeoPoint{Latitude: 32.08, Longitude: 34.78},
		LocationName: "Gordon Beach",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "beach day", post.Text)
	assert.Equal(t, int64(1_700_000_000_000), post.Timestamp)
	assert.Equal(t, "mem://blobs/post_images/"+post.ID+".jpg", post.ImageURL)
	assert.True(t, f.blobs.Has(blobstore.PostImageRef(post.ID)))

	stored, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ImageURL, stored.ImageURL)
	assert.Equal(t, "Gordon Beach", stored.LocationName)
	require.NotNil(t, stored.Location)
	assert.InDelta(t, 32.08, stored.Location.Latitude, 1e-9)
	assert.Equal(t, 0, stored.Likes)
	assert.Empty(t, stored.LikedBy)
}

func TestPostService_CreatePostRemovesImageOnStoreFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	repo := noopPostRepo()
	var createdID string
	repo.createFn = func(_ context.Context, p *models.Post) error {
		createdID = p.ID
		return errors.New("write failed")
	}
	svc := newPostService(f, repo)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{UserID: "u1", Text: "hi", Image: testutil.TinyPNG(t, 2, 2)})
	assertCode(t, err, models.CodeUnavailable)
	require.NotEmpty(t, createdID)
	assert.False(t, f.blobs.Has(blobstore.PostImageRef(createdID)))
}

func TestPostService_GetPostNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := newPostService(f, f.posts).GetPost(context.Background(), "missing")
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_UpdatePostText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()
	testutil.PutPost(t, f.store, "p1", testutil.PostFields{UserID: "owner", Text: "old", Timestamp: 1})

	_, err := svc.UpdatePostText(ctx, UpdatePostInput{UserID: "intruder", PostID: "p1", Text: "hacked"})
	assertCode(t, err, models.CodeForbidden)

	_, err = svc.UpdatePostText(ctx, UpdatePostInput{UserID: "owner", PostID: "p1", Text: ""})
	assertValidationError(t, err)

	updated, err := svc.UpdatePostText(ctx, UpdatePostInput{UserID: "owner", PostID: "p1", Text: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Text)

	stored, err := svc.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", stored.Text)
}

func TestPostService_DeletePost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()
	testutil.PutPost(t, f.store, "p1", testutil.PostFields{UserID: "owner", Text: "x", Timestamp: 1})
	testutil.PutComments(t, f.store, "p1", 5)

	_, err := svc.DeletePost(ctx, DeletePostInput{UserID: "intruder", PostID: "p1"})
	assertCode(t, err, models.CodeForbidden)

	report, err := svc.DeletePost(ctx, DeletePostInput{UserID: "owner", PostID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 5, report.CommentsDeleted)

	_, err = svc.GetPost(ctx, "p1")
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.DeletePost(ctx, DeletePostInput{UserID: "owner", PostID: "p1"})
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_ToggleLikeRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()
	testutil.PutPost(t, f.store, "p1", testutil.PostFields{UserID: "owner", Text: "x", Timestamp: 1})

	res, err := svc.ToggleLike(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: true, Likes: 1}, res)

	res, err = svc.ToggleLike(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, &LikeResult{Liked: false, Likes: 0}, res)

	post, err := svc.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, post.Likes)
	assert.Empty(t, post.LikedBy)
}

func TestPostService_ToggleLikeRepairsDrift(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()
	testutil.PutPost(t, f.store, "p1", testutil.PostFields{UserID: "owner", Text: "x", Timestamp: 1, LikedBy: []string{"u1", "u2", "u2"}})
	require.NoError(t, f.store.Update(ctx, repository.PostsCollection, "p1", map[string]any{"likes": 7}))

	res, err := svc.ToggleLike(ctx, "p1", "u3")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, 3, res.Likes)

	post, err := svc.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, post.LikedBy)
	assert.Equal(t, 3, post.Likes)
}

func TestPostService_ToggleLikeConcurrent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)
	ctx := context.Background()
	testutil.PutPost(t, f.store, "p1", testutil.PostFields{UserID: "owner", Text: "x", Timestamp: 1})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ToggleLike(ctx, "p1", fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	post, err := svc.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 20, post.Likes)
	assert.Len(t, post.LikedBy, 20)
}

func TestPostService_ToggleLikeErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := newPostService(f, f.posts)

	_, err := svc.ToggleLike(context.Background(), "missing", "u1")
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.ToggleLike(context.Background(), "p1", "")
	assertCode(t, err, models.CodeUnauthorized)

	repo := noopPostRepo()
	repo.updateLikesFn = func(_ context.Context, _ string, _ func([]string) []string) ([]string, error) {
		return nil, errors.New("aborted")
	}
	_, err = newPostService(f, repo).ToggleLike(context.Background(), "p1", "u1")
	assertCode(t, err, models.CodeUnavailable)
}

func TestPostService_GetUserPosts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	testutil.PutPost(t, f.store, "a", testutil.PostFields{UserID: "u1", Text: "x", Timestamp: 1})
	testutil.PutPost(t, f.store, "b", testutil.PostFields{UserID: "u2", Text: "x", Timestamp: 2})
	testutil.PutPost(t, f.store, "c", testutil.PostFields{UserID: "u1", Text: "x", Timestamp: 3})

	posts, err := newPostService(f, f.posts).GetUserPosts(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "c", posts[0].ID)
}
