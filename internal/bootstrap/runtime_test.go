package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"petpals/internal/blobstore"
	"petpals/internal/config"
	"petpals/internal/docstore"
	"petpals/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:                      "test",
		JWTSecret:                "test-secret-key-12345678901234567890",
		DBDriver:                 "sqlite",
		SQLitePath:               filepath.Join(dir, "petpals.db"),
		DBMaxOpenConns:           4,
		DBMaxIdleConns:           2,
		DBConnMaxLifetimeMinutes: 5,
		RedisURL:                 redisAddr,
		BlobBackend:              "local",
		BlobDir:                  filepath.Join(dir, "blobs"),
		BlobBaseURL:              "http://localhost:8375/media",
		MapWindowSize:            50,
		DefaultRadiusKm:          3,
		CommentPageSize:          100,
		PasswordResetTTLMinutes:  30,
	}
}

func TestServiceOptions(t *testing.T) {
	opts := ServiceOptions(&config.Config{MapWindowSize: 50, DefaultRadiusKm: 2.5, MaxCommentLength: 140})
	assert.Equal(t, 50, opts.MapWindowSize)
	assert.InDelta(t, 2.5, opts.DefaultRadiusKm, 1e-9)
	assert.Equal(t, 140, opts.MaxCommentLength)
	assert.Equal(t, 300, opts.CommentPageSize)
	assert.Equal(t, 0, opts.FeedWindowSize)
}

func TestNewBlobStore(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{BlobBackend: "local", BlobDir: t.TempDir(), BlobBaseURL: "http://x/media"}
	s, err := NewBlobStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	cfg.BlobBackend = "s3"
	_, err = NewBlobStore(ctx, cfg)
	assert.Error(t, err)
}

func TestNewServices_InMemory(t *testing.T) {
	ctx := context.Background()
	svcs := NewServices(docstore.NewMemoryStore(nil), blobstore.NewMemoryStore(), nil, service.DefaultOptions())

	post, err := svcs.Post.CreatePost(ctx, service.CreatePostInput{UserID: "u1", Text: "walkies"})
	require.NoError(t, err)

	feed, err := svcs.Feed.LoadFeed(ctx)
	require.NoError(t, err)
	// u1 has no profile document, so the post is hidden from the feed.
	assert.Empty(t, feed)

	_, err = svcs.Profile.SaveProfile(ctx, service.SaveProfileInput{UserID: "u1", PetName: "Rex"})
	require.NoError(t, err)
	feed, err = svcs.Feed.LoadFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, post.ID, feed[0].Post.ID)
}

func TestInitRuntime_SQLiteAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	ctx := context.Background()

	rt, err := InitRuntime(ctx, cfg, Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	require.NotNil(t, rt.Redis)
	assert.IsType(t, &docstore.GormStore{}, rt.Docs)

	session, err := rt.Identity.SignUp(ctx, "owner@petpals.example", "woofwoof1")
	require.NoError(t, err)

	_, err = rt.Services.Profile.SaveProfile(ctx, service.SaveProfileInput{UserID: session.UserID, PetName: "Luna"})
	require.NoError(t, err)
	_, err = rt.Services.Post.CreatePost(ctx, service.CreatePostInput{UserID: session.UserID, Text: "first walk"})
	require.NoError(t, err)

	feed, err := rt.Services.Feed.LoadFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Luna", feed[0].AuthorName)
}

func TestInitRuntime_SeedDemo(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	ctx := context.Background()

	rt, err := InitRuntime(ctx, cfg, Options{SeedDemo: true})
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	posts, err := rt.Services.Posts.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, posts)

	// A second run leaves the existing data alone.
	require.NoError(t, rt.seedDemo(ctx))
	again, err := rt.Services.Posts.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, again, len(posts))
}
