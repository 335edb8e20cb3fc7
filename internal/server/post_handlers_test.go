package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"petpals/internal/blobstore"
	"petpals/internal/models"
	"petpals/internal/service"
	"petpals/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multipartRequest builds a form with the given fields and an optional image.
func multipartRequest(t *testing.T, method, path, token string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "pet.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (e *testEnv) createPost(t *testing.T, token string, body map[string]any) models.Post {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/posts", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var post models.Post
	decodeBody(t, resp, &post)
	return post
}

func TestCreatePost(t *testing.T) {
	t.Run("JSON with location", func(t *testing.T) {
		env := newTestEnv(t, "")

		post := env.createPost(t, "token-alice", map[string]any{
			"text":          "  Walk in the park  ",
			"location":      map[string]float64{"latitude": 52.52, "longitude": 13.405},
			"location_name": "Tiergarten",
		})

		assert.NotEmpty(t, post.ID)
		assert.Equal(t, "alice", post.UserID)
		assert.Equal(t, "Walk in the park", post.Text)
		assert.Equal(t, 0, post.Likes)
		require.NotNil(t, post.Location)
		assert.InDelta(t, 52.52, post.Location.Latitude, 1e-9)
		assert.Equal(t, "Tiergarten", post.LocationName)
		assert.Empty(t, post.ImageURL)
	})

	t.Run("multipart with image", func(t *testing.T) {
		env := newTestEnv(t, "")

		req := multipartRequest(t, http.MethodPost, "/api/posts", "token-alice", map[string]string{
			"text":      "Nap time",
			"latitude":  "48.8566",
			"longitude": "2.3522",
		}, testutil.TinyPNG(t, 8, 8))
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var post models.Post
		decodeBody(t, resp, &post)
		assert.True(t, strings.HasPrefix(post.ImageURL, "mem://"), post.ImageURL)
		require.NotNil(t, post.Location)
		assert.InDelta(t, 2.3522, post.Location.Longitude, 1e-9)
	})

	t.Run("rejects non-image upload", func(t *testing.T) {
		env := newTestEnv(t, "")

		req := multipartRequest(t, http.MethodPost, "/api/posts", "token-alice",
			map[string]string{"text": "hello"}, []byte("definitely not an image"))
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects oversized upload", func(t *testing.T) {
		env := newTestEnv(t, "")

		big := append(testutil.TinyPNG(t, 8, 8), make([]byte, 1<<20)...)
		req := multipartRequest(t, http.MethodPost, "/api/posts", "token-alice",
			map[string]string{"text": "hello"}, big)
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body models.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "image must not exceed 1MB", body.Error)
	})

	t.Run("rejects blank text", func(t *testing.T) {
		env := newTestEnv(t, "")

		resp := env.do(t, http.MethodPost, "/api/posts", "token-alice", map[string]any{"text": "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects out of range location", func(t *testing.T) {
		env := newTestEnv(t, "")

		resp := env.do(t, http.MethodPost, "/api/posts", "token-alice", map[string]any{
			"text":     "lost",
			"location": map[string]float64{"latitude": 123, "longitude": 0},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetFeed(t *testing.T) {
	env := newTestEnv(t, "")
	env.saveProfile(t, "alice", "Rex")

	first := env.createPost(t, "token-alice", map[string]any{"text": "first"})
	second := env.createPost(t, "token-alice", map[string]any{"text": "second"})
	// bob has no profile, so his post stays out of the feed
	env.createPost(t, "token-bob", map[string]any{"text": "orphan"})

	resp := env.do(t, http.MethodGet, "/api/feed", "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.FeedEntry
	decodeBody(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].Post.ID)
	assert.Equal(t, first.ID, entries[1].Post.ID)
	assert.Equal(t, "Rex", entries[0].AuthorName)
}

func TestGetPost(t *testing.T) {
	env := newTestEnv(t, "")
	post := env.createPost(t, "token-alice", map[string]any{"text": "hello"})

	resp := env.do(t, http.MethodGet, "/api/posts/"+post.ID, "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Post
	decodeBody(t, resp, &got)
	assert.Equal(t, post.ID, got.ID)

	resp = env.do(t, http.MethodGet, "/api/posts/missing", "token-bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdatePost(t *testing.T) {
	env := newTestEnv(t, "")
	post := env.createPost(t, "token-alice", map[string]any{"text": "draft"})

	resp := env.do(t, http.MethodPatch, "/api/posts/"+post.ID, "token-bob", map[string]string{"text": "mine now"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/api/posts/"+post.ID, "token-alice", map[string]string{"text": "final"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Post
	decodeBody(t, resp, &updated)
	assert.Equal(t, "final", updated.Text)
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t, "")
	post := env.createPost(t, "token-alice", map[string]any{"text": "like me"})

	var result service.LikeResult
	resp := env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	assert.True(t, result.Liked)
	assert.Equal(t, 1, result.Likes)

	resp = env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	assert.Equal(t, 2, result.Likes)

	resp = env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &result)
	assert.False(t, result.Liked)
	assert.Equal(t, 1, result.Likes)

	stored, err := env.services.Post.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, stored.LikedBy)
	assert.Equal(t, 1, stored.Likes)

	resp = env.do(t, http.MethodPost, "/api/posts/missing/like", "token-bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t, "")

	req := multipartRequest(t, http.MethodPost, "/api/posts", "token-alice",
		map[string]string{"text": "short lived"}, testutil.TinyPNG(t, 8, 8))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var post models.Post
	decodeBody(t, resp, &post)

	for _, text := range []string{"nice", "cute"} {
		r := env.do(t, http.MethodPost, "/api/posts/"+post.ID+"/comments", "token-bob", map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, r.StatusCode)
	}

	r := env.do(t, http.MethodDelete, "/api/posts/"+post.ID, "token-bob", nil)
	assert.Equal(t, http.StatusForbidden, r.StatusCode)

	r = env.do(t, http.MethodDelete, "/api/posts/"+post.ID, "token-alice", nil)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var report deletePostResponse
	decodeBody(t, r, &report)
	assert.Equal(t, post.ID, report.PostID)
	assert.True(t, report.ImageDeleted)
	assert.Equal(t, 2, report.CommentsDeleted)
	assert.Empty(t, report.Residual)

	r = env.do(t, http.MethodGet, "/api/posts/"+post.ID, "token-alice", nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	r = env.do(t, http.MethodDelete, "/api/posts/"+post.ID, "token-alice", nil)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestDeletePost_ResidualHidesCause(t *testing.T) {
	env := newTestEnv(t, "")

	req := multipartRequest(t, http.MethodPost, "/api/posts", "token-alice",
		map[string]string{"text": "image goes missing"}, testutil.TinyPNG(t, 8, 8))
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var post models.Post
	decodeBody(t, resp, &post)

	require.NoError(t, env.blobs.Delete(context.Background(), blobstore.PostImageRef(post.ID)))

	r := env.do(t, http.MethodDelete, "/api/posts/"+post.ID, "token-alice", nil)
	require.Equal(t, http.StatusOK, r.StatusCode)
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var report deletePostResponse
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.False(t, report.ImageDeleted)
	require.Len(t, report.Residual, 1)
	assert.Equal(t, residualEntry{Stage: service.StageImage, PostID: post.ID}, report.Residual[0])
	assert.NotContains(t, string(raw), blobstore.ErrNotFound.Error())
	assert.NotContains(t, string(raw), "post_images/")
}

func TestGetUserPosts(t *testing.T) {
	env := newTestEnv(t, "")
	for _, text := range []string{"one", "two", "three"} {
		env.createPost(t, "token-alice", map[string]any{"text": text})
	}
	env.createPost(t, "token-bob", map[string]any{"text": "not alice"})

	resp := env.do(t, http.MethodGet, "/api/users/alice/posts?limit=2", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posts []models.Post
	decodeBody(t, resp, &posts)
	require.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, "alice", p.UserID)
	}
}

func TestComments(t *testing.T) {
	env := newTestEnv(t, "")
	env.saveProfile(t, "bob", "Luna")
	post := env.createPost(t, "token-alice", map[string]any{"text": "comment here"})
	path := "/api/posts/" + post.ID + "/comments"

	resp := env.do(t, http.MethodPost, path, "token-bob", map[string]string{"text": "first!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Comment
	decodeBody(t, resp, &created)
	assert.Equal(t, "Luna", created.UserName)

	resp = env.do(t, http.MethodPost, path, "token-alice", map[string]string{"text": "thanks"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, path, "token-alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var comments []models.Comment
	decodeBody(t, resp, &comments)
	require.Len(t, comments, 2)
	assert.Equal(t, "first!", comments[0].Text)
	assert.Equal(t, "thanks", comments[1].Text)

	resp = env.do(t, http.MethodDelete, path+"/"+created.ID, "token-alice", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path+"/"+created.ID, "token-bob", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/posts/missing/comments", "token-alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, "token-bob", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetNearbyPosts(t *testing.T) {
	env := newTestEnv(t, "")
	env.saveProfile(t, "alice", "Rex")

	berlin := env.createPost(t, "token-alice", map[string]any{
		"text":     "Berlin",
		"location": map[string]float64{"latitude": 52.52, "longitude": 13.405},
	})
	env.createPost(t, "token-alice", map[string]any{
		"text":     "Paris",
		"location": map[string]float64{"latitude": 48.8566, "longitude": 2.3522},
	})
	env.createPost(t, "token-alice", map[string]any{"text": "nowhere"})

	resp := env.do(t, http.MethodGet, "/api/map/posts?lat=52.52&lng=13.40&radius_km=10", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posts []models.LocationPost
	decodeBody(t, resp, &posts)
	require.Len(t, posts, 1)
	assert.Equal(t, berlin.ID, posts[0].PostID)
	assert.Equal(t, "Rex", posts[0].AuthorName)
	assert.Equal(t, "/api/map/markers/alice", posts[0].MarkerURL)
	require.NotNil(t, posts[0].DistanceM)
	assert.Less(t, *posts[0].DistanceM, 1000.0)

	resp = env.do(t, http.MethodGet, "/api/map/posts", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &posts)
	assert.Len(t, posts, 2)
}

func TestGetNearbyPosts_InvalidQuery(t *testing.T) {
	env := newTestEnv(t, "")

	for _, query := range []string{
		"?lat=52.5",
		"?lat=52.5&lng=13.4&radius_km=0",
		"?lat=52.5&lng=13.4&radius_km=-3",
		"?lat=95&lng=13.4",
		"?lat=north&lng=13.4",
	} {
		t.Run(query, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/map/posts"+query, "token-alice", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetNearbyPosts_MarkersDisabled(t *testing.T) {
	env := newTestEnv(t, "map_markers=off")
	env.createPost(t, "token-alice", map[string]any{
		"text":     "Berlin",
		"location": map[string]float64{"latitude": 52.52, "longitude": 13.405},
	})

	resp := env.do(t, http.MethodGet, "/api/map/posts", "token-bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posts []models.LocationPost
	decodeBody(t, resp, &posts)
	require.Len(t, posts, 1)
	assert.Empty(t, posts[0].MarkerURL)
	assert.Equal(t, service.UnknownAuthor, posts[0].AuthorName)
}
