package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petpals/internal/blobstore"
	"petpals/internal/testutil"
	"petpals/internal/validation"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestMarkerService_RenderAvatar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ref := blobstore.ProfileImageRef("u1")
	_, err := f.blobs.Upload(ctx, ref, testutil.TinyPNG(t, 40, 20), "image/png")
	require.NoError(t, err)
	url, err := f.blobs.DownloadURL(ctx, ref)
	require.NoError(t, err)
	testutil.PutProfile(t, f.store, "u1", "Rex", url)

	m, err := NewMarkerService(f.profiles, f.blobs).Render(ctx, "u1", 32, "")
	require.NoError(t, err)
	assert.False(t, m.Placeholder)
	assert.Equal(t, "image/png", m.ContentType)

	img := decodePNG(t, m.Data)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
	assert.Zero(t, alphaAt(img, 0, 0))
	assert.Zero(t, alphaAt(img, 31, 31))
	assert.Equal(t, uint32(0xffff), alphaAt(img, 16, 16))
}

func TestMarkerService_PlaceholderWhenNoAvatar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	testutil.PutProfile(t, f.store, "broken", "Rex", "mem://blobs/profile_images/broken.jpg")
	svc := NewMarkerService(f.profiles, f.blobs)

	for _, uid := range []string{"no-profile", "broken"} {
		m, err := svc.Render(ctx, uid, 0, MarkerPNG)
		require.NoError(t, err)
		assert.True(t, m.Placeholder, uid)
		img := decodePNG(t, m.Data)
		assert.Equal(t, DefaultMarkerSize, img.Bounds().Dx())
		assert.Equal(t, uint32(0xffff), alphaAt(img, DefaultMarkerSize/2, DefaultMarkerSize/2))
	}

	a, err := svc.Render(ctx, "no-profile", 16, MarkerPNG)
	require.NoError(t, err)
	b, err := svc.Render(ctx, "no-profile", 16, MarkerPNG)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestMarkerService_PlaceholderForOversizedAvatar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	ref := blobstore.ProfileImageRef("u1")
	// stored directly, bypassing upload validation
	_, err := f.blobs.Upload(ctx, ref, testutil.TinyPNG(t, validation.MaxImageDimension+1, 2), "image/png")
	require.NoError(t, err)
	url, err := f.blobs.DownloadURL(ctx, ref)
	require.NoError(t, err)
	testutil.PutProfile(t, f.store, "u1", "Rex", url)

	m, err := NewMarkerService(f.profiles, f.blobs).Render(ctx, "u1", 32, "")
	require.NoError(t, err)
	assert.True(t, m.Placeholder)
	assert.Equal(t, image.Rect(0, 0, 32, 32), decodePNG(t, m.Data).Bounds())
}

func TestMarkerService_WebPAndValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := NewMarkerService(f.profiles, f.blobs)
	ctx := context.Background()

	m, err := svc.Render(ctx, "u1", 24, MarkerWebP)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", m.ContentType)
	require.Greater(t, len(m.Data), 12)
	assert.Equal(t, "RIFF", string(m.Data[:4]))
	assert.Equal(t, "WEBP", string(m.Data[8:12]))

	_, err = svc.Render(ctx, "u1", 8, MarkerPNG)
	assertValidationError(t, err)
	_, err = svc.Render(ctx, "u1", 64, "gif")
	assertValidationError(t, err)
}
