// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync/atomic"
	"testing"

	"petpals/internal/docstore"
)

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions,
// filled with an opaque color.
func TinyPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 200, G: 120, B: 40, A: 255}}, image.Point{}, draw.Src)
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// PutProfile writes a users/{uid} document with the given pet name and image.
func PutProfile(t testing.TB, store docstore.Store, uid, petName, petImage string) {
	t.Helper()
	err := store.Set(context.Background(), "users", uid, map[string]any{
		"petName":  petName,
		"petAge":   2,
		"petBreed": "mixed",
		"petImage": petImage,
	}, false)
	if err != nil {
		t.Fatalf("put profile %s: %v", uid, err)
	}
}

// PostFields is the subset of a posts/{id} document fixtures usually set.
type PostFields struct {
	UserID    string
	Text      string
	ImageURL  string
	Timestamp int64
	LikedBy   []string
	Lat, Lng  float64
	HasLoc    bool
}

// PutPost writes a posts/{id} document. likes is derived from LikedBy.
func PutPost(t testing.TB, store docstore.Store, id string, f PostFields) {
	t.Helper()
	likedBy := f.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	fields := map[string]any{
		"userId":    f.UserID,
		"text":      f.Text,
		"imageUrl":  f.ImageURL,
		"timestamp": f.Timestamp,
		"likes":     len(likedBy),
		"likedBy":   likedBy,
	}
	if f.HasLoc {
		fields["location"] = map[string]any{"latitude": f.Lat, "longitude": f.Lng}
	}
	if err := store.Set(context.Background(), "posts", id, fields, false); err != nil {
		t.Fatalf("put post %s: %v", id, err)
	}
}

// PutComments adds n comments under posts/{postID}/comments.
func PutComments(t testing.TB, store docstore.Store, postID string, n int) {
	t.Helper()
	coll := docstore.Sub("posts", postID, "comments")
	for i := 0; i < n; i++ {
		_, err := store.Add(context.Background(), coll, map[string]any{
			"userId":    "commenter",
			"text":      "woof",
			"timestamp": int64(i),
		})
		if err != nil {
			t.Fatalf("put comment %d: %v", i, err)
		}
	}
}

// FixedClock always returns ms.
func FixedClock(ms int64) func() int64 {
	return func() int64 { return ms }
}

// StepClock returns start, start+step, start+2*step, ... on successive calls.
func StepClock(start, step int64) func() int64 {
	var n atomic.Int64
	return func() int64 {
		return start + step*(n.Add(1)-1)
	}
}
