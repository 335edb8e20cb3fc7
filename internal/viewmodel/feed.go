// Package viewmodel holds client-facing state built on the service layer.
// Native surfaces and the admin CLI bind to it instead of calling stores.
package viewmodel

import (
	"context"
	"log/slog"
	"sync"

	"petpals/internal/models"
	"petpals/internal/optimistic"
	"petpals/internal/service"
)

// LikeToggler is the part of PostService the feed uses for likes.
type LikeToggler interface {
	ToggleLike(ctx context.Context, postID, userID string) (*service.LikeResult, error)
}

// PostDeleter is the part of PostService the feed uses for deletion.
type PostDeleter interface {
	DeletePost(ctx context.Context, in service.DeletePostInput) (*service.DeletionReport, error)
}

type likeState struct {
	Liked   bool
	LikedBy []string
	Likes   int
}

type removal struct {
	index int
	entry models.FeedEntry
}

// Feed is the signed-in user's view of the feed. Likes and deletions are
// shown immediately and rolled back when the backend call fails.
type Feed struct {
	mu      sync.Mutex
	userID  string
	entries []models.FeedEntry
	likes   LikeToggler
	deleter PostDeleter
}

func NewFeed(userID string, likes LikeToggler, deleter PostDeleter) *Feed {
	return &Feed{userID: userID, likes: likes, deleter: deleter}
}

// Replace installs a fresh snapshot, such as one from a live feed update.
func (f *Feed) Replace(entries []models.FeedEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append([]models.FeedEntry(nil), entries...)
}

// Entries returns a copy of the current view.
func (f *Feed) Entries() []models.FeedEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.FeedEntry, len(f.entries))
	for i, e := range f.entries {
		e.Post.LikedBy = append([]string(nil), e.Post.LikedBy...)
		out[i] = e
	}
	return out
}

func (f *Feed) indexOf(postID string) int {
	for i := range f.entries {
		if f.entries[i].Post.ID == postID {
			return i
		}
	}
	return -1
}

func (f *Feed) setLike(postID string, s likeState) {
	if i := f.indexOf(postID); i >= 0 {
		f.entries[i].Post.LikedBy = s.LikedBy
		f.entries[i].Post.Likes = s.Likes
	}
}

// ToggleLike flips the caller's like locally, then asks the backend. On
// success the backend's count replaces the local one; on failure the flip
// is undone and the error returned.
func (f *Feed) ToggleLike(ctx context.Context, postID string) error {
	f.mu.Lock()
	i := f.indexOf(postID)
	if i < 0 {
		f.mu.Unlock()
		return models.NewNotFoundError("Post", postID)
	}
	p := &f.entries[i].Post
	prev := likeState{Liked: p.IsLikedBy(f.userID), LikedBy: append([]string(nil), p.LikedBy...), Likes: p.Likes}
	next := likeState{Liked: !prev.Liked}
	if prev.Liked {
		for _, id := range prev.LikedBy {
			if id != f.userID {
				next.LikedBy = append(next.LikedBy, id)
			}
		}
		next.Likes = max(prev.Likes-1, 0)
	} else {
		next.LikedBy = append(append([]string(nil), prev.LikedBy...), f.userID)
		next.Likes = prev.Likes + 1
	}
	tr := optimistic.Apply(prev, next)
	f.setLike(postID, tr.Value())
	f.mu.Unlock()

	res, err := f.likes.ToggleLike(ctx, postID, f.userID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		back, _ := tr.Revert()
		f.setLike(postID, back)
		slog.WarnContext(ctx, "like reverted", slog.String("post_id", postID), slog.String("error", err.Error()))
		return err
	}
	if res.Liked != next.Liked {
		// another device toggled in between; follow the backend
		next.LikedBy = prev.LikedBy
		next.Liked = res.Liked
	}
	next.Likes = res.Likes
	tr.Confirm(next)
	f.setLike(postID, tr.Value())
	return nil
}

// Delete removes the post from the view and asks the backend to delete it.
// On failure the entry is put back at its old position.
func (f *Feed) Delete(ctx context.Context, postID string) (*service.DeletionReport, error) {
	f.mu.Lock()
	i := f.indexOf(postID)
	if i < 0 {
		f.mu.Unlock()
		return nil, models.NewNotFoundError("Post", postID)
	}
	tr := optimistic.Apply(&removal{index: i, entry: f.entries[i]}, nil)
	f.entries = append(f.entries[:i], f.entries[i+1:]...)
	f.mu.Unlock()

	report, err := f.deleter.DeletePost(ctx, service.DeletePostInput{UserID: f.userID, PostID: postID})

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		if r, ok := tr.Revert(); ok && f.indexOf(postID) < 0 {
			at := min(r.index, len(f.entries))
			f.entries = append(f.entries[:at], append([]models.FeedEntry{r.entry}, f.entries[at:]...)...)
		}
		return nil, err
	}
	tr.Confirm()
	return report, nil
}
