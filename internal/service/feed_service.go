package service

import (
	"context"
	"log/slog"
	"sort"

	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/repository"
)

// FeedService builds the chronological feed.
//
// A post is left out of the feed when its userId is empty or its author has
// no profile document. Any other lookup failure, or an empty petName, shows
// the post under the author's truncated id.
type FeedService struct {
	posts   repository.PostRepository
	authors *AuthorResolver
	window  int
}

// NewFeedService reads at most window posts per load (0 for all).
func NewFeedService(posts repository.PostRepository, authors *AuthorResolver, window int) *FeedService {
	return &FeedService{posts: posts, authors: authors, window: window}
}

// LoadFeed returns the feed newest first. On a store failure it returns an
// empty, non-nil slice together with the error.
func (s *FeedService) LoadFeed(ctx context.Context) ([]models.FeedEntry, error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "FeedService", "LoadFeed")
	defer span.End()

	posts, err := s.posts.ListRecent(ctx, s.window)
	if err != nil {
		span.RecordError(err)
		return []models.FeedEntry{}, storeError(err, "Post", "")
	}
	return s.join(ctx, posts), nil
}

func (s *FeedService) join(ctx context.Context, posts []*models.Post) []models.FeedEntry {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.UserID)
	}
	authors := s.authors.Resolve(ctx, ids)

	entries := make([]models.FeedEntry, 0, len(posts))
	for _, p := range posts {
		if p.UserID == "" {
			continue
		}
		a := authors[p.UserID]
		entry := models.FeedEntry{Post: *p}
		switch {
		case a.Missing():
			continue
		case a.Err != nil:
			slog.WarnContext(ctx, "author lookup failed",
				slog.String("user_id", p.UserID), slog.String("error", a.Err.Error()))
			entry.AuthorName = truncateID(p.UserID)
		case a.Profile.PetName == "":
			entry.AuthorName = truncateID(p.UserID)
			entry.AuthorAvatar = a.Profile.PetImage
		default:
			entry.AuthorName = a.Profile.PetName
			entry.AuthorAvatar = a.Profile.PetImage
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Post.Timestamp > entries[j].Post.Timestamp
	})
	return entries
}

// FeedUpdate is one emission of a live feed.
type FeedUpdate struct {
	Entries []models.FeedEntry
	Err     error
}

// FeedSubscription streams the full feed on every change to posts.
type FeedSubscription struct {
	updates chan FeedUpdate
	cancel  func()
	done    chan struct{}
}

// Updates returns the update channel. It is closed after Cancel.
func (f *FeedSubscription) Updates() <-chan FeedUpdate {
	return f.updates
}

// Cancel releases the underlying store listener and waits for the stream to stop.
func (f *FeedSubscription) Cancel() {
	f.cancel()
	<-f.done
}

// SubscribeFeed starts a live feed bound to ctx.
func (s *FeedService) SubscribeFeed(ctx context.Context) (*FeedSubscription, error) {
	sub, err := s.posts.SubscribeRecent(ctx, s.window)
	if err != nil {
		return nil, storeError(err, "Post", "")
	}
	fs := &FeedSubscription{
		updates: make(chan FeedUpdate, 1),
		cancel:  sub.Cancel,
		done:    make(chan struct{}),
	}
	observability.LiveSubscriptions.WithLabelValues("feed").Inc()

	go func() {
		defer close(fs.done)
		defer close(fs.updates)
		defer observability.LiveSubscriptions.WithLabelValues("feed").Dec()
		for snap := range sub.C() {
			u := FeedUpdate{Entries: []models.FeedEntry{}}
			if snap.Err != nil {
				u.Err = storeError(snap.Err, "Post", "")
			} else {
				u.Entries = s.join(ctx, repository.DecodePosts(ctx, snap.Docs))
			}
			select {
			case fs.updates <- u:
			case <-sub.Done():
				return
			}
		}
	}()
	return fs, nil
}
