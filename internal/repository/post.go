// Package repository maps domain models onto document store collections.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"petpals/internal/docstore"
	"petpals/internal/models"
)

// PostsCollection is the top-level collection holding posts.
const PostsCollection = "posts"

// postDoc is the stored shape of posts/{id}.
type postDoc struct {
	UserID       string           `json:"userId"`
	Text         string           `json:"text"`
	ImageURL     string           `json:"imageUrl"`
	Timestamp    int64            `json:"timestamp"`
	Likes        int              `json:"likes"`
	LikedBy      []string         `json:"likedBy"`
	Location     *models.GeoPoint `json:"location,omitempty"`
	LocationName string           `json:"locationName,omitempty"`
}

func (d postDoc) toModel(id string) *models.Post {
	likedBy := d.LikedBy
	if likedBy == nil {
		likedBy = []string{}
	}
	return &models.Post{
		ID:           id,
		UserID:       d.UserID,
		Text:         d.Text,
		ImageURL:     d.ImageURL,
		Timestamp:    d.Timestamp,
		Likes:        d.Likes,
		LikedBy:      likedBy,
		Location:     d.Location,
		LocationName: d.LocationName,
	}
}

// DecodePost converts a posts document into a Post.
func DecodePost(doc *docstore.Document) (*models.Post, error) {
	var d postDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return d.toModel(doc.ID), nil
}

// DecodePosts converts documents, skipping (and logging) any that do not
// decode so one malformed post cannot blank a whole feed.
func DecodePosts(ctx context.Context, docs []*docstore.Document) []*models.Post {
	posts := make([]*models.Post, 0, len(docs))
	for _, doc := range docs {
		p, err := DecodePost(doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable post", slog.String("post_id", doc.ID), slog.String("error", err.Error()))
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Post, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Post, error)
	SubscribeRecent(ctx context.Context, limit int) (*docstore.Subscription, error)
	UpdateText(ctx context.Context, id, text string) error
	// UpdateLikes runs mutate over the stored likedBy inside a transaction
	// and writes back likedBy together with likes = len(likedBy).
	UpdateLikes(ctx context.Context, id string, mutate func(likedBy []string) []string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// postRepository implements PostRepository
type postRepository struct {
	store docstore.Store
}

// NewPostRepository creates a new post repository
func NewPostRepository(store docstore.Store) PostRepository {
	return &postRepository{store: store}
}

// RecentPostsQuery is the feed/map query: newest first, at most limit posts
// (0 for all).
func RecentPostsQuery(limit int) docstore.Query {
	return docstore.Query{
		Collection: PostsCollection,
		OrderBy:    docstore.TimestampField,
		Direction:  docstore.Descending,
		Limit:      limit,
	}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = docstore.NewID()
	}
	if post.LikedBy == nil {
		post.LikedBy = []string{}
	}
	fields, err := docstore.DataOf(postDoc{
		UserID:       post.UserID,
		Text:         post.Text,
		ImageURL:     post.ImageURL,
		Timestamp:    post.Timestamp,
		Likes:        post.Likes,
		LikedBy:      post.LikedBy,
		Location:     post.Location,
		LocationName: post.LocationName,
	})
	if err != nil {
		return err
	}
	return r.store.Set(ctx, PostsCollection, post.ID, fields, false)
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	doc, err := r.store.Get(ctx, PostsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	return DecodePost(doc)
}

func (r *postRepository) ListRecent(ctx context.Context, limit int) ([]*models.Post, error) {
	docs, err := r.store.Query(ctx, RecentPostsQuery(limit))
	if err != nil {
		return nil, err
	}
	return DecodePosts(ctx, docs), nil
}

func (r *postRepository) ListByUser(ctx context.Context, userID string) ([]*models.Post, error) {
	q := RecentPostsQuery(0).Where("userId", docstore.OpEqual, userID)
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return DecodePosts(ctx, docs), nil
}

func (r *postRepository) SubscribeRecent(ctx context.Context, limit int) (*docstore.Subscription, error) {
	return r.store.Subscribe(ctx, RecentPostsQuery(limit))
}

func (r *postRepository) UpdateText(ctx context.Context, id, text string) error {
	if err := r.store.Update(ctx, PostsCollection, id, map[string]any{"text": text}); err != nil {
		return fmt.Errorf("update post %s: %w", id, err)
	}
	return nil
}

func (r *postRepository) UpdateLikes(ctx context.Context, id string, mutate func([]string) []string) ([]string, error) {
	var result []string
	err := r.store.RunTransaction(ctx, func(_ context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(PostsCollection, id)
		if err != nil {
			return err
		}
		var d postDoc
		if err := doc.DataTo(&d); err != nil {
			return err
		}
		result = mutate(append([]string(nil), d.LikedBy...))
		if result == nil {
			result = []string{}
		}
		return tx.Update(PostsCollection, id, map[string]any{
			"likedBy": result,
			"likes":   len(result),
		})
	})
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("post %s: %w", id, err)
		}
		return nil, err
	}
	return result, nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, PostsCollection, id)
}
