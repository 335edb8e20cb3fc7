package repository

import (
	"context"
	"fmt"
	"log/slog"

	"petpals/internal/docstore"
	"petpals/internal/models"
)

// CommentsCollection returns the comments sub-collection of a post.
func CommentsCollection(postID string) string {
	return docstore.Sub(PostsCollection, postID, "comments")
}

type commentDoc struct {
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	UserName  string `json:"userName,omitempty"`
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, postID, commentID string) (*models.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]*models.Comment, error)
	Subscribe(ctx context.Context, postID string) (*docstore.Subscription, error)
	Delete(ctx context.Context, postID, commentID string) error
	// PageIDs returns up to limit comment ids of a post in store order.
	PageIDs(ctx context.Context, postID string, limit int) ([]string, error)
	// DeleteBatch removes ids in one atomic batch.
	DeleteBatch(ctx context.Context, postID string, ids []string) error
}

type commentRepository struct {
	store docstore.Store
}

// NewCommentRepository creates a new comment repository
func NewCommentRepository(store docstore.Store) CommentRepository {
	return &commentRepository{store: store}
}

func commentsQuery(postID string) docstore.Query {
	return docstore.Query{
		Collection: CommentsCollection(postID),
		OrderBy:    docstore.TimestampField,
		Direction:  docstore.Ascending,
	}
}

func decodeComment(postID string, doc *docstore.Document) (*models.Comment, error) {
	var d commentDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return &models.Comment{
		ID:        doc.ID,
		PostID:    postID,
		UserID:    d.UserID,
		Text:      d.Text,
		Timestamp: d.Timestamp,
		UserName:  d.UserName,
	}, nil
}

// DecodeComments converts comment documents, skipping undecodable ones.
func DecodeComments(ctx context.Context, postID string, docs []*docstore.Document) []*models.Comment {
	out := make([]*models.Comment, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeComment(postID, doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable comment", slog.String("comment_id", doc.ID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	fields, err := docstore.DataOf(commentDoc{
		UserID:    comment.UserID,
		Text:      comment.Text,
		Timestamp: comment.Timestamp,
		UserName:  comment.UserName,
	})
	if err != nil {
		return err
	}
	id, err := r.store.Add(ctx, CommentsCollection(comment.PostID), fields)
	if err != nil {
		return err
	}
	comment.ID = id
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, postID, commentID string) (*models.Comment, error) {
	doc, err := r.store.Get(ctx, CommentsCollection(postID), commentID)
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", commentID, err)
	}
	return decodeComment(postID, doc)
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	docs, err := r.store.Query(ctx, commentsQuery(postID))
	if err != nil {
		return nil, err
	}
	return DecodeComments(ctx, postID, docs), nil
}

func (r *commentRepository) Subscribe(ctx context.Context, postID string) (*docstore.Subscription, error) {
	return r.store.Subscribe(ctx, commentsQuery(postID))
}

func (r *commentRepository) Delete(ctx context.Context, postID, commentID string) error {
	return r.store.Delete(ctx, CommentsCollection(postID), commentID)
}

func (r *commentRepository) PageIDs(ctx context.Context, postID string, limit int) ([]string, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: CommentsCollection(postID), Limit: limit})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (r *commentRepository) DeleteBatch(ctx context.Context, postID string, ids []string) error {
	b := r.store.Batch()
	coll := CommentsCollection(postID)
	for _, id := range ids {
		b.Delete(coll, id)
	}
	return b.Commit(ctx)
}
