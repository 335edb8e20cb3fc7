package service

import (
	"context"
	"log/slog"

	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/repository"
	"petpals/internal/validation"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	profiles ProfileLookup
	clock    Clock
	maxLen   int
}

type CreateCommentInput struct {
	UserID string
	PostID string
	Text   string
}

type DeleteCommentInput struct {
	UserID    string
	PostID    string
	CommentID string
}

func NewCommentService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	profiles ProfileLookup,
	clock Clock,
	maxLen int,
) *CommentService {
	if clock == nil {
		clock = SystemClock
	}
	return &CommentService{
		comments: comments,
		posts:    posts,
		profiles: profiles,
		clock:    clock,
		maxLen:   maxLen,
	}
}

// AddComment stores a comment under an existing post. The author's current
// pet name is copied onto the comment so lists render without a join.
func (s *CommentService) AddComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if in.UserID == "" {
		return nil, models.NewUnauthorizedError("Sign in to comment")
	}
	text, err := validation.ValidateText("text", in.Text, s.maxLen)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.posts.GetByID(ctx, in.PostID); err != nil {
		return nil, storeError(err, "Post", in.PostID)
	}

	comment := &models.Comment{
		PostID:    in.PostID,
		UserID:    in.UserID,
		Text:      text,
		Timestamp: s.clock(),
	}
	if p, err := s.profiles.GetByID(ctx, in.UserID); err == nil {
		comment.UserName = p.PetName
	} else {
		slog.DebugContext(ctx, "commenting without a profile",
			slog.String("user_id", in.UserID), slog.String("error", err.Error()))
	}

	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, storeError(err, "Comment", "")
	}
	return comment, nil
}

// ListComments returns the post's comments oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, storeError(err, "Post", postID)
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, storeError(err, "Comment", "")
	}
	return comments, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.comments.GetByID(ctx, in.PostID, in.CommentID)
	if err != nil {
		return storeError(err, "Comment", in.CommentID)
	}
	if comment.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own comments")
	}
	if err := s.comments.Delete(ctx, in.PostID, in.CommentID); err != nil {
		return storeError(err, "Comment", in.CommentID)
	}
	return nil
}

// CommentUpdate is one emission of a live comment list.
type CommentUpdate struct {
	Comments []*models.Comment
	Err      error
}

// CommentSubscription streams a post's full comment list on every change.
type CommentSubscription struct {
	updates chan CommentUpdate
	cancel  func()
	done    chan struct{}
}

// Updates returns the update channel. It is closed after Cancel.
func (c *CommentSubscription) Updates() <-chan CommentUpdate {
	return c.updates
}

// Cancel releases the store listener and waits for the stream to stop.
func (c *CommentSubscription) Cancel() {
	c.cancel()
	<-c.done
}

func (s *CommentService) SubscribeComments(ctx context.Context, postID string) (*CommentSubscription, error) {
	sub, err := s.comments.Subscribe(ctx, postID)
	if err != nil {
		return nil, storeError(err, "Comment", "")
	}
	cs := &CommentSubscription{
		updates: make(chan CommentUpdate, 1),
		cancel:  sub.Cancel,
		done:    make(chan struct{}),
	}
	observability.LiveSubscriptions.WithLabelValues("comments").Inc()

	go func() {
		defer close(cs.done)
		defer close(cs.updates)
		defer observability.LiveSubscriptions.WithLabelValues("comments").Dec()
		for snap := range sub.C() {
			u := CommentUpdate{Comments: []*models.Comment{}}
			if snap.Err != nil {
				u.Err = storeError(snap.Err, "Comment", "")
			} else {
				u.Comments = repository.DecodeComments(ctx, postID, snap.Docs)
			}
			select {
			case cs.updates <- u:
			case <-sub.Done():
				return
			}
		}
	}()
	return cs, nil
}
