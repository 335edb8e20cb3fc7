package service

import (
	"context"
	"log/slog"

	"petpals/internal/blobstore"
	"petpals/internal/docstore"
	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/repository"
	"petpals/internal/validation"
)

type PostService struct {
	posts    repository.PostRepository
	blobs    blobstore.Store
	pipeline *DeletionPipeline
	clock    Clock
	opts     Options
}

type CreatePostInput struct {
	UserID       string
	Text         string
	Image        []byte
	Location     *models.GeoPoint
	LocationName string
}

type UpdatePostInput struct {
	UserID string
	PostID string
	Text   string
}

type DeletePostInput struct {
	UserID string
	PostID string
}

// LikeResult is the post's like state after a toggle.
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// maxImageBytes caps uploads that reach the service directly; handlers apply
// the configured limit first.
const maxImageBytes = 10 << 20

func NewPostService(
	posts repository.PostRepository,
	blobs blobstore.Store,
	pipeline *DeletionPipeline,
	clock Clock,
	opts Options,
) *PostService {
	if clock == nil {
		clock = SystemClock
	}
	return &PostService{
		posts:    posts,
		blobs:    blobs,
		pipeline: pipeline,
		clock:    clock,
		opts:     opts,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.UserID == "" {
		return nil, models.NewUnauthorizedError("Sign in to post")
	}
	text, err := validation.ValidateText("text", in.Text, s.opts.MaxPostTextLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.Location != nil && !in.Location.Valid() {
		return nil, models.NewValidationError("location is not a valid coordinate")
	}

	post := &models.Post{
		ID:        docstore.NewID(),
		UserID:    in.UserID,
		Text:      text,
		Timestamp: s.clock(),
		LikedBy:   []string{},
	}
	if in.Location != nil {
		loc := *in.Location
		post.Location = &loc
		post.LocationName = in.LocationName
	}

	var imageRef string
	if len(in.Image) > 0 {
		contentType, err := validation.ValidateImage(in.Image, maxImageBytes)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		imageRef = blobstore.PostImageRef(post.ID)
		if _, err := s.blobs.Upload(ctx, imageRef, in.Image, contentType); err != nil {
			return nil, storeError(err, "Image", imageRef)
		}
		url, err := s.blobs.DownloadURL(ctx, imageRef)
		if err != nil {
			s.discardImage(ctx, imageRef)
			return nil, storeError(err, "Image", imageRef)
		}
		post.ImageURL = url
	}

	if err := s.posts.Create(ctx, post); err != nil {
		if imageRef != "" {
			s.discardImage(ctx, imageRef)
		}
		return nil, storeError(err, "Post", post.ID)
	}
	return post, nil
}

func (s *PostService) discardImage(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil {
		slog.WarnContext(ctx, "failed to remove orphaned post image",
			slog.String("ref", ref), slog.String("error", err.Error()))
	}
}

func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Post", id)
	}
	return post, nil
}

func (s *PostService) GetUserPosts(ctx context.Context, userID string) ([]*models.Post, error) {
	posts, err := s.posts.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Post", "")
	}
	return posts, nil
}

// UpdatePostText replaces the text of one of the caller's posts.
func (s *PostService) UpdatePostText(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	text, err := validation.ValidateText("text", in.Text, s.opts.MaxPostTextLength)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	post, err := s.GetPost(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own posts")
	}
	if err := s.posts.UpdateText(ctx, in.PostID, text); err != nil {
		return nil, storeError(err, "Post", in.PostID)
	}
	post.Text = text
	return post, nil
}

// DeletePost removes one of the caller's posts along with its image and
// comments. The report lists cleanup the pipeline had to leave behind.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (*DeletionReport, error) {
	post, err := s.GetPost(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only delete your own posts")
	}
	report, err := s.pipeline.Delete(ctx, post)
	if err != nil {
		return report, storeError(err, "Post", in.PostID)
	}
	return report, nil
}

// ToggleLike adds userID to the post's likers, or removes it when present.
// The like count is rewritten from the liker set in the same transaction.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID string) (*LikeResult, error) {
	if userID == "" {
		return nil, models.NewUnauthorizedError("Sign in to like posts")
	}
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "PostService", "ToggleLike")
	defer span.End()

	var liked bool
	likedBy, err := s.posts.UpdateLikes(ctx, postID, func(current []string) []string {
		next := make([]string, 0, len(current)+1)
		seen := make(map[string]struct{}, len(current))
		removed := false
		for _, id := range current {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if id == userID {
				removed = true
				continue
			}
			next = append(next, id)
		}
		liked = !removed
		if liked {
			next = append(next, userID)
		}
		return next
	})
	if err != nil {
		span.RecordError(err)
		return nil, storeError(err, "Post", postID)
	}
	return &LikeResult{Liked: liked, Likes: len(likedBy)}, nil
}
