package service

import (
	"context"
	"fmt"
	"log/slog"

	"petpals/internal/blobstore"
	"petpals/internal/models"
	"petpals/internal/observability"
	"petpals/internal/repository"
)

// Deletion stages, in execution order.
const (
	StageImage    = "image"
	StageComments = "comments"
	StageDocument = "document"
)

// Residual records cleanup that a deletion could not finish.
type Residual struct {
	Stage string
	Err   error
}

func (r Residual) String() string {
	return fmt.Sprintf("%s: %v", r.Stage, r.Err)
}

// DeletionReport describes what a pipeline run did.
type DeletionReport struct {
	PostID          string
	ImageDeleted    bool
	CommentPages    int
	CommentsDeleted int
	Residual        []Residual
}

// DeletionPipeline removes a post in three stages: its image, its comments
// page by page, then the post document. The first two stages are best
// effort; only the document delete decides the result. Callers must not run
// two deletions of the same post at once.
type DeletionPipeline struct {
	blobs    blobstore.Store
	posts    repository.PostRepository
	comments repository.CommentRepository
	pageSize int
}

// NewDeletionPipeline deletes comments pageSize at a time.
func NewDeletionPipeline(blobs blobstore.Store, posts repository.PostRepository, comments repository.CommentRepository, pageSize int) *DeletionPipeline {
	return &DeletionPipeline{blobs: blobs, posts: posts, comments: comments, pageSize: pageSize}
}

// Delete runs every stage in order. The returned error is the document
// delete's; image and comment failures are only reported in the report.
func (p *DeletionPipeline) Delete(ctx context.Context, post *models.Post) (*DeletionReport, error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "DeletionPipeline", "Delete")
	defer span.End()
	ctx = observability.WithCorrelationID(ctx, observability.GenerateCorrelationID())
	observability.LogAsyncOperationStart(ctx, "delete_post", map[string]any{"post_id": post.ID})

	report := &DeletionReport{PostID: post.ID}

	if err := p.deleteImage(ctx, post, report); err != nil {
		p.residual(ctx, report, StageImage, err)
	}
	if err := p.deleteComments(ctx, post.ID, report); err != nil {
		p.residual(ctx, report, StageComments, err)
	}

	if err := p.posts.Delete(ctx, post.ID); err != nil {
		span.RecordError(err)
		observability.LogAsyncOperationError(ctx, "delete_post", err, map[string]any{"post_id": post.ID})
		return report, fmt.Errorf("delete post %s: %w", post.ID, err)
	}
	observability.LogAsyncOperationEnd(ctx, "delete_post", map[string]any{
		"post_id":          post.ID,
		"image_deleted":    report.ImageDeleted,
		"comments_deleted": report.CommentsDeleted,
		"residual":         len(report.Residual),
	})
	return report, nil
}

func (p *DeletionPipeline) residual(ctx context.Context, report *DeletionReport, stage string, err error) {
	report.Residual = append(report.Residual, Residual{Stage: stage, Err: err})
	observability.CascadeResidual.WithLabelValues(stage).Inc()
	slog.WarnContext(ctx, "post deletion left residual data",
		slog.String("post_id", report.PostID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// deleteImage tries the ref recovered from the stored URL first and the
// conventional post_images path second.
func (p *DeletionPipeline) deleteImage(ctx context.Context, post *models.Post, report *DeletionReport) error {
	if post.ImageURL == "" {
		return nil
	}
	fallback := blobstore.PostImageRef(post.ID)

	ref, err := p.blobs.RefFromURL(post.ImageURL)
	if err == nil {
		if err = p.blobs.Delete(ctx, ref); err == nil {
			report.ImageDeleted = true
			return nil
		}
		if ref == fallback {
			return err
		}
	}

	if ferr := p.blobs.Delete(ctx, fallback); ferr != nil {
		return fmt.Errorf("by url: %v; by path: %w", err, ferr)
	}
	report.ImageDeleted = true
	return nil
}

// deleteComments stops at the first empty page or the first failure.
func (p *DeletionPipeline) deleteComments(ctx context.Context, postID string, report *DeletionReport) error {
	for {
		ids, err := p.comments.PageIDs(ctx, postID, p.pageSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := p.comments.DeleteBatch(ctx, postID, ids); err != nil {
			return err
		}
		report.CommentPages++
		report.CommentsDeleted += len(ids)
	}
}
