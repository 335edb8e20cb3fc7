// Package bootstrap assembles the PetPals runtime from configuration: the
// SQL database, Redis, the document and blob stores, identity and the
// service layer.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"petpals/internal/blobstore"
	"petpals/internal/cache"
	"petpals/internal/config"
	"petpals/internal/database"
	"petpals/internal/docstore"
	"petpals/internal/featureflags"
	"petpals/internal/identity"
	"petpals/internal/middleware"
	"petpals/internal/observability"
	"petpals/internal/repository"
	"petpals/internal/seed"
	"petpals/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development database with demo data.
	SeedDemo bool
}

// Services is the service layer shared by the HTTP server and the CLIs.
type Services struct {
	Posts    repository.PostRepository
	Profiles repository.ProfileRepository
	Comments repository.CommentRepository

	Feed     *service.FeedService
	Map      *service.MapService
	Post     *service.PostService
	Comment  *service.CommentService
	Profile  *service.ProfileService
	Stats    *service.StatsService
	Markers  *service.MarkerService
	Deletion *service.DeletionPipeline
}

// NewServices wires the service layer over docs and blobs.
func NewServices(docs docstore.Store, blobs blobstore.Store, clock service.Clock, opts service.Options) *Services {
	posts := repository.NewPostRepository(docs)
	profiles := repository.NewProfileRepository(docs)
	comments := repository.NewCommentRepository(docs)

	authors := service.NewAuthorResolver(profiles, opts.AuthorLookupConcurrency)
	pipeline := service.NewDeletionPipeline(blobs, posts, comments, opts.CommentPageSize)

	return &Services{
		Posts:    posts,
		Profiles: profiles,
		Comments: comments,
		Feed:     service.NewFeedService(posts, authors, opts.FeedWindowSize),
		Map:      service.NewMapService(posts, profiles, authors, opts.MapWindowSize),
		Post:     service.NewPostService(posts, blobs, pipeline, clock, opts),
		Comment:  service.NewCommentService(comments, posts, profiles, clock, opts.MaxCommentLength),
		Profile:  service.NewProfileService(profiles, blobs, clock),
		Stats:    service.NewStatsService(posts, profiles),
		Markers:  service.NewMarkerService(profiles, blobs),
		Deletion: pipeline,
	}
}

// ServiceOptions maps configuration onto service tunables.
func ServiceOptions(cfg *config.Config) service.Options {
	opts := service.DefaultOptions()
	opts.FeedWindowSize = cfg.FeedWindowSize
	if cfg.MapWindowSize > 0 {
		opts.MapWindowSize = cfg.MapWindowSize
	}
	if cfg.DefaultRadiusKm > 0 {
		opts.DefaultRadiusKm = cfg.DefaultRadiusKm
	}
	if cfg.CommentPageSize > 0 {
		opts.CommentPageSize = cfg.CommentPageSize
	}
	if cfg.AuthorLookupConcurrency > 0 {
		opts.AuthorLookupConcurrency = cfg.AuthorLookupConcurrency
	}
	if cfg.MaxPostTextLength > 0 {
		opts.MaxPostTextLength = cfg.MaxPostTextLength
	}
	if cfg.MaxCommentLength > 0 {
		opts.MaxCommentLength = cfg.MaxCommentLength
	}
	return opts
}

// Runtime owns every long-lived dependency of a PetPals process.
type Runtime struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Docs     docstore.Store
	Blobs    blobstore.Store
	Identity *identity.Service
	Flags    *featureflags.Manager
	Services *Services

	closers []func() error
}

// InitRuntime connects to DB and Redis and builds the service layer.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	observability.SetLogger(middleware.Logger)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional: without it caching, cross-instance change fan-out,
	// rate limiting and password resets are disabled.
	r := cache.InitRedis(cfg.RedisURL)

	rt := &Runtime{
		Config: cfg,
		DB:     db,
		Redis:  r,
		Flags:  featureflags.NewManagerWithDefaults(cfg.FeatureFlags),
	}

	var feed docstore.ChangeFeed
	if r != nil {
		feed = docstore.NewRedisChangeFeed(r, "petpals:changes:")
		rt.closers = append(rt.closers, r.Close)
	}
	rt.Docs = docstore.NewGormStore(db, feed)

	blobs, err := NewBlobStore(ctx, cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Blobs = blobs
	if gcs, ok := blobs.(*blobstore.GCSStore); ok {
		rt.closers = append(rt.closers, gcs.Close)
	}

	rt.Identity = identity.NewService(db, r, identity.LogMailer{}, identity.Config{
		JWTSecret: cfg.JWTSecret,
		ResetTTL:  cfg.PasswordResetTTL(),
	})
	rt.Services = NewServices(rt.Docs, rt.Blobs, service.SystemClock, ServiceOptions(cfg))

	if opts.SeedDemo {
		if err := rt.seedDemo(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

// NewBlobStore opens the backend selected by BLOB_BACKEND.
func NewBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "gcs":
		s, err := blobstore.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("open gcs bucket: %w", err)
		}
		return s, nil
	case "", "local":
		s, err := blobstore.NewLocalStore(cfg.BlobDir, cfg.BlobBaseURL)
		if err != nil {
			return nil, fmt.Errorf("open local blob dir: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func (r *Runtime) seedDemo(ctx context.Context) error {
	if r.Config.IsProduction() {
		return errors.New("refusing to seed demo data in production")
	}
	existing, err := r.Services.Posts.ListRecent(ctx, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		middleware.Logger.Info("demo seed skipped, posts already present")
		return nil
	}
	report, err := seed.NewSeeder(r.Docs, r.Identity, seed.DefaultOptions(), nil).Run(ctx)
	if err != nil {
		return err
	}
	middleware.Logger.Info("demo data seeded",
		slog.Int("users", len(report.UserIDs)),
		slog.Int("posts", report.Posts),
		slog.Int("comments", report.Comments),
	)
	return nil
}

// Close releases Redis, blob and database connections.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	cache.SetClient(nil)
	return errors.Join(errs...)
}
