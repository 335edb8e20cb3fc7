package seed

import (
	"context"
	"fmt"
	"log"

	"petpals/internal/docstore"
	"petpals/internal/identity"
	"petpals/internal/models"
	"petpals/internal/repository"
	"petpals/internal/service"
)

// Options configure a seeding run.
type Options struct {
	Users        int
	PostsPerUser int
	MaxComments  int
	MaxDays      int
	// Ratios are probabilities in [0, 1].
	GeotagRatio float64
	ImageRatio  float64
	LikeRatio   float64
	Center      models.GeoPoint
	SpreadKm    float64
	Password    string
	RandomSeed  int64
	DryRun      bool
}

// DefaultOptions seeds a small neighbourhood around central Tel Aviv.
func DefaultOptions() Options {
	return Options{
		Users:        12,
		PostsPerUser: 4,
		MaxComments:  6,
		MaxDays:      30,
		GeotagRatio:  0.7,
		ImageRatio:   0.5,
		LikeRatio:    0.3,
		Center:       models.GeoPoint{Latitude: 32.0853, Longitude: 34.7818},
		SpreadKm:     8,
		Password:     "petpals123",
	}
}

// AccountCreator registers login accounts for seeded users.
type AccountCreator interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
}

// Report summarises what a run wrote.
type Report struct {
	UserIDs  []string
	Emails   []string
	Posts    int
	Comments int
	Likes    int
}

// Seeder writes demo data through the repositories.
type Seeder struct {
	accounts AccountCreator
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	factory  *Factory
	opts     Options
}

// NewSeeder binds a seeder to docs. accounts may be nil, in which case
// profiles get random ids and no login.
func NewSeeder(docs docstore.Store, accounts AccountCreator, opts Options, pets []PetPreset) *Seeder {
	return &Seeder{
		accounts: accounts,
		profiles: repository.NewProfileRepository(docs),
		posts:    repository.NewPostRepository(docs),
		comments: repository.NewCommentRepository(docs),
		factory:  NewFactory(opts, pets),
		opts:     opts,
	}
}

// Run creates users, their posts and comments.
func (s *Seeder) Run(ctx context.Context) (*Report, error) {
	log.Printf("🌱 Seeding %d users with up to %d posts each...", s.opts.Users, s.opts.PostsPerUser)
	report := &Report{}

	profiles := make([]*models.UserProfile, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		uid, email, err := s.createAccount(ctx, i)
		if err != nil {
			return report, fmt.Errorf("create account %d: %w", i, err)
		}
		p := s.factory.Profile(i, uid)
		if err := s.writeProfile(ctx, p); err != nil {
			return report, fmt.Errorf("write profile %s: %w", uid, err)
		}
		profiles = append(profiles, p)
		report.UserIDs = append(report.UserIDs, uid)
		report.Emails = append(report.Emails, email)
	}
	log.Printf("✓ %d users created", len(profiles))

	for _, author := range profiles {
		for j := 0; j < s.opts.PostsPerUser; j++ {
			post := s.factory.Post(author.UserID, report.UserIDs)
			if !s.opts.DryRun {
				if err := s.posts.Create(ctx, post); err != nil {
					return report, fmt.Errorf("create post: %w", err)
				}
			}
			report.Posts++
			report.Likes += post.Likes

			for _, c := range s.factory.Comments(post, profiles) {
				if !s.opts.DryRun {
					if err := s.comments.Create(ctx, c); err != nil {
						return report, fmt.Errorf("create comment on %s: %w", post.ID, err)
					}
				}
				report.Comments++
			}
		}
	}

	if s.opts.DryRun {
		log.Printf("[dry-run] would create %d posts and %d comments", report.Posts, report.Comments)
	} else {
		log.Printf("✓ %d posts, %d comments, %d likes created", report.Posts, report.Comments, report.Likes)
	}
	return report, nil
}

func (s *Seeder) createAccount(ctx context.Context, i int) (string, string, error) {
	email := s.factory.Email(i)
	if s.accounts == nil || s.opts.DryRun {
		return docstore.NewID(), email, nil
	}
	session, err := s.accounts.SignUp(ctx, email, s.opts.Password)
	if err != nil {
		return "", "", err
	}
	return session.UserID, email, nil
}

func (s *Seeder) writeProfile(ctx context.Context, p *models.UserProfile) error {
	if s.opts.DryRun {
		return nil
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return err
	}
	if s.factory.faker.Float64Range(0, 1) < s.opts.ImageRatio {
		p.PetImage = s.factory.AvatarURL(p.UserID)
		if err := s.profiles.SetPetImage(ctx, p.UserID, p.PetImage); err != nil {
			return err
		}
	}
	if p.Location != nil {
		return s.profiles.SetLocation(ctx, p.UserID, *p.Location, *p.LastLocationUpdate)
	}
	return nil
}

// Clean removes every post through the deletion pipeline so images and
// comments go with them. It returns the number of posts removed.
func Clean(ctx context.Context, posts repository.PostRepository, pipeline *service.DeletionPipeline) (int, error) {
	log.Println("🗑️  Clearing existing posts...")
	all, err := posts.ListRecent(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}
	removed := 0
	for _, p := range all {
		report, err := pipeline.Delete(ctx, p)
		if err != nil {
			return removed, fmt.Errorf("delete post %s: %w", p.ID, err)
		}
		if len(report.Residual) > 0 {
			log.Printf("⚠️  post %s left residue: %v", p.ID, report.Residual)
		}
		removed++
	}
	return removed, nil
}
