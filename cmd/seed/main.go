// Command main fills a PetPals database with demo pets, posts and comments.
package main

import (
	"context"
	"flag"
	"log"

	"petpals/internal/bootstrap"
	"petpals/internal/config"
	"petpals/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 0, "Number of pet owners to create (0 keeps the default)")
	postsPerUser := flag.Int("posts", 0, "Posts per owner (0 keeps the default)")
	shouldClean := flag.Bool("clean", false, "Delete every post, with its image and comments, before seeding")
	preset := flag.String("preset", "", "Path to a YAML preset (e.g. internal/seed/testdata/neighbourhood.yml)")
	randomSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 picks one)")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	flag.Parse()

	log.Println("🌱 PetPals Seeder")
	log.Println("=================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("close runtime: %v", err)
		}
	}()

	opts := seed.DefaultOptions()
	var pets []seed.PetPreset
	if *preset != "" {
		p, err := seed.LoadPreset(*preset)
		if err != nil {
			log.Fatalf("❌ Preset load failed: %v", err)
		}
		log.Printf("Applying preset: %s\n", p.Name)
		opts = p.Apply(opts)
		pets = p.Pets
	}
	if *numUsers > 0 {
		opts.Users = *numUsers
	}
	if *postsPerUser > 0 {
		opts.PostsPerUser = *postsPerUser
	}
	opts.RandomSeed = *randomSeed
	opts.DryRun = *dryRun

	if cfg.IsProduction() && !opts.DryRun {
		log.Fatal("❌ Refusing to seed a production database")
	}

	if *shouldClean && !opts.DryRun {
		removed, err := seed.Clean(ctx, rt.Services.Posts, rt.Services.Deletion)
		if err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
		log.Printf("Removed %d posts\n", removed)
	}

	log.Printf("Target: %d owners, %d posts each, dry-run=%v\n", opts.Users, opts.PostsPerUser, opts.DryRun)
	report, err := seed.NewSeeder(rt.Docs, rt.Identity, opts, pets).Run(ctx)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! %d owners, %d posts, %d comments, %d likes\n",
		len(report.UserIDs), report.Posts, report.Comments, report.Likes)
	if len(report.Emails) > 0 {
		log.Printf("📧 Sign in as %s with the password: %s\n", report.Emails[0], opts.Password)
	}
}
