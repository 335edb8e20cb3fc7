// Package seed provides helpers to create demo data for development and
// manual testing. Nothing here runs in production.
package seed

import (
	"fmt"
	"strings"
	"time"

	"petpals/internal/docstore"
	"petpals/internal/geo"
	"petpals/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds profiles, posts and comments with plausible content.
type Factory struct {
	faker *gofakeit.Faker
	opts  Options
	pets  []PetPreset
	now   time.Time
}

// NewFactory creates a factory. A zero opts.RandomSeed seeds from the clock.
func NewFactory(opts Options, pets []PetPreset) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		faker: gofakeit.New(seed),
		opts:  opts,
		pets:  pets,
		now:   time.Now(),
	}
}

// Email returns a unique-looking address for the i-th seeded account.
func (f *Factory) Email(i int) string {
	return fmt.Sprintf("owner%03d.%s@petpals.example", i, strings.ToLower(f.faker.LetterN(5)))
}

// Profile builds the i-th user's profile. Preset pets are used first.
func (f *Factory) Profile(i int, userID string) *models.UserProfile {
	p := &models.UserProfile{UserID: userID}
	if i < len(f.pets) {
		pet := f.pets[i]
		p.PetName, p.PetBreed, p.PetAge = pet.Name, pet.Breed, pet.Age
	} else {
		p.PetName = f.faker.PetName()
		if f.faker.Bool() {
			p.PetBreed = f.faker.Dog()
		} else {
			p.PetBreed = f.faker.Cat()
		}
		p.PetAge = f.faker.Number(0, 18)
	}
	if f.faker.Float64Range(0, 1) < f.opts.GeotagRatio {
		loc := f.Near()
		p.Location = &loc
		at := f.now.UnixMilli()
		p.LastLocationUpdate = &at
	}
	return p
}

// AvatarURL returns a remote placeholder image for userID.
func (f *Factory) AvatarURL(userID string) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s/400/400", userID)
}

// Near returns a random point within SpreadKm of Center.
func (f *Factory) Near() models.GeoPoint {
	bearing := f.faker.Float64Range(0, 360)
	meters := f.faker.Float64Range(0, geo.KmToMeters(f.opts.SpreadKm))
	return geo.Destination(f.opts.Center, bearing, meters)
}

// Post builds a post by userID timestamped within the last MaxDays.
func (f *Factory) Post(userID string, likers []string) *models.Post {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute

	post := &models.Post{
		ID:        docstore.NewID(),
		UserID:    userID,
		Text:      f.faker.Sentence(f.faker.Number(4, 16)),
		Timestamp: f.now.Add(-back).UnixMilli(),
		LikedBy:   f.pickLikers(likers),
	}
	post.Likes = len(post.LikedBy)
	if f.faker.Float64Range(0, 1) < f.opts.ImageRatio {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", post.ID)
	}
	if f.faker.Float64Range(0, 1) < f.opts.GeotagRatio {
		loc := f.Near()
		post.Location = &loc
		post.LocationName = f.faker.City()
	}
	return post
}

func (f *Factory) pickLikers(candidates []string) []string {
	out := []string{}
	for _, id := range candidates {
		if f.faker.Float64Range(0, 1) < f.opts.LikeRatio {
			out = append(out, id)
		}
	}
	return out
}

// Comments builds between 0 and MaxComments comments on post, each later
// than the post itself.
func (f *Factory) Comments(post *models.Post, authors []*models.UserProfile) []*models.Comment {
	if len(authors) == 0 || f.opts.MaxComments <= 0 {
		return nil
	}
	n := f.faker.Number(0, f.opts.MaxComments)
	out := make([]*models.Comment, 0, n)
	ts := post.Timestamp
	for i := 0; i < n; i++ {
		author := authors[f.faker.Number(0, len(authors)-1)]
		ts += int64(f.faker.Number(1, 180)) * int64(time.Minute/time.Millisecond)
		out = append(out, &models.Comment{
			PostID:    post.ID,
			UserID:    author.UserID,
			UserName:  author.PetName,
			Text:      f.faker.Sentence(f.faker.Number(2, 10)),
			Timestamp: ts,
		})
	}
	return out
}
