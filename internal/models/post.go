// Package models contains data structures for the application's domain models.
package models

// Post represents one published update.
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Text         string    `json:"text"`
	ImageURL     string    `json:"image_url"`
	Timestamp    int64     `json:"timestamp"`
	Likes        int       `json:"likes"`
	LikedBy      []string  `json:"liked_by"`
	Location     *GeoPoint `json:"location,omitempty"`
	LocationName string    `json:"location_name,omitempty"`
}

// IsLikedBy reports whether userID is in the liker set.
func (p *Post) IsLikedBy(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// HasLocation reports whether the post carries a usable coordinate.
func (p *Post) HasLocation() bool {
	return p.Location != nil && p.Location.Valid()
}

// Comment represents a reply to a Post.
type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	UserName  string `json:"user_name,omitempty"`
}
