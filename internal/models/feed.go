package models

// FeedEntry joins a Post with its author's current display data. It is
// rebuilt on every load and never persisted.
type FeedEntry struct {
	Post         Post   `json:"post"`
	AuthorName   string `json:"author_name"`
	AuthorAvatar string `json:"author_avatar,omitempty"`
}

// LocationPost is a map-ready marker record for a geotagged post.
type LocationPost struct {
	PostID       string   `json:"post_id"`
	UserID       string   `json:"user_id"`
	AuthorName   string   `json:"author_name"`
	AuthorAvatar string   `json:"author_avatar,omitempty"`
	Text         string   `json:"text"`
	ImageURL     string   `json:"image_url,omitempty"`
	Location     GeoPoint `json:"location"`
	LocationName string   `json:"location_name,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	DistanceM    *float64 `json:"distance_m,omitempty"`
	MarkerURL    string   `json:"marker_url,omitempty"`
}

// NearbyUser is a map marker for another pet owner's last known position.
type NearbyUser struct {
	UserID             string   `json:"user_id"`
	PetName            string   `json:"pet_name"`
	PetImage           string   `json:"pet_image,omitempty"`
	Location           GeoPoint `json:"location"`
	LastLocationUpdate int64    `json:"last_location_update,omitempty"`
	DistanceM          *float64 `json:"distance_m,omitempty"`
	MarkerURL          string   `json:"marker_url,omitempty"`
}
