package models

import "math"

// GeoPoint is a WGS84 latitude/longitude pair in degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the point is in range and not the (0,0) placeholder
// clients write when no fix is available.
func (g GeoPoint) Valid() bool {
	if math.IsNaN(g.Latitude) || math.IsNaN(g.Longitude) {
		return false
	}
	if g.Latitude == 0 && g.Longitude == 0 {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}

// UserProfile is a pet owner's public profile.
type UserProfile struct {
	UserID             string    `json:"user_id"`
	PetName            string    `json:"pet_name"`
	PetAge             int       `json:"pet_age"`
	PetBreed           string    `json:"pet_breed"`
	PetImage           string    `json:"pet_image"`
	Location           *GeoPoint `json:"location,omitempty"`
	LastLocationUpdate *int64    `json:"last_location_update,omitempty"`
}

// UserStats summarises a user's activity.
type UserStats struct {
	UserID          string `json:"user_id"`
	PostCount       int    `json:"post_count"`
	LikesReceived   int    `json:"likes_received"`
	GeotaggedPosts  int    `json:"geotagged_posts"`
	LastPostAt      int64  `json:"last_post_at,omitempty"`
	ProfileComplete bool   `json:"profile_complete"`
}
