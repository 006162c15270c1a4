package domain

import (
	"time"
)

// World represents a user-submitted saved world
type World struct {
	ID                  string       `json:"id"`
	Title               string       `json:"title"`
	Seed                string       `json:"seed,omitempty"`
	Description         string       `json:"description,omitempty"`
	ProgressDescription string       `json:"progress_description,omitempty"`
	Structures          string       `json:"structures,omitempty"`
	DaysPlayed          int          `json:"days_played"`
	UploadedByName      string       `json:"uploaded_by_name"`
	UploadedAt          time.Time    `json:"uploaded_at"`
	WorldFileURL        string       `json:"world_file_url"`
	Images              []WorldImage `json:"world_images"`
	LikeCount           int64        `json:"like_count"`
}

// WorldImage is a screenshot attached to a world
type WorldImage struct {
	WorldID  string `json:"world_id,omitempty"`
	ImageURL string `json:"image_url"`
	Position int    `json:"position"`
}

// Like relates one user to one world. At most one exists per pair.
type Like struct {
	WorldID   string    `json:"world_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LikeEvent is emitted after a like relation changed
type LikeEvent struct {
	WorldID   string    `json:"world_id"`
	UserID    string    `json:"user_id"`
	Liked     bool      `json:"liked"`
	LikeCount int64     `json:"like_count"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin,omitempty"`
}

// LikeCount pairs a world with its number of likes
type LikeCount struct {
	WorldID string `json:"world_id"`
	Count   int64  `json:"count"`
}

// ToggleResult describes the outcome of a like toggle
type ToggleResult struct {
	WorldID   string `json:"world_id"`
	Liked     bool   `json:"liked"`
	LikeCount int64  `json:"like_count"`
}

// CreateWorldRequest holds the fields needed to seed a world
type CreateWorldRequest struct {
	ID                  string    `json:"id" yaml:"id"`
	Title               string    `json:"title" yaml:"title"`
	Seed                string    `json:"seed,omitempty" yaml:"seed"`
	Description         string    `json:"description,omitempty" yaml:"description"`
	ProgressDescription string    `json:"progress_description,omitempty" yaml:"progress_description"`
	Structures          string    `json:"structures,omitempty" yaml:"structures"`
	DaysPlayed          int       `json:"days_played" yaml:"days_played"`
	UploadedByName      string    `json:"uploaded_by_name" yaml:"uploaded_by_name"`
	UploadedAt          time.Time `json:"uploaded_at" yaml:"uploaded_at"`
	WorldFileURL        string    `json:"world_file_url" yaml:"world_file_url"`
	ImageURLs           []string  `json:"image_urls,omitempty" yaml:"image_urls"`
}

// Validate checks the required fields of a seed request
func (r *CreateWorldRequest) Validate() error {
	if r.Title == "" || r.UploadedByName == "" || r.WorldFileURL == "" {
		return ErrInvalidWorld
	}
	if r.DaysPlayed < 0 {
		return ErrInvalidWorld
	}
	return nil
}
