package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Room struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	Code        string    `json:"code" gorm:"unique"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	MembersOnly bool      `json:"members_only"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Member struct {
	RoomID   uuid.UUID `json:"room_id" gorm:"primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"primaryKey"`
	JoinedAt time.Time `json:"joined_at"`
}

// QueueItem is the persisted form of a queued track. Votes live in their
// own table; the in-memory engine keeps them as a per-item map and this row
// only exists so state survives restarts.
type QueueItem struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	RoomID      uuid.UUID `json:"room_id" gorm:"index"`
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	Artist      string    `json:"artist"`
	SubmittedBy uuid.UUID `json:"submitted_by"`
	Seq         uint64    `json:"seq"`
	Played      bool      `json:"played"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Vote struct {
	QueueItemID uuid.UUID `json:"queue_item_id" gorm:"primaryKey"`
	UserID      uuid.UUID `json:"user_id" gorm:"primaryKey"`
	Value       int       `json:"value"` // 1 for upvote, -1 for downvote
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueueEntry is the client-facing view of one queued track at snapshot
// time. Score is derived from the vote map and never stored.
type QueueEntry struct {
	ID          uuid.UUID `json:"id"`
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	Artist      string    `json:"artist"`
	SubmittedBy uuid.UUID `json:"submitted_by"`
	Seq         uint64    `json:"seq"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PlayedTrack is an advance result kept in the bounded per-room history.
type PlayedTrack struct {
	TrackID   string    `json:"track_id"`
	TrackName string    `json:"track_name"`
	Artist    string    `json:"artist"`
	Score     int       `json:"score"`
	PlayedAt  time.Time `json:"played_at"`
}
