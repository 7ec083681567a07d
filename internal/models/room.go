package models

import (
	"time"

	"github.com/lib/pq"
)

// Room is a teaching space.
type Room struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	RoomType   string         `db:"room_type" json:"room_type"`
	Capacity   int            `db:"capacity" json:"capacity"`
	Facilities pq.StringArray `db:"facilities" json:"facilities"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
