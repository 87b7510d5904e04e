package domain

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

const MaxRoomNameLen = 64

type RoomID string

type Room struct {
	ID          RoomID    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatorID   UserID    `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Subscription is the durable "watching this room" relation, independent of presence.
type Subscription struct {
	UserID    UserID    `json:"userId"`
	RoomID    RoomID    `json:"roomId"`
	Room      *Room     `json:"room,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
