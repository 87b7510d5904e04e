package domain

import "time"

type MessageID string

type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is immutable once persisted.
type Message struct {
	ID          MessageID    `json:"id"`
	RoomID      RoomID       `json:"roomId"`
	UserID      UserID       `json:"userId"`
	User        User         `json:"user"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewMessage is what the dispatcher hands to the persistence gateway.
type NewMessage struct {
	RoomID      RoomID
	Sender      User
	Content     string
	Attachments []Attachment
}

// Upload is a raw attachment awaiting storage.
type Upload struct {
	FileName string
	Data     []byte
}
