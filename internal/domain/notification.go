package domain

import "time"

type NotificationType string

const NotificationNewMessage NotificationType = "NEW_MESSAGE"

type NewNotification struct {
	UserID    UserID
	RoomID    RoomID
	MessageID MessageID
	Type      NotificationType
}

// Notification is a stored record as listed to its owner.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
	UserID    UserID           `json:"userId"`
	Room      Room             `json:"room"`
	Message   NotifiedMessage  `json:"message"`
}

type NotifiedMessage struct {
	ID      MessageID `json:"id"`
	Content string    `json:"content"`
	User    User      `json:"user"`
}
