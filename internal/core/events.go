package core

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/dkeye/Chat/internal/domain"
)

// Client to server.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventPing        = "ping"
	EventWhoAmI      = "whoami"
)

// Server to client.
const (
	EventRoomUsersUpdated = "room_users_updated"
	EventReceiveMessage   = "receive_message"
	EventNotification     = "notification"
	EventError            = "error"
	EventPong             = "pong"
)

// Envelope is the wire shape of every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func EncodeEvent(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type PresencePayload struct {
	RoomID domain.RoomID   `json:"roomId"`
	Users  []domain.Member `json:"users"`
	Count  int             `json:"count"`
}

func NewPresencePayload(snap Snapshot) PresencePayload {
	users := snap.Members
	if users == nil {
		users = []domain.Member{}
	}
	return PresencePayload{RoomID: snap.RoomID, Users: users, Count: len(users)}
}

type NotificationPayload struct {
	Type         domain.NotificationType `json:"type"`
	RoomID       domain.RoomID           `json:"roomId"`
	RoomName     string                  `json:"roomName"`
	Content      string                  `json:"content"`
	FromUserID   domain.UserID           `json:"fromUserId"`
	FromUsername string                  `json:"fromUsername"`
	CreatedAt    time.Time               `json:"createdAt"`
	MessageID    domain.MessageID        `json:"messageId"`
	IsRead       bool                    `json:"isRead"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type WhoAmIPayload struct {
	ID       domain.UserID   `json:"id"`
	Username string          `json:"username"`
	Rooms    []domain.RoomID `json:"rooms"`
}
