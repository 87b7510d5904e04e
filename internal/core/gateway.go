package core

import (
	"context"

	"github.com/dkeye/Chat/internal/domain"
)

//go:generate mockgen -source=gateway.go -destination=mocks/gateway_mock.go -package=mocks

// Gateway is the persistence surface the real-time core depends on.
type Gateway interface {
	CreateMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	ListRoomSubscribers(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error)
	CreateNotifications(ctx context.Context, batch []domain.NewNotification) error
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
}

// Uploader stores attachment bytes and returns their public description.
// Remove deletes a stored attachment that ended up without a message.
type Uploader interface {
	Upload(ctx context.Context, roomID domain.RoomID, up domain.Upload) (domain.Attachment, error)
	Remove(ctx context.Context, att domain.Attachment) error
}
