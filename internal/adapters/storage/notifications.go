package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

// CreateNotifications inserts the whole batch or nothing.
func (s *Store) CreateNotifications(ctx context.Context, batch []domain.NewNotification) error {
	if len(batch) == 0 {
		return nil
	}
	now := toMillis(s.stamp())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO notifications(id, user_id, room_id, message_id, type, is_read, created_at) VALUES(?,?,?,?,?,0,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, n := range batch {
			if _, err := stmt.ExecContext(ctx, uuid.NewString(), n.UserID, n.RoomID, n.MessageID, n.Type, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, unread first, newest
// first within each group.
func (s *Store) ListNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.type, n.is_read, n.created_at,
		        r.id, r.name,
		        m.id, m.content, m.user_id, m.username
		 FROM notifications n
		 JOIN rooms r ON r.id = n.room_id
		 JOIN messages m ON m.id = n.message_id
		 WHERE n.user_id = ?
		 ORDER BY n.is_read ASC, n.created_at DESC, n.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Notification{}
	for rows.Next() {
		var (
			n  domain.Notification
			ms int64
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.IsRead, &ms,
			&n.Room.ID, &n.Room.Name,
			&n.Message.ID, &n.Message.Content, &n.Message.User.ID, &n.Message.User.Username,
		); err != nil {
			return nil, err
		}
		n.UserID = userID
		n.CreatedAt = fromMillis(ms)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkRoomRead(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND room_id = ? AND is_read = 0`, userID, roomID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkAllRead(ctx context.Context, userID domain.UserID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) PruneReadNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
