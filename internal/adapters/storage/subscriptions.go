package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dkeye/Chat/internal/domain"
)

// Subscribe is idempotent: subscribing twice keeps the first record.
func (s *Store) Subscribe(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (domain.Subscription, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return domain.Subscription{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_subscriptions(room_id, user_id, created_at) VALUES(?,?,?)
		 ON CONFLICT(room_id, user_id) DO NOTHING`,
		roomID, userID, toMillis(s.stamp()),
	)
	if err != nil {
		return domain.Subscription{}, err
	}
	var ms int64
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM room_subscriptions WHERE room_id = ? AND user_id = ?`, roomID, userID,
	).Scan(&ms)
	if err != nil {
		return domain.Subscription{}, err
	}
	return domain.Subscription{UserID: userID, RoomID: roomID, CreatedAt: fromMillis(ms)}, nil
}

func (s *Store) Unsubscribe(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM room_subscriptions WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) IsSubscribed(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_subscriptions WHERE room_id = ? AND user_id = ?`, roomID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) ListUserSubscriptions(ctx context.Context, userID domain.UserID) ([]domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.room_id, s.created_at, r.name, r.description, r.creator_id, r.created_at
		 FROM room_subscriptions s JOIN rooms r ON r.id = s.room_id
		 WHERE s.user_id = ? ORDER BY s.created_at ASC, s.room_id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Subscription{}
	for rows.Next() {
		var (
			sub          domain.Subscription
			room         domain.Room
			subMs, romMs int64
		)
		if err := rows.Scan(&sub.RoomID, &subMs, &room.Name, &room.Description, &room.CreatorID, &romMs); err != nil {
			return nil, err
		}
		room.ID = sub.RoomID
		room.CreatedAt = fromMillis(romMs)
		sub.UserID = userID
		sub.CreatedAt = fromMillis(subMs)
		sub.Room = &room
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) ListRoomSubscribers(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM room_subscriptions WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserID
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}
