package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

var ErrRoomNameInvalid = errors.New("room name must be 1-64 characters")

func (s *Store) CreateRoom(ctx context.Context, name, description string, creator domain.UserID) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > domain.MaxRoomNameLen {
		return domain.Room{}, ErrRoomNameInvalid
	}
	room := domain.Room{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatorID:   creator,
		CreatedAt:   s.stamp(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms(id, name, description, creator_id, created_at) VALUES(?,?,?,?,?)`,
		room.ID, room.Name, room.Description, room.CreatorID, toMillis(room.CreatedAt),
	)
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var (
		r  domain.Room
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, creator_id, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.CreatorID, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	r.CreatedAt = fromMillis(ms)
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, creator_id, created_at FROM rooms ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Room{}
	for rows.Next() {
		var (
			r  domain.Room
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatorID, &ms); err != nil {
			return nil, err
		}
		r.CreatedAt = fromMillis(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}
