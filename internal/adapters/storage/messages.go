package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

const (
	DefaultHistoryPage = 20
	MaxHistoryPage     = 100
)

// CreateMessage stores the message and its attachments atomically and
// returns it hydrated with the sender.
func (s *Store) CreateMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	msg := domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		RoomID:      in.RoomID,
		UserID:      in.Sender.ID,
		User:        in.Sender,
		Content:     in.Content,
		Attachments: make([]domain.Attachment, 0, len(in.Attachments)),
		CreatedAt:   s.stamp(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages(id, room_id, user_id, username, content, created_at) VALUES(?,?,?,?,?,?)`,
			msg.ID, msg.RoomID, msg.UserID, msg.User.Username, msg.Content, toMillis(msg.CreatedAt),
		)
		if err != nil {
			return err
		}
		for i, a := range in.Attachments {
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO attachments(id, message_id, position, url, file_name, mime_type, size) VALUES(?,?,?,?,?,?,?)`,
				a.ID, msg.ID, i, a.URL, a.FileName, a.MimeType, a.Size,
			)
			if err != nil {
				return err
			}
			msg.Attachments = append(msg.Attachments, a)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages of the room older than before
// (or the newest ones when before is empty), oldest first.
func (s *Store) ListMessages(ctx context.Context, roomID domain.RoomID, before domain.MessageID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryPage
	}
	limit = min(limit, MaxHistoryPage)

	query := `SELECT id, room_id, user_id, username, content, created_at FROM messages WHERE room_id = ?`
	args := []any{roomID}
	if before != "" {
		var seq int64
		err := s.db.QueryRowContext(ctx, `SELECT seq FROM messages WHERE id = ? AND room_id = ?`, before, roomID).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		query += ` AND seq < ?`
		args = append(args, seq)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := []domain.Message{}
	for rows.Next() {
		var (
			m  domain.Message
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.User.Username, &m.Content, &ms); err != nil {
			rows.Close()
			return nil, err
		}
		m.User.ID = m.UserID
		m.CreatedAt = fromMillis(ms)
		m.Attachments = []domain.Attachment{}
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	if err := s.loadAttachments(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadAttachments(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	index := make(map[domain.MessageID]int, len(msgs))
	args := make([]any, 0, len(msgs))
	for i, m := range msgs {
		index[m.ID] = i
		args = append(args, m.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, id, url, file_name, mime_type, size FROM attachments
		 WHERE message_id IN (`+placeholders(len(args))+`) ORDER BY message_id, position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mid domain.MessageID
			a   domain.Attachment
		)
		if err := rows.Scan(&mid, &a.ID, &a.URL, &a.FileName, &a.MimeType, &a.Size); err != nil {
			return err
		}
		if i, ok := index[mid]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}
	return rows.Err()
}
