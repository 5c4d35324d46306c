package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const messageColumns = `id, chat_room_id, sender_id, body, created_at, sync_state`

// InsertMessage stores m unless a message with the same id exists.
// It reports whether a new row was written.
func (t *Tx) InsertMessage(ctx context.Context, m *Message) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ChatRoomID, m.SenderID, m.Body, m.CreatedAt, m.SyncState)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AdvanceMessage moves a message forward to state. A message already at or
// past state is left untouched, so the call is safe to repeat.
func (t *Tx) AdvanceMessage(ctx context.Context, id string, state SyncState) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE messages SET sync_state = ? WHERE id = ? AND sync_state < ?`,
		state, id, state)
	return err
}

// GetMessage returns a message by id, or nil if it does not exist.
func (t *Tx) GetMessage(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, t.tx, id)
}

// GetMessage returns a message by id, or nil if it does not exist.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, db.DB, id)
}

func getMessage(ctx context.Context, q querier, id string) (*Message, error) {
	var m Message
	err := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ChatRoomID, &m.SenderID, &m.Body, &m.CreatedAt, &m.SyncState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages for a room using keyset pagination by created_at.
func (db *DB) ListMessages(ctx context.Context, roomID string, before int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_room_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, roomID, before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatRoomID, &m.SenderID, &m.Body, &m.CreatedAt, &m.SyncState); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns how many messages are in each sync state.
func (db *DB) CountMessages(ctx context.Context) (map[SyncState]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM messages GROUP BY sync_state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[SyncState]int)
	for rows.Next() {
		var state SyncState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// PurgeRoom deletes every cached message of a room. It is the only path
// that destroys messages locally.
func (db *DB) PurgeRoom(ctx context.Context, roomID string) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE chat_room_id = ?`, roomID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
