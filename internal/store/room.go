package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TouchRoom creates the room if needed and moves last_message_at forward.
func (t *Tx) TouchRoom(ctx context.Context, roomID string, lastMessageAt int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, last_message_at, updated_at)
		VALUES (?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(chat_rooms.last_message_at, excluded.last_message_at)`,
		roomID, lastMessageAt)
	return err
}

// AddRoomMember adds userID to the room's member set. The room must exist.
func (t *Tx) AddRoomMember(ctx context.Context, roomID, userID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO chat_room_members (chat_room_id, user_id) VALUES (?, ?)
		ON CONFLICT(chat_room_id, user_id) DO NOTHING`, roomID, userID)
	return err
}

// RemoveRoomMember drops userID from the room and records a removal tombstone
// so a later union merge with remote state does not bring the member back.
func (t *Tx) RemoveRoomMember(ctx context.Context, roomID, userID string, removedAt int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM chat_room_members WHERE chat_room_id = ? AND user_id = ?`, roomID, userID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO chat_room_removals (chat_room_id, user_id, removed_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_room_id, user_id) DO UPDATE SET
			removed_at = MAX(chat_room_removals.removed_at, excluded.removed_at)`,
		roomID, userID, removedAt); err != nil {
		return fmt.Errorf("record removal: %w", err)
	}
	return nil
}

// RoomRemovals returns the removal tombstones of a room keyed by user id.
func (t *Tx) RoomRemovals(ctx context.Context, roomID string) (map[string]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT user_id, removed_at FROM chat_room_removals WHERE chat_room_id = ?`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	removals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var at int64
		if err := rows.Scan(&userID, &at); err != nil {
			return nil, err
		}
		removals[userID] = at
	}
	return removals, rows.Err()
}

// DropRemoval deletes a tombstone once remote state has caught up with it.
func (t *Tx) DropRemoval(ctx context.Context, roomID, userID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM chat_room_removals WHERE chat_room_id = ? AND user_id = ?`, roomID, userID)
	return err
}

// SaveRoom writes room metadata and replaces its member set.
func (t *Tx) SaveRoom(ctx context.Context, r *ChatRoom) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (id, last_message_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		r.ID, r.LastMessageAt, r.UpdatedAt); err != nil {
		return fmt.Errorf("upsert room %q: %w", r.ID, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM chat_room_members WHERE chat_room_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear members %q: %w", r.ID, err)
	}
	for _, userID := range r.MemberIDs {
		if err := t.AddRoomMember(ctx, r.ID, userID); err != nil {
			return fmt.Errorf("add member %q: %w", userID, err)
		}
	}
	return nil
}

// GetRoom returns a room with its members, or nil if it does not exist.
func (t *Tx) GetRoom(ctx context.Context, id string) (*ChatRoom, error) {
	return getRoom(ctx, t.tx, id)
}

// GetRoom returns a room with its members, or nil if it does not exist.
func (db *DB) GetRoom(ctx context.Context, id string) (*ChatRoom, error) {
	return getRoom(ctx, db.DB, id)
}

func getRoom(ctx context.Context, q querier, id string) (*ChatRoom, error) {
	r := ChatRoom{ID: id}
	err := q.QueryRowContext(ctx, `SELECT last_message_at, updated_at FROM chat_rooms WHERE id = ?`, id).
		Scan(&r.LastMessageAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM chat_room_members WHERE chat_room_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	r.MemberIDs = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		r.MemberIDs = append(r.MemberIDs, userID)
	}
	return &r, rows.Err()
}

// ListRooms returns room ids ordered by most recent message.
func (db *DB) ListRooms(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM chat_rooms ORDER BY last_message_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
