package store

import (
	"context"
	"database/sql"
	"errors"
)

// UpsertMembership writes m unconditionally. Recency checks belong to the caller.
func (t *Tx) UpsertMembership(ctx context.Context, m *Membership) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO team_memberships (user_id, group_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, group_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		m.UserID, m.GroupID, m.Status, m.UpdatedAt)
	return err
}

// GetMembership returns the membership of userID in groupID, or nil.
func (t *Tx) GetMembership(ctx context.Context, userID, groupID string) (*Membership, error) {
	return getMembership(ctx, t.tx, userID, groupID)
}

// GetMembership returns the membership of userID in groupID, or nil.
func (db *DB) GetMembership(ctx context.Context, userID, groupID string) (*Membership, error) {
	return getMembership(ctx, db.DB, userID, groupID)
}

func getMembership(ctx context.Context, q querier, userID, groupID string) (*Membership, error) {
	var m Membership
	err := q.QueryRowContext(ctx, `
		SELECT user_id, group_id, status, updated_at
		FROM team_memberships WHERE user_id = ? AND group_id = ?`, userID, groupID).
		Scan(&m.UserID, &m.GroupID, &m.Status, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemberships returns the memberships of a group ordered by user id.
func (db *DB) ListMemberships(ctx context.Context, groupID string) ([]Membership, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, group_id, status, updated_at
		FROM team_memberships WHERE group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.GroupID, &m.Status, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
