package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const mutationColumns = `seq, kind, payload, status, attempts, next_attempt_at, last_error, created_at`

// Enqueue appends a mutation to the outbox and returns its sequence number.
// Sequence numbers come from an AUTOINCREMENT key and are never reused.
func (t *Tx) Enqueue(ctx context.Context, kind MutationKind, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	now := time.Now().UnixMilli()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox (kind, payload, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, 'queued', 0, 0, ?, ?)`,
		kind, string(data), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PeekOutbox returns up to limit queued mutations with seq > afterSeq, in
// sequence order, stopping before the first one still backing off at now.
// A waiting mutation holds back everything queued after it. It does not
// remove anything.
func (db *DB) PeekOutbox(ctx context.Context, now, afterSeq int64, limit int) ([]Mutation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+mutationColumns+`
		FROM outbox
		WHERE status = 'queued' AND seq > ? AND seq < COALESCE((
			SELECT MIN(seq) FROM outbox
			WHERE status = 'queued' AND seq > ? AND next_attempt_at > ?
		), 9223372036854775807)
		ORDER BY seq ASC
		LIMIT ?`, afterSeq, afterSeq, now, limit)
	if err != nil {
		return nil, err
	}
	return scanMutations(rows)
}

// CountQueued counts queued mutations with seq > afterSeq, due or not.
func (db *DB) CountQueued(ctx context.Context, afterSeq int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE status = 'queued' AND seq > ?`, afterSeq).Scan(&n)
	return n, err
}

// FailedMutations returns mutations that gave up, oldest first.
func (db *DB) FailedMutations(ctx context.Context, limit int) ([]Mutation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+mutationColumns+`
		FROM outbox WHERE status = 'failed' ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanMutations(rows)
}

// GetMutation returns the mutation with seq, or nil.
func (db *DB) GetMutation(ctx context.Context, seq int64) (*Mutation, error) {
	return getMutation(ctx, db.DB, seq)
}

// AckMutation removes an acknowledged mutation and, for message creates,
// marks the message Synced in the same transaction. Acking an unknown seq is
// a no-op and returns nil.
func (db *DB) AckMutation(ctx context.Context, seq int64) (*Mutation, error) {
	var acked *Mutation
	err := db.WithTx(ctx, func(tx *Tx) error {
		m, err := getMutation(ctx, tx.tx, seq)
		if err != nil || m == nil {
			return err
		}
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
			return fmt.Errorf("delete mutation %d: %w", seq, err)
		}
		if m.Kind == KindMessageCreate {
			var msg Message
			if err := json.Unmarshal(m.Payload, &msg); err != nil {
				return fmt.Errorf("decode mutation %d: %w", seq, err)
			}
			if err := tx.AdvanceMessage(ctx, msg.ID, SyncSynced); err != nil {
				return fmt.Errorf("mark message %q synced: %w", msg.ID, err)
			}
		}
		acked = m
		return nil
	})
	return acked, err
}

// RecordAttempt counts one more failed delivery of seq. next receives the new
// attempt count and returns when the mutation may be retried and whether it
// should give up instead. The updated mutation is returned; nil if seq is gone.
func (db *DB) RecordAttempt(ctx context.Context, seq int64, reason string, next func(attempts int) (int64, bool)) (*Mutation, error) {
	var out *Mutation
	err := db.WithTx(ctx, func(tx *Tx) error {
		m, err := getMutation(ctx, tx.tx, seq)
		if err != nil || m == nil {
			return err
		}
		m.Attempts++
		m.LastError = reason
		nextAt, giveUp := next(m.Attempts)
		m.NextAttemptAt = nextAt
		if giveUp {
			m.Status = MutationFailed
		}
		if _, err := tx.tx.ExecContext(ctx, `
			UPDATE outbox SET attempts = ?, next_attempt_at = ?, status = ?, last_error = ?, updated_at = ?
			WHERE seq = ?`,
			m.Attempts, m.NextAttemptAt, m.Status, m.LastError, time.Now().UnixMilli(), seq); err != nil {
			return fmt.Errorf("update mutation %d: %w", seq, err)
		}
		out = m
		return nil
	})
	return out, err
}

// FailMutation marks seq failed right away, raising attempts to at least attempts.
func (db *DB) FailMutation(ctx context.Context, seq int64, attempts int, reason string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE outbox SET status = 'failed', attempts = MAX(attempts, ?), last_error = ?, updated_at = ?
		WHERE seq = ?`, attempts, reason, time.Now().UnixMilli(), seq)
	return err
}

// RequeueFailed puts every failed mutation back in the queue with a fresh
// attempt budget and returns how many were requeued.
func (db *DB) RequeueFailed(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE outbox SET status = 'queued', attempts = 0, next_attempt_at = 0, updated_at = ?
		WHERE status = 'failed'`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OutboxStats counts outbox entries by status.
func (db *DB) OutboxStats(ctx context.Context) (OutboxStats, error) {
	var s OutboxStats
	err := db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM outbox`).Scan(&s.Queued, &s.Failed)
	return s, err
}

func getMutation(ctx context.Context, q querier, seq int64) (*Mutation, error) {
	var m Mutation
	var payload string
	err := q.QueryRowContext(ctx, `SELECT `+mutationColumns+` FROM outbox WHERE seq = ?`, seq).
		Scan(&m.Seq, &m.Kind, &payload, &m.Status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.Payload = json.RawMessage(payload)
	return &m, nil
}

func scanMutations(rows *sql.Rows) ([]Mutation, error) {
	defer func() { _ = rows.Close() }()

	var out []Mutation
	for rows.Next() {
		var m Mutation
		var payload string
		if err := rows.Scan(&m.Seq, &m.Kind, &payload, &m.Status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}
