package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	watermarkPrefix = "watermark:"
	deviceIDKey     = "device_id"
)

// SetState writes a key/value into sync_state.
func (t *Tx) SetState(ctx context.Context, key, value string) error {
	return setState(ctx, t.tx, key, value)
}

// SetState writes a key/value into sync_state.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	return setState(ctx, db.DB, key, value)
}

// GetState reads a sync_state value. Missing keys yield "".
func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	return getState(ctx, db.DB, key)
}

func setState(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

func getState(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Watermark returns the pull watermark of an entity kind, 0 if never pulled.
func (db *DB) Watermark(ctx context.Context, kind string) (int64, error) {
	return watermark(ctx, db.DB, kind)
}

// AdvanceWatermark stores ms as the watermark of kind unless the stored one
// is already later.
func (t *Tx) AdvanceWatermark(ctx context.Context, kind string, ms int64) error {
	cur, err := watermark(ctx, t.tx, kind)
	if err != nil {
		return err
	}
	if ms <= cur {
		return nil
	}
	return setState(ctx, t.tx, watermarkPrefix+kind, strconv.FormatInt(ms, 10))
}

func watermark(ctx context.Context, q querier, kind string) (int64, error) {
	v, err := getState(ctx, q, watermarkPrefix+kind)
	if err != nil || v == "" {
		return 0, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("watermark %s: %w", kind, err)
	}
	return ms, nil
}

// EnsureDeviceID returns the persisted device id, storing newID() first if
// none exists yet.
func (db *DB) EnsureDeviceID(ctx context.Context, newID func() string) (string, error) {
	var id string
	err := db.WithTx(ctx, func(tx *Tx) error {
		cur, err := getState(ctx, tx.tx, deviceIDKey)
		if err != nil {
			return err
		}
		if cur != "" {
			id = cur
			return nil
		}
		id = newID()
		return setState(ctx, tx.tx, deviceIDKey, id)
	})
	return id, err
}
