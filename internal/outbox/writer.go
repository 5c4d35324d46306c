package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/bus"
	"github.com/matheus3301/shiftsync/internal/store"
)

// maxBodyLen caps a message body in bytes.
const maxBodyLen = 4096

// Writer applies local mutations. Each call writes the cached row and its
// outbox entry in one transaction, so a write that returned nil survives a
// crash even if it was never transmitted.
type Writer struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// NewWriter creates a writer over db.
func NewWriter(db *store.DB, b *bus.Bus, logger *zap.Logger) *Writer {
	return &Writer{
		db:     db,
		bus:    b,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// SendMessage stores a new message as Pending and queues it for upload.
func (w *Writer) SendMessage(ctx context.Context, roomID, senderID, body string) (*store.Message, error) {
	switch {
	case roomID == "":
		return nil, errors.New("validation: chat room id is required")
	case senderID == "":
		return nil, errors.New("validation: sender id is required")
	case strings.TrimSpace(body) == "":
		return nil, errors.New("validation: message body is empty")
	case len(body) > maxBodyLen:
		return nil, fmt.Errorf("validation: message body exceeds %d bytes", maxBodyLen)
	case !utf8.ValidString(body):
		return nil, errors.New("validation: message body is not valid UTF-8")
	}

	m := &store.Message{
		ID:         w.newID(),
		ChatRoomID: roomID,
		SenderID:   senderID,
		Body:       body,
		CreatedAt:  w.now().UnixMilli(),
		SyncState:  store.SyncLocal,
	}
	var seq int64
	err := w.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.InsertMessage(ctx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		var err error
		if seq, err = tx.Enqueue(ctx, store.KindMessageCreate, m); err != nil {
			return fmt.Errorf("enqueue message: %w", err)
		}
		if err := tx.AdvanceMessage(ctx, m.ID, store.SyncPending); err != nil {
			return fmt.Errorf("mark pending: %w", err)
		}
		if err := tx.TouchRoom(ctx, roomID, m.CreatedAt); err != nil {
			return fmt.Errorf("touch room: %w", err)
		}
		return tx.AddRoomMember(ctx, roomID, senderID)
	})
	if err != nil {
		return nil, err
	}
	m.SyncState = store.SyncPending

	w.logger.Debug("message queued", zap.String("id", m.ID), zap.Int64("seq", seq))
	w.bus.Emit(bus.MessageUpserted, *m)
	w.bus.Emit(bus.OutboxEnqueued, store.Mutation{Seq: seq, Kind: store.KindMessageCreate, Status: store.MutationQueued})
	return m, nil
}

// SetMembership records a local membership change stamped with the current
// time and queues it for upload.
func (w *Writer) SetMembership(ctx context.Context, userID, groupID string, st store.MembershipStatus) (*store.Membership, error) {
	switch {
	case userID == "" || groupID == "":
		return nil, errors.New("validation: user id and group id are required")
	case !st.Valid():
		return nil, fmt.Errorf("validation: unknown membership status %q", st)
	}

	m := &store.Membership{UserID: userID, GroupID: groupID, Status: st, UpdatedAt: w.now().UnixMilli()}
	var seq int64
	err := w.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertMembership(ctx, m); err != nil {
			return fmt.Errorf("upsert membership: %w", err)
		}
		var err error
		seq, err = tx.Enqueue(ctx, store.KindMembershipUpdate, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	w.bus.Emit(bus.OutboxEnqueued, store.Mutation{Seq: seq, Kind: store.KindMembershipUpdate, Status: store.MutationQueued})
	return m, nil
}

// RemoveRoomMember removes a member locally, leaves a tombstone that beats
// older remote state, and queues the removal.
func (w *Writer) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return errors.New("validation: chat room id and user id are required")
	}

	r := &store.RoomRemoval{ChatRoomID: roomID, UserID: userID, RemovedAt: w.now().UnixMilli()}
	var seq int64
	err := w.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.RemoveRoomMember(ctx, roomID, userID, r.RemovedAt); err != nil {
			return err
		}
		var err error
		seq, err = tx.Enqueue(ctx, store.KindRoomMemberRemove, r)
		return err
	})
	if err != nil {
		return err
	}

	w.bus.Emit(bus.OutboxEnqueued, store.Mutation{Seq: seq, Kind: store.KindRoomMemberRemove, Status: store.MutationQueued})
	return nil
}
