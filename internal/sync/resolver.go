package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/matheus3301/shiftsync/internal/remote"
	"github.com/matheus3301/shiftsync/internal/store"
)

// Resolver merges pulled remote records into the local store.
//
//   - Messages are immutable: dedupe by id, insert unknown ones as Synced.
//   - Memberships are last-writer-wins by UpdatedAt; ties go to the remote.
//   - Room member sets only grow, except that a local removal newer than the
//     remote room state keeps the member out.
//
// Records that cannot be decoded are logged and skipped so one bad row does
// not pin the watermark forever.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Merge applies one pulled page inside tx and returns how many local rows changed.
func (r *Resolver) Merge(ctx context.Context, tx *store.Tx, kind remote.EntityKind, records []json.RawMessage) (int, error) {
	applied := 0
	for _, raw := range records {
		var changed bool
		var err error
		switch kind {
		case remote.EntityMessages:
			changed, err = r.mergeMessage(ctx, tx, raw)
		case remote.EntityMemberships:
			changed, err = r.mergeMembership(ctx, tx, raw)
		case remote.EntityChatRooms:
			changed, err = r.mergeRoom(ctx, tx, raw)
		default:
			return applied, fmt.Errorf("unknown entity kind %q", kind)
		}
		if err != nil {
			return applied, err
		}
		if changed {
			applied++
		}
	}
	return applied, nil
}

func (r *Resolver) mergeMessage(ctx context.Context, tx *store.Tx, raw json.RawMessage) (bool, error) {
	var m store.Message
	if err := json.Unmarshal(raw, &m); err != nil || m.ID == "" || m.ChatRoomID == "" {
		r.skip(remote.EntityMessages, raw, err)
		return false, nil
	}
	m.SyncState = store.SyncSynced

	inserted, err := tx.InsertMessage(ctx, &m)
	if err != nil {
		return false, fmt.Errorf("insert message %q: %w", m.ID, err)
	}
	if !inserted {
		// Already known. Only a row still marked Local moves; the remote
		// evidently has it.
		existing, err := tx.GetMessage(ctx, m.ID)
		if err != nil {
			return false, err
		}
		if existing == nil || existing.SyncState != store.SyncLocal {
			return false, nil
		}
		return true, tx.AdvanceMessage(ctx, m.ID, store.SyncSynced)
	}
	if err := tx.TouchRoom(ctx, m.ChatRoomID, m.CreatedAt); err != nil {
		return false, fmt.Errorf("touch room %q: %w", m.ChatRoomID, err)
	}
	return true, nil
}

func (r *Resolver) mergeMembership(ctx context.Context, tx *store.Tx, raw json.RawMessage) (bool, error) {
	var m store.Membership
	if err := json.Unmarshal(raw, &m); err != nil || m.UserID == "" || m.GroupID == "" || !m.Status.Valid() {
		r.skip(remote.EntityMemberships, raw, err)
		return false, nil
	}

	local, err := tx.GetMembership(ctx, m.UserID, m.GroupID)
	if err != nil {
		return false, err
	}
	if local != nil {
		if m.UpdatedAt < local.UpdatedAt {
			return false, nil
		}
		if m.UpdatedAt == local.UpdatedAt && m.Status == local.Status {
			return false, nil
		}
	}
	if err := tx.UpsertMembership(ctx, &m); err != nil {
		return false, fmt.Errorf("upsert membership %s/%s: %w", m.UserID, m.GroupID, err)
	}
	return true, nil
}

func (r *Resolver) mergeRoom(ctx context.Context, tx *store.Tx, raw json.RawMessage) (bool, error) {
	var in store.ChatRoom
	if err := json.Unmarshal(raw, &in); err != nil || in.ID == "" {
		r.skip(remote.EntityChatRooms, raw, err)
		return false, nil
	}

	local, err := tx.GetRoom(ctx, in.ID)
	if err != nil {
		return false, err
	}
	removals, err := tx.RoomRemovals(ctx, in.ID)
	if err != nil {
		return false, err
	}

	merged := store.ChatRoom{ID: in.ID, LastMessageAt: in.LastMessageAt, UpdatedAt: in.UpdatedAt}
	members := make(map[string]struct{})
	if local != nil {
		merged.LastMessageAt = max(merged.LastMessageAt, local.LastMessageAt)
		merged.UpdatedAt = max(merged.UpdatedAt, local.UpdatedAt)
		for _, id := range local.MemberIDs {
			members[id] = struct{}{}
		}
	}
	for _, id := range in.MemberIDs {
		if removedAt, ok := removals[id]; ok && removedAt > in.UpdatedAt {
			continue
		}
		members[id] = struct{}{}
	}
	// Tombstones the remote state has caught up with are no longer needed.
	for id, removedAt := range removals {
		if removedAt <= in.UpdatedAt {
			if err := tx.DropRemoval(ctx, in.ID, id); err != nil {
				return false, err
			}
		}
	}

	merged.MemberIDs = make([]string, 0, len(members))
	for id := range members {
		merged.MemberIDs = append(merged.MemberIDs, id)
	}
	slices.Sort(merged.MemberIDs)

	if local != nil &&
		local.LastMessageAt == merged.LastMessageAt &&
		local.UpdatedAt == merged.UpdatedAt &&
		slices.Equal(local.MemberIDs, merged.MemberIDs) {
		return false, nil
	}
	if err := tx.SaveRoom(ctx, &merged); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) skip(kind remote.EntityKind, raw json.RawMessage, err error) {
	r.logger.Warn("skipping malformed record",
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(raw)),
		zap.Error(err))
}
