package store

import (
	"encoding/json"
	"fmt"
)

// SyncState tracks how far a message has travelled towards the remote.
// The ordinal order is the only allowed direction of travel.
type SyncState int

const (
	SyncLocal SyncState = iota
	SyncPending
	SyncSynced
)

func (s SyncState) String() string {
	switch s {
	case SyncLocal:
		return "local"
	case SyncPending:
		return "pending"
	case SyncSynced:
		return "synced"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// Message is a chat message. Messages are immutable once created; only
// SyncState changes.
type Message struct {
	ID         string    `json:"id"`
	ChatRoomID string    `json:"chatRoomId"`
	SenderID   string    `json:"senderId"`
	Body       string    `json:"body"`
	CreatedAt  int64     `json:"createdAt"`
	SyncState  SyncState `json:"-"`
}

// ChatRoom is the cached metadata of a chat room.
type ChatRoom struct {
	ID            string   `json:"id"`
	MemberIDs     []string `json:"memberIds"`
	LastMessageAt int64    `json:"lastMessageAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// RoomRemoval is a local tombstone left by removing a member from a room.
type RoomRemoval struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
	RemovedAt  int64  `json:"removedAt"`
}

// MembershipStatus is the state of a user inside a team group.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s MembershipStatus) Valid() bool {
	return s == MembershipActive || s == MembershipInactive
}

// Membership is a team/group membership, last-writer-wins by UpdatedAt.
type Membership struct {
	UserID    string           `json:"userId"`
	GroupID   string           `json:"groupId"`
	Status    MembershipStatus `json:"status"`
	UpdatedAt int64            `json:"updatedAt"`
}

// MutationKind names what a pending mutation carries.
type MutationKind string

const (
	KindMessageCreate    MutationKind = "message_create"
	KindMembershipUpdate MutationKind = "membership_update"
	KindRoomMemberRemove MutationKind = "room_member_remove"
)

// MutationStatus is the outbox state of a mutation.
type MutationStatus string

const (
	MutationQueued MutationStatus = "queued"
	MutationFailed MutationStatus = "failed"
)

// Mutation is an outbox entry: a local write not yet acknowledged by the remote.
type Mutation struct {
	Seq           int64
	Kind          MutationKind
	Payload       json.RawMessage
	Status        MutationStatus
	Attempts      int
	NextAttemptAt int64
	LastError     string
	CreatedAt     int64
}

// OutboxStats counts outbox entries by status.
type OutboxStats struct {
	Queued int
	Failed int
}
