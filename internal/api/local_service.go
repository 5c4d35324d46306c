package api

import (
	"context"
	"errors"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/shiftsync/internal/outbox"
	"github.com/matheus3301/shiftsync/internal/store"
)

// MessageView is a message as front ends see it.
type MessageView struct {
	store.Message
	SyncState string `json:"syncState"`
}

// CreatedTime returns the message creation time.
func (v MessageView) CreatedTime() time.Time {
	return time.UnixMilli(v.CreatedAt)
}

func newMessageView(m store.Message) MessageView {
	return MessageView{Message: m, SyncState: m.SyncState.String()}
}

// OutboxView summarizes the outbox and local message states.
type OutboxView struct {
	Queued   int            `json:"queued"`
	Failed   int            `json:"failed"`
	Messages map[string]int `json:"messages"`
}

// MutationView is an outbox entry as front ends see it.
type MutationView struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// SendMessageRequest is the body of LocalService.SendMessage.
type SendMessageRequest struct {
	ChatRoomID string `json:"chatRoomId"`
	SenderID   string `json:"senderId"`
	Body       string `json:"body"`
}

// SetMembershipRequest is the body of LocalService.SetMembership.
type SetMembershipRequest struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	Status  string `json:"status"`
}

// RemoveRoomMemberRequest is the body of LocalService.RemoveRoomMember.
type RemoveRoomMemberRequest struct {
	ChatRoomID string `json:"chatRoomId"`
	UserID     string `json:"userId"`
}

// ListMessagesRequest is the body of LocalService.ListMessages. Before is a
// created-at cursor in unix milliseconds; zero means from the newest.
type ListMessagesRequest struct {
	ChatRoomID string `json:"chatRoomId"`
	Before     int64  `json:"before"`
	Limit      int    `json:"limit"`
}

// LocalService serves local reads and writes. Writes land in the store and
// the outbox at once and never wait for the network.
type LocalService struct {
	db     *store.DB
	writer *outbox.Writer
	queue  *outbox.Queue
}

var _ LocalServer = (*LocalService)(nil)

// NewLocalService creates a new local service backed by the store.
func NewLocalService(db *store.DB, w *outbox.Writer, q *outbox.Queue) *LocalService {
	return &LocalService{db: db, writer: w, queue: q}
}

func (s *LocalService) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendMessageRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	m, err := s.writer.SendMessage(ctx, req.ChatRoomID, req.SenderID, req.Body)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	out, err := ToStruct(newMessageView(*m))
	return out, toStatus("encode message", err)
}

func (s *LocalService) SetMembership(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SetMembershipRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	m, err := s.writer.SetMembership(ctx, req.UserID, req.GroupID, store.MembershipStatus(req.Status))
	if err != nil {
		return nil, toStatus("set membership", err)
	}
	out, err := ToStruct(m)
	return out, toStatus("encode membership", err)
}

func (s *LocalService) RemoveRoomMember(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	var req RemoveRoomMemberRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.writer.RemoveRoomMember(ctx, req.ChatRoomID, req.UserID); err != nil {
		return nil, toStatus("remove room member", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *LocalService) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.ListValue, error) {
	var req ListMessagesRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.ChatRoomID == "" {
		return nil, toStatus("list messages", errors.New("validation: chat room id is required"))
	}
	msgs, err := s.db.ListMessages(ctx, req.ChatRoomID, req.Before, req.Limit)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = newMessageView(m)
	}
	out, err := ToList(views)
	return out, toStatus("encode messages", err)
}

func (s *LocalService) OutboxStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, toStatus("outbox stats", err)
	}
	counts, err := s.db.CountMessages(ctx)
	if err != nil {
		return nil, toStatus("count messages", err)
	}
	view := OutboxView{Queued: stats.Queued, Failed: stats.Failed, Messages: make(map[string]int, len(counts))}
	for st, n := range counts {
		view.Messages[st.String()] = n
	}
	out, err := ToStruct(view)
	return out, toStatus("encode stats", err)
}

func (s *LocalService) FailedMutations(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	failed, err := s.queue.Failed(ctx, 100)
	if err != nil {
		return nil, toStatus("failed mutations", err)
	}
	views := make([]MutationView, len(failed))
	for i, m := range failed {
		views[i] = MutationView{
			Seq:       m.Seq,
			Kind:      string(m.Kind),
			Status:    string(m.Status),
			Attempts:  m.Attempts,
			LastError: m.LastError,
			CreatedAt: m.CreatedAt,
		}
	}
	out, err := ToList(views)
	return out, toStatus("encode mutations", err)
}

func (s *LocalService) RetryFailed(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.queue.RetryFailed(ctx)
	if err != nil {
		return nil, toStatus("retry failed", err)
	}
	return wrapperspb.Int64(int64(n)), nil
}
