// Package client talks to a running daemon over its Unix domain socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/shiftsync/internal/api"
	"github.com/matheus3301/shiftsync/internal/status"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. The connection is lazy: errors
// surface on the first call.
func New(socketPath string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SyncData runs a sync cycle on the daemon and returns its result.
func (c *Client) SyncData(ctx context.Context) (status.Result, error) {
	var res status.Result
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodSyncData, &emptypb.Empty{}, out); err != nil {
		return res, err
	}
	err := api.FromStruct(out, &res)
	return res, err
}

// CheckOnlineStatus asks the daemon to probe the backend now.
func (c *Client) CheckOnlineStatus(ctx context.Context) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, api.MethodCheckOnlineStatus, &emptypb.Empty{}, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Status returns the daemon's current sync status.
func (c *Client) Status(ctx context.Context) (status.Snapshot, error) {
	var snap status.Snapshot
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodGetStatus, &emptypb.Empty{}, out); err != nil {
		return snap, err
	}
	err := api.FromStruct(out, &snap)
	return snap, err
}

// WatchStatus calls fn with the current status and then with every change
// until ctx is done or the daemon goes away.
func (c *Client) WatchStatus(ctx context.Context, fn func(status.Snapshot)) error {
	stream, err := c.conn.NewStream(ctx, &api.SyncServiceDesc.Streams[0], api.MethodWatchStatus)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var snap status.Snapshot
		if err := api.FromStruct(msg, &snap); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		fn(snap)
	}
}

// SendMessage writes a message locally and queues it for upload.
func (c *Client) SendMessage(ctx context.Context, roomID, senderID, body string) (*api.MessageView, error) {
	var m api.MessageView
	err := c.call(ctx, api.MethodSendMessage, api.SendMessageRequest{ChatRoomID: roomID, SenderID: senderID, Body: body}, &m)
	return &m, err
}

// SetMembership records a membership change and queues it for upload.
func (c *Client) SetMembership(ctx context.Context, userID, groupID, st string) error {
	return c.call(ctx, api.MethodSetMembership, api.SetMembershipRequest{UserID: userID, GroupID: groupID, Status: st}, nil)
}

// RemoveRoomMember removes a chat room member and queues the removal.
func (c *Client) RemoveRoomMember(ctx context.Context, roomID, userID string) error {
	in, err := api.ToStruct(api.RemoveRoomMemberRequest{ChatRoomID: roomID, UserID: userID})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, api.MethodRemoveRoomMember, in, new(emptypb.Empty))
}

// ListMessages returns a room's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, roomID string, before int64, limit int) ([]api.MessageView, error) {
	in, err := api.ToStruct(api.ListMessagesRequest{ChatRoomID: roomID, Before: before, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, api.MethodListMessages, in, out); err != nil {
		return nil, err
	}
	var msgs []api.MessageView
	err = api.FromList(out, &msgs)
	return msgs, err
}

// OutboxStats returns outbox and message state counts.
func (c *Client) OutboxStats(ctx context.Context) (api.OutboxView, error) {
	var v api.OutboxView
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.MethodOutboxStats, &emptypb.Empty{}, out); err != nil {
		return v, err
	}
	err := api.FromStruct(out, &v)
	return v, err
}

// FailedMutations lists mutations that gave up.
func (c *Client) FailedMutations(ctx context.Context) ([]api.MutationView, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, api.MethodFailedMutations, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var ms []api.MutationView
	err := api.FromList(out, &ms)
	return ms, err
}

// RetryFailed requeues every failed mutation and returns how many.
func (c *Client) RetryFailed(ctx context.Context) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.conn.Invoke(ctx, api.MethodRetryFailed, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return api.FromStruct(out, resp)
}
