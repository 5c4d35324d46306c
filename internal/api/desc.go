// Package api exposes the daemon over gRPC. The services are registered by
// hand and carry well-known protobuf types, with JSON-shaped Structs for
// domain records.
package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SyncServiceName  = "shiftsync.v1.SyncService"
	LocalServiceName = "shiftsync.v1.LocalService"
)

// Full method names, as used by clients.
const (
	MethodSyncData          = "/" + SyncServiceName + "/SyncData"
	MethodCheckOnlineStatus = "/" + SyncServiceName + "/CheckOnlineStatus"
	MethodGetStatus         = "/" + SyncServiceName + "/GetStatus"
	MethodWatchStatus       = "/" + SyncServiceName + "/WatchStatus"

	MethodSendMessage      = "/" + LocalServiceName + "/SendMessage"
	MethodSetMembership    = "/" + LocalServiceName + "/SetMembership"
	MethodRemoveRoomMember = "/" + LocalServiceName + "/RemoveRoomMember"
	MethodListMessages     = "/" + LocalServiceName + "/ListMessages"
	MethodOutboxStats      = "/" + LocalServiceName + "/OutboxStats"
	MethodFailedMutations  = "/" + LocalServiceName + "/FailedMutations"
	MethodRetryFailed      = "/" + LocalServiceName + "/RetryFailed"
)

// SyncServer is the server API for SyncService.
type SyncServer interface {
	SyncData(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CheckOnlineStatus(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchStatus(*emptypb.Empty, grpc.ServerStream) error
}

// LocalServer is the server API for LocalService.
type LocalServer interface {
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetMembership(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveRoomMember(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	OutboxStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	FailedMutations(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	RetryFailed(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
}

// SyncServiceDesc describes SyncService for grpc.Server.RegisterService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSyncData, newEmpty, SyncServer.SyncData),
		unary(MethodCheckOnlineStatus, newEmpty, SyncServer.CheckOnlineStatus),
		unary(MethodGetStatus, newEmpty, SyncServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchStatus",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(SyncServer).WatchStatus(in, stream)
			},
		},
	},
	Metadata: "shiftsync/v1/sync.proto",
}

// LocalServiceDesc describes LocalService for grpc.Server.RegisterService.
var LocalServiceDesc = grpc.ServiceDesc{
	ServiceName: LocalServiceName,
	HandlerType: (*LocalServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSendMessage, newStruct, LocalServer.SendMessage),
		unary(MethodSetMembership, newStruct, LocalServer.SetMembership),
		unary(MethodRemoveRoomMember, newStruct, LocalServer.RemoveRoomMember),
		unary(MethodListMessages, newStruct, LocalServer.ListMessages),
		unary(MethodOutboxStats, newEmpty, LocalServer.OutboxStats),
		unary(MethodFailedMutations, newEmpty, LocalServer.FailedMutations),
		unary(MethodRetryFailed, newEmpty, LocalServer.RetryFailed),
	},
	Metadata: "shiftsync/v1/local.proto",
}

// Register adds both services to s.
func Register(s *grpc.Server, syncSvc SyncServer, localSvc LocalServer) {
	s.RegisterService(&SyncServiceDesc, syncSvc)
	s.RegisterService(&LocalServiceDesc, localSvc)
}

func newEmpty() *emptypb.Empty   { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// unary builds the method descriptor for a unary call on server type S.
func unary[S, Req, Resp any](fullMethod string, newReq func() Req, call func(S, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[strings.LastIndexByte(fullMethod, '/')+1:],
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
