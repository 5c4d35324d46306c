package api

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/shiftsync/internal/status"
)

// Engine is the sync surface SyncService serves.
type Engine interface {
	SyncData(ctx context.Context) status.Result
	CheckOnlineStatus(ctx context.Context) bool
	Status() status.Snapshot
	Subscribe(bufSize int) (<-chan status.Snapshot, func())
}

// SyncService implements SyncService over the sync engine.
type SyncService struct {
	engine Engine
	logger *zap.Logger
}

var _ SyncServer = (*SyncService)(nil)

// NewSyncService creates a new sync service.
func NewSyncService(engine Engine, logger *zap.Logger) *SyncService {
	return &SyncService{engine: engine, logger: logger}
}

func (s *SyncService) SyncData(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res := s.engine.SyncData(ctx)
	out, err := ToStruct(res)
	return out, toStatus("encode result", err)
}

func (s *SyncService) CheckOnlineStatus(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.engine.CheckOnlineStatus(ctx)), nil
}

func (s *SyncService) GetStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := ToStruct(s.engine.Status())
	return out, toStatus("encode status", err)
}

// WatchStatus sends the current status, then every change until the client
// goes away.
func (s *SyncService) WatchStatus(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, unsub := s.engine.Subscribe(64)
	defer unsub()

	if err := sendSnapshot(stream, s.engine.Status()); err != nil {
		return err
	}
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sendSnapshot(stream, snap); err != nil {
				s.logger.Debug("status watcher gone", zap.Error(err))
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func sendSnapshot(stream grpc.ServerStream, snap status.Snapshot) error {
	out, err := ToStruct(snap)
	if err != nil {
		return grpcstatus.Errorf(codes.Internal, "encode status: %v", err)
	}
	return stream.SendMsg(out)
}
