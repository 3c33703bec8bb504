// Package grpcserver exposes the lifecycle tracker over gRPC as
// refkit.Inspector, next to the standard health service.
package grpcserver

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"refkit/service"
)

// Inspector is what the server reads from.
type Inspector interface {
	Stats() service.Stats
	Leaks() []uint64
	Audit(ctx context.Context) (service.Audit, error)
}

var _ Inspector = (*service.Service)(nil)

// Server adapts an Inspector to gRPC.
type Server struct {
	svc Inspector
	log *zap.Logger
}

func NewServer(svc Inspector, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log.Named("grpc")}
}

// NewGRPCServer builds a grpc.Server with the inspector and health
// services registered and request logging installed.
func NewGRPCServer(svc Inspector, log *zap.Logger) (*grpc.Server, *health.Server) {
	srv := NewServer(svc, log)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(srv.logUnary))
	RegisterInspectorServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug("rpc",
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(start)),
		zap.Stringer("code", status.Code(err)))
	return resp, err
}

// -------------------- Queries --------------------

func (s *Server) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st := s.svc.Stats()
	return toStruct(map[string]any{
		"live_blocks":  st.LiveBlocks,
		"allocated":    st.Allocated,
		"freed_blocks": st.FreedBlocks,
		"retired":      st.Retired,
		"reclaimed":    st.Reclaimed,
		"epoch":        st.Epoch,
		"transitions": map[string]any{
			"alive":    st.Tracker.Alive,
			"released": st.Tracker.Released,
			"freed":    st.Tracker.Freed,
		},
		"journal_seq": st.Tracker.LastSeq,
		"tracked":     st.Tracker.Tracked,
		"violations":  st.Tracker.Violations,
		"failures":    st.Tracker.Failures,
		"workload": map[string]any{
			"rounds":   st.Workload.Rounds,
			"upgrades": st.Workload.Upgrades,
			"misses":   st.Workload.Misses,
			"peeks":    st.Workload.Peeks,
			"torn":     st.Workload.Torn,
			"running":  st.Workload.Running,
		},
	})
}

// Leaks accepts an optional numeric "limit" field.
func (s *Server) Leaks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ids := s.svc.Leaks()
	total := len(ids)
	if v, ok := in.GetFields()["limit"]; ok {
		limit := int(v.GetNumberValue())
		if limit < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "limit must not be negative, got %d", limit)
		}
		if limit < len(ids) {
			ids = ids[:limit]
		}
	}
	return toStruct(map[string]any{
		"count":  total,
		"blocks": idList(ids),
	})
}

// Audit verifies the persisted journal. It can be slow on a long journal.
func (s *Server) Audit(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	a, err := s.svc.Audit(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		s.log.Warn("audit failed", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "audit: %v", err)
	}
	violations := make([]any, len(a.Violations))
	for i, v := range a.Violations {
		violations[i] = v
	}
	return toStruct(map[string]any{
		"clean":      a.Clean(),
		"last_seq":   a.LastSeq,
		"blocks":     a.Blocks,
		"alive":      a.Alive,
		"released":   a.Released,
		"freed":      a.Freed,
		"leaks":      idList(a.Leaks),
		"violations": violations,
	})
}

// -------------------- Converters --------------------

// idList renders block IDs as decimal strings; structpb numbers are
// float64 and would round IDs above 2^53.
func idList(ids []uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatUint(id, 10)
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return st, nil
}
