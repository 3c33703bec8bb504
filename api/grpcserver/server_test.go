package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"refkit/service"
)

type fakeInspector struct {
	stats service.Stats
	leaks []uint64
	audit service.Audit
	err   error
}

func (f *fakeInspector) Stats() service.Stats { return f.stats }
func (f *fakeInspector) Leaks() []uint64      { return f.leaks }
func (f *fakeInspector) Audit(ctx context.Context) (service.Audit, error) {
	if err := ctx.Err(); err != nil {
		return service.Audit{}, err
	}
	return f.audit, f.err
}

func dial(t *testing.T, insp Inspector) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(insp, zap.NewNop())
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStats(t *testing.T) {
	insp := &fakeInspector{stats: service.Stats{
		LiveBlocks: 3,
		Allocated:  10,
		Tracker:    service.TrackerStats{Alive: 10, Released: 7, LastSeq: 24},
		Workload:   service.WorkloadStats{Rounds: 2},
	}}
	c := NewInspectorClient(dial(t, insp))

	out, err := c.Stats(context.Background(), nil)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, float64(3), m["live_blocks"])
	assert.Equal(t, float64(24), m["journal_seq"])
	assert.Equal(t, float64(7), m["transitions"].(map[string]any)["released"])
	assert.Equal(t, float64(2), m["workload"].(map[string]any)["rounds"])
}

func TestLeaksLimit(t *testing.T) {
	c := NewInspectorClient(dial(t, &fakeInspector{leaks: []uint64{4, 8, 15}}))

	out, err := c.Leaks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"4", "8", "15"}, out.AsMap()["blocks"])

	in, err := structpb.NewStruct(map[string]any{"limit": 2})
	require.NoError(t, err)
	out, err = c.Leaks(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.AsMap()["count"])
	assert.Len(t, out.AsMap()["blocks"], 2)

	in, err = structpb.NewStruct(map[string]any{"limit": -1})
	require.NoError(t, err)
	_, err = c.Leaks(context.Background(), in)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestLeaksKeepLargeIDs(t *testing.T) {
	const big = uint64(1)<<53 + 1
	c := NewInspectorClient(dial(t, &fakeInspector{leaks: []uint64{big, ^uint64(0)}}))

	out, err := c.Leaks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"9007199254740993", "18446744073709551615"}, out.AsMap()["blocks"])
}

func TestAudit(t *testing.T) {
	insp := &fakeInspector{audit: service.Audit{
		LastSeq:    9,
		Blocks:     3,
		Leaks:      []uint64{2},
		Violations: []string{"seq 9: block 1 freed while ALIVE"},
	}}
	c := NewInspectorClient(dial(t, insp))

	out, err := c.Audit(context.Background(), nil)
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, false, m["clean"])
	assert.Equal(t, float64(9), m["last_seq"])
	assert.Equal(t, []any{"seq 9: block 1 freed while ALIVE"}, m["violations"])
	assert.Equal(t, []any{"2"}, m["leaks"])

	insp.err = errors.New("disk on fire")
	_, err = c.Audit(context.Background(), nil)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealth(t *testing.T) {
	conn := dial(t, &fakeInspector{})
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
