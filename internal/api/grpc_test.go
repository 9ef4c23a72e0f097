package api

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"sentiq/internal/domain"
	"sentiq/internal/engine"
	"sentiq/internal/store"
	"sentiq/internal/strategy"
)

func testRows(n int) []domain.FeatureRow {
	rng := rand.New(rand.NewPCG(9, 10))
	day := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]domain.FeatureRow, n)
	for i := range rows {
		ret := rng.NormFloat64() * 0.01
		rows[i] = domain.FeatureRow{
			Time:       day.AddDate(0, 0, i),
			Return:     ret,
			Volatility: domain.Some(0.01),
			Sentiment:  -0.05,
		}
		if i > 0 && ret > 0 {
			rows[i-1].Target = 1
		}
	}
	return rows
}

func dial(t *testing.T) *grpc.ClientConn {
	t.Helper()
	ps := store.NewParquetStore(t.TempDir())
	if err := ps.WriteFeatures(context.Background(), "MSFT", testRows(70)); err != nil {
		t.Fatalf("WriteFeatures: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base, err := engine.New(engine.Options{
		Classifier:      "linear",
		TrainRatio:      0.5,
		Backtest:        strategy.DefaultBacktestConfig(),
		SignalThreshold: strategy.DefaultSignalThreshold,
		Logger:          logger,
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(engine.NewService(base, ps), logger)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRun(t *testing.T) {
	c := NewClient(dial(t))
	cost := 0.0
	resp, err := c.Run(context.Background(), "msft", engine.Overrides{Cost: &cost})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.RunID == "" || resp.Symbol != "MSFT" || resp.Classifier != "linear" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Rows != 35 || resp.Dropped != 35 {
		t.Errorf("rows=%d dropped=%d, want 35 and 35", resp.Rows, resp.Dropped)
	}
	if len(resp.Summary.Regimes) != 3 {
		t.Errorf("regimes = %+v", resp.Summary.Regimes)
	}
}

func TestRunErrorCodes(t *testing.T) {
	c := NewClient(dial(t))
	bad := 2.0
	tests := []struct {
		name   string
		symbol string
		ov     engine.Overrides
		code   codes.Code
	}{
		{"missing symbol", "", engine.Overrides{}, codes.InvalidArgument},
		{"unknown symbol", "NOPE", engine.Overrides{}, codes.NotFound},
		{"bad override", "MSFT", engine.Overrides{TrainRatio: &bad}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.symbol, tt.ov)
			if got := status.Code(err); got != tt.code {
				t.Errorf("code = %v, want %v (err %v)", got, tt.code, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	hc := healthpb.NewHealthClient(dial(t))
	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
