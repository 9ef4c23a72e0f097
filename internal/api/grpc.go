// Package api exposes the backtest pipeline over gRPC, next to the standard
// health service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sentiq/internal/domain"
	"sentiq/internal/engine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "sentiq.v1.Backtest"

const runMethod = "/" + ServiceName + "/Run"

// BacktestServer is the server API for the sentiq.v1.Backtest service.
// Requests and responses are google.protobuf.Struct values.
type BacktestServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sentiq/v1/backtest.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterBacktestServer registers srv on s.
func RegisterBacktestServer(s grpc.ServiceRegistrar, srv BacktestServer) {
	s.RegisterService(&backtestServiceDesc, srv)
}

// RunRequest is the decoded form of a Run request:
// {"symbol": "AAPL", "overrides": {"cost": 0.002}}.
type RunRequest struct {
	Symbol    string           `json:"symbol"`
	Overrides engine.Overrides `json:"overrides"`
}

// RunResponse is the decoded form of a Run response.
type RunResponse struct {
	RunID      string             `json:"run_id"`
	Symbol     string             `json:"symbol"`
	Classifier string             `json:"classifier"`
	Rows       int                `json:"rows"`
	Dropped    int                `json:"dropped"`
	Summary    domain.RiskSummary `json:"summary"`
	Signal     string             `json:"signal,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
}

type backtestService struct {
	svc *engine.Service
	log *slog.Logger
}

func (b *backtestService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RunRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	if req.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}

	res, err := b.svc.Backtest(ctx, req.Symbol, req.Overrides)
	if err != nil {
		code := codeFor(err)
		if code == codes.Internal {
			b.log.Error("backtest failed", "symbol", req.Symbol, "error", err)
		}
		return nil, status.Error(code, err.Error())
	}

	resp := RunResponse{
		RunID:      res.Run.ID,
		Symbol:     res.Run.Symbol,
		Classifier: res.Run.Classifier,
		Rows:       res.Run.Rows,
		Dropped:    res.Run.Dropped,
		Summary:    res.Run.Summary,
	}
	if res.Signal != nil {
		resp.Signal = string(res.Signal.Type)
		resp.Confidence = res.Signal.Confidence
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

func codeFor(err error) codes.Code {
	var ce *domain.ConfigError
	switch {
	case errors.As(err, &ce):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrNoBacktestableData):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Server hosts the Backtest and health services.
type Server struct {
	gs     *grpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewServer creates a gRPC server backed by svc.
func NewServer(svc *engine.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "grpc")
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	RegisterBacktestServer(gs, &backtestService{svc: svc, log: log})
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Server{gs: gs, health: hs, log: log}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listening", "addr", lis.Addr().String())
	return s.gs.Serve(lis)
}

// Stop marks the services as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.gs.GracefulStop()
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}

// Client calls the Backtest service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Run runs a backtest for symbol on the server.
func (c *Client) Run(ctx context.Context, symbol string, ov engine.Overrides, opts ...grpc.CallOption) (*RunResponse, error) {
	in, err := toStruct(RunRequest{Symbol: symbol, Overrides: ov})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runMethod, in, out, opts...); err != nil {
		return nil, err
	}
	var resp RunResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}
