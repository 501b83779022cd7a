// Package server runs the gRPC admin listener: standard health checks and reflection.
package server

import (
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ChatServiceName is the health service name reported for the chat engine.
const ChatServiceName = "nexchat.Chat"

type AdminServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewAdminServer(log *slog.Logger) *AdminServer {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			sdkgrpc.UnaryLoggingInterceptor(log),
		))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(ChatServiceName, healthpb.HealthCheckResponse_SERVING)
	return &AdminServer{log: log, server: s, health: h}
}

func (a *AdminServer) Serve(listener net.Listener) error {
	for serviceName := range a.server.GetServiceInfo() {
		a.log.Debug("gRPC exposed services", "name", serviceName)
	}
	return a.server.Serve(listener)
}

// SetServing flips the chat engine status, load balancers stop routing on NOT_SERVING.
func (a *AdminServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus(ChatServiceName, status)
}

// GracefulStop reports every service as NOT_SERVING, then drains the pending RPCs.
func (a *AdminServer) GracefulStop() {
	a.health.Shutdown()
	a.server.GracefulStop()
}
