package infrastructure

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// OrdersServiceName is the health-checked service name
const OrdersServiceName = "marketplace.orders.v1.OrderService"

// GRPCHealth exposes grpc.health.v1 for the orders service
type GRPCHealth struct {
	server *health.Server
}

// NewGRPCHealth registers the health service on server, reporting NOT_SERVING
// until MarkServing is called
func NewGRPCHealth(server *grpc.Server) *GRPCHealth {
	h := health.NewServer()
	h.SetServingStatus(OrdersServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, h)
	return &GRPCHealth{server: h}
}

// MarkServing flips the orders service and the overall server to SERVING
func (g *GRPCHealth) MarkServing() {
	g.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.server.SetServingStatus(OrdersServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown reports NOT_SERVING for every service ahead of a graceful stop
func (g *GRPCHealth) Shutdown() {
	g.server.Shutdown()
}
