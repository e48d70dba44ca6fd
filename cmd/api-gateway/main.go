// cmd/api-gateway/main.go
package main

import (
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/httpclient"
	"orderflow/internal/service/order/interfaces"
)

const serviceName = "api-gateway"

// Gateway 不直接接触存储与队列，所有请求都翻译为 Intake RPC
func main() {
	cfg := bootstrap.Init(serviceName, bootstrap.RoleGateway)

	client := httpclient.NewClient(otel.Tracer(serviceName))
	intake := interfaces.NewIntakeClient(cfg.IntakeEndpoint, client)
	handler := interfaces.NewGatewayHandler(intake, cfg.CORSAllowedOrigins)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.ListenPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Readiness: map[string]bootstrap.ReadinessCheck{
			"intake": intake.Ping,
		},
	})
}
