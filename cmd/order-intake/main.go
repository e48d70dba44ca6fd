// cmd/order-intake/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/redis"
	"orderflow/internal/pkg/retry"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

const serviceName = "order-intake"

// main 函数是应用的"组装根" (Composition Root)
func main() {
	cfg := bootstrap.Init(serviceName, bootstrap.RoleIntake)

	// 1. 状态存储
	// 存储短暂不可用时按 connect_retry 有界重试，启动阶段也响应退出信号
	connectCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	var redisClient *redis.Client
	err := retry.Connect(connectCtx, cfg.ConnectRetry, "store", func(ctx context.Context) error {
		c, err := redis.NewClient(cfg.StoreEndpoint)
		if err != nil {
			return err
		}
		redisClient = c
		return nil
	})
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to store")
	}
	store, err := infrastructure.NewRedisOrderStore(redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize order store")
	}

	// 2. 工作队列：声明持久化主题。失败不阻止启动，发布失败的订单由对账任务补发
	admin, err := mq.NewAdmin(cfg.QueueEndpoint, serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka admin client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := admin.EnsureTopic(ctx, mq.TopicSpec{
		Name:              cfg.Queue.Topic,
		Partitions:        cfg.Queue.Partitions,
		ReplicationFactor: cfg.Queue.ReplicationFactor,
	}); err != nil {
		log.Warn().Err(err).Str("topic", cfg.Queue.Topic).Msg("could not declare order topic, publishing may fail")
	}
	cancel()

	writer := mq.NewKafkaWriter(cfg.QueueEndpoint, cfg.Queue.Topic)
	publisher := infrastructure.NewTaskProducerAdapter(writer, cfg.Queue.Topic)

	// 3. 应用服务与 RPC 接口
	intake := application.NewIntakeService(store, publisher, otel.Tracer(serviceName))
	handler := interfaces.NewIntakeRPCHandler(intake)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.ListenPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Readiness: map[string]bootstrap.ReadinessCheck{
			"store": redisClient.Ping,
			"queue": admin.Ping,
		},
		OnShutdown: []func(context.Context) error{
			func(context.Context) error { return redisClient.Close() },
			func(context.Context) error { admin.Close(); return nil },
			func(context.Context) error { return writer.Close() },
		},
	})
}
