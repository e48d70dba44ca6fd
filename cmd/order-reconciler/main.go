// cmd/order-reconciler/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/redis"
	"orderflow/internal/pkg/retry"
	"orderflow/internal/pkg/zklock"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

const serviceName = "order-reconciler"

// 定期扫描停留在 RECEIVED 的订单并补发处理任务
func main() {
	cfg := bootstrap.Init(serviceName, bootstrap.RoleReconciler)

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

	writer := mq.NewKafkaWriter(cfg.QueueEndpoint, cfg.Queue.Topic)
	publisher := infrastructure.NewTaskProducerAdapter(writer, cfg.Queue.Topic)

	reconciler := application.NewReconciler(store, publisher, cfg.Reconciler.StaleAfter, otel.Tracer(serviceName))
	shutdownHooks := []func(context.Context) error{
		func(context.Context) error { return redisClient.Close() },
		func(context.Context) error { return writer.Close() },
	}

	// 部署多个对账进程时用 ZooKeeper 锁保证同一时刻只有一个在扫描
	var locker interfaces.Locker
	if len(cfg.Reconciler.LockEndpoint) > 0 {
		zkConn, err := zklock.Connect(cfg.Reconciler.LockEndpoint, cfg.Reconciler.LockSessionTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		lock, err := zklock.New(zkConn, serviceName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize reconcile lock")
		}
		locker = lock
		shutdownHooks = append(shutdownHooks, func(context.Context) error {
			zkConn.Close()
			return nil
		})
	}

	job := interfaces.NewReconcileJob(reconciler, cfg.Reconciler.Schedule, locker)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.ListenPort,
		Components:  []bootstrap.Component{job},
		Readiness: map[string]bootstrap.ReadinessCheck{
			"store": redisClient.Ping,
		},
		OnShutdown: shutdownHooks,
	})
}
