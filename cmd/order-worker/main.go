// cmd/order-worker/main.go
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
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

const serviceName = "order-worker"

func main() {
	cfg := bootstrap.Init(serviceName, bootstrap.RoleWorker)
	brokers := cfg.QueueEndpoint

	// 启动阶段也响应退出信号
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// 1. 连接状态存储，有界重试后失败即退出，交给进程管理器重启
	var redisClient *redis.Client
	err := retry.Connect(ctx, cfg.ConnectRetry, "store", func(ctx context.Context) error {
		c, err := redis.NewClient(cfg.StoreEndpoint)
		if err != nil {
			return err
		}
		redisClient = c
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to store")
	}

	// 2. 连接工作队列并声明主题
	admin, err := mq.NewAdmin(brokers, serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka admin client")
	}
	err = retry.Connect(ctx, cfg.ConnectRetry, "queue", func(ctx context.Context) error {
		if err := admin.Ping(ctx); err != nil {
			return err
		}
		if err := admin.EnsureTopic(ctx, mq.TopicSpec{
			Name:              cfg.Queue.Topic,
			Partitions:        cfg.Queue.Partitions,
			ReplicationFactor: cfg.Queue.ReplicationFactor,
		}); err != nil {
			return err
		}
		return admin.EnsureTopic(ctx, mq.TopicSpec{
			Name:              cfg.Queue.DeadLetterTopic,
			Partitions:        1,
			ReplicationFactor: cfg.Queue.ReplicationFactor,
		})
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to queue")
	}
	stop()

	store, err := infrastructure.NewRedisOrderStore(redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize order store")
	}

	// 3. 业务处理
	processing := application.NewProcessingService(
		store,
		application.TimedWork{Duration: cfg.Worker.ProcessingDuration},
		otel.Tracer(serviceName),
	)

	dltWriter := mq.NewKafkaWriter(brokers, cfg.Queue.DeadLetterTopic)
	deadLetter := infrastructure.NewDeadLetterProducerAdapter(dltWriter)

	// 4. 每个槽位一个 reader，各自只持有一条未确认消息
	retryCfg := interfaces.RetryConfig{
		Initial: cfg.Worker.HandleRetryDelay,
		Max:     cfg.Worker.HandleRetryMaxDelay,
	}
	slots := make([]*interfaces.TaskConsumerAdapter, cfg.Worker.Slots)
	for i := range slots {
		reader := mq.NewKafkaReader(brokers, cfg.Queue.Topic, cfg.Queue.GroupID)
		slots[i] = interfaces.NewTaskConsumerAdapter(i, cfg.Queue.Topic, reader, processing, deadLetter, retryCfg)
	}
	consumers := interfaces.NewConsumerGroup(slots...)

	dltReader := mq.NewKafkaReader(brokers, cfg.Queue.DeadLetterTopic, cfg.Queue.GroupID+"-dlt")
	dltConsumer := interfaces.NewDltConsumerAdapter(dltReader, cfg.Queue.DeadLetterTopic)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.ListenPort,
		Components:  []bootstrap.Component{consumers, dltConsumer},
		Readiness: map[string]bootstrap.ReadinessCheck{
			"store": redisClient.Ping,
			"queue": admin.Ping,
		},
		OnShutdown: []func(context.Context) error{
			func(context.Context) error { return redisClient.Close() },
			func(context.Context) error { admin.Close(); return nil },
			func(context.Context) error { return dltWriter.Close() },
		},
	})
}
