// internal/pkg/mq/admin.go
package mq

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec 描述一个需要持久化声明的主题
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

// Admin 封装 franz-go 的管理客户端，用于声明主题和探活
type Admin struct {
	client *kgo.Client
	admin  *kadm.Client
}

// NewAdmin 创建管理客户端；kgo.NewClient 只校验参数，不会立即建立连接
func NewAdmin(brokers []string, clientID string) (*Admin, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka admin client")
	}
	return &Admin{client: client, admin: kadm.NewClient(client)}, nil
}

// Ping 通过拉取 broker 元数据确认队列可达
func (a *Admin) Ping(ctx context.Context) error {
	brokers, err := a.admin.ListBrokers(ctx)
	if err != nil {
		return errors.Wrap(err, "list kafka brokers")
	}
	if len(brokers) == 0 {
		return errors.New("kafka cluster reported no brokers")
	}
	return nil
}

// EnsureTopic 检查主题是否存在，不存在则创建。重复调用是安全的。
func (a *Admin) EnsureTopic(ctx context.Context, spec TopicSpec) error {
	topics, err := a.admin.ListTopics(ctx)
	if err != nil {
		return errors.Wrap(err, "list topics")
	}
	if detail, ok := topics[spec.Name]; ok && detail.Err == nil {
		log.Debug().Str("topic", spec.Name).Msg("Topic already exists")
		return nil
	}

	partitions, replicas := spec.Partitions, spec.ReplicationFactor
	if partitions <= 0 {
		partitions = 1
	}
	if replicas <= 0 {
		replicas = 1
	}
	minISR := "1"
	resp, err := a.admin.CreateTopic(ctx, partitions, replicas, map[string]*string{
		"min.insync.replicas": &minISR,
	}, spec.Name)
	if err != nil {
		return errors.Wrapf(err, "create topic %s", spec.Name)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return errors.Wrapf(resp.Err, "create topic %s", spec.Name)
	}

	log.Info().Str("topic", spec.Name).Int32("partitions", partitions).Msg("Topic created")
	return nil
}

// Close 释放底层连接
func (a *Admin) Close() {
	a.client.Close()
}
