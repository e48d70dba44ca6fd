// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"flag"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/retry"
)

// Endpoints 是一组 host:port 地址。
// YAML 中既可以写成列表，也可以写成逗号分隔的字符串；环境变量总是逗号分隔。
type Endpoints []string

func (e *Endpoints) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return e.SetValue(node.Value)
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*e = splitEndpoints(strings.Join(list, ","))
		return nil
	default:
		return errors.Errorf("line %d: endpoints must be a string or a list", node.Line)
	}
}

// SetValue 实现 cleanenv.Setter
func (e *Endpoints) SetValue(s string) error {
	*e = splitEndpoints(s)
	return nil
}

func (e Endpoints) String() string {
	return strings.Join(e, ",")
}

func splitEndpoints(s string) Endpoints {
	var out Endpoints
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type (
	// Config 是所有进程共享的配置结构，各进程只使用自己关心的部分
	Config struct {
		// 订单记录持久化的位置 (Redis)
		StoreEndpoint Endpoints `yaml:"store_endpoint" env:"STORE_ENDPOINT" env-default:"localhost:6379"`
		// 处理任务交换的位置 (Kafka brokers)
		QueueEndpoint Endpoints `yaml:"queue_endpoint" env:"QUEUE_ENDPOINT" env-default:"localhost:9092"`
		// 本进程 HTTP 监听端口
		ListenPort int `yaml:"listen_port" env:"LISTEN_PORT" env-default:"50051"`
		// Gateway 访问 Intake 的基础 URL
		IntakeEndpoint string `yaml:"intake_endpoint" env:"INTAKE_ENDPOINT" env-default:"http://localhost:50051"`
		// Gateway 允许的跨域来源
		CORSAllowedOrigins Endpoints `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
		// 关停时等待在途任务的上限
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"40s"`
		// 启动时连接存储与队列的有界重试
		ConnectRetry retry.Policy `yaml:"connect_retry"`

		Queue      Queue         `yaml:"queue"`
		Worker     Worker        `yaml:"worker"`
		Reconciler Reconciler    `yaml:"reconciler"`
		Tracing    Tracing       `yaml:"tracing"`
		Log        logger.Config `yaml:"log"`
	}

	Queue struct {
		Topic             string `yaml:"topic" env:"QUEUE_TOPIC" env-default:"orders"`
		GroupID           string `yaml:"group_id" env:"QUEUE_GROUP_ID" env-default:"order-workers"`
		DeadLetterTopic   string `yaml:"dead_letter_topic" env-default:"orders.dlt"`
		Partitions        int32  `yaml:"partitions" env-default:"3"`
		ReplicationFactor int16  `yaml:"replication_factor" env-default:"1"`
	}

	Worker struct {
		// 并发消费槽位数，每个槽位同一时刻只持有一条未确认的任务
		Slots              int           `yaml:"slots" env:"WORKER_SLOTS" env-default:"1"`
		ProcessingDuration time.Duration `yaml:"processing_duration" env:"PROCESSING_DURATION" env-default:"30s"`
		// 处理任务时存储不可用的原地重试间隔
		HandleRetryDelay    time.Duration `yaml:"handle_retry_delay" env-default:"500ms"`
		HandleRetryMaxDelay time.Duration `yaml:"handle_retry_max_delay" env-default:"15s"`
	}

	Reconciler struct {
		// cron 表达式，支持 "@every 1m" 这样的写法
		Schedule   string        `yaml:"schedule" env:"RECONCILER_SCHEDULE" env-default:"@every 1m"`
		StaleAfter time.Duration `yaml:"stale_after" env:"RECONCILER_STALE_AFTER" env-default:"2m"`
		// ZooKeeper 地址，非空时多个对账进程通过分布式锁互斥
		LockEndpoint       Endpoints     `yaml:"lock_endpoint" env:"RECONCILER_LOCK_ENDPOINT"`
		LockSessionTimeout time.Duration `yaml:"lock_session_timeout" env-default:"10s"`
	}

	Tracing struct {
		JaegerEndpoint string `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
	}
)

// Role 标识进程类型，决定哪些配置项是必填的
type Role int

const (
	RoleIntake Role = iota + 1
	RoleWorker
	RoleGateway
	RoleReconciler
)

// Validate 检查加载后的配置
func (c *Config) Validate(role Role) error {
	needStore := role == RoleIntake || role == RoleWorker || role == RoleReconciler
	needQueue := needStore

	if needStore && len(c.StoreEndpoint) == 0 {
		return errors.New("config: store_endpoint must not be empty")
	}
	if needQueue && len(c.QueueEndpoint) == 0 {
		return errors.New("config: queue_endpoint must not be empty")
	}
	if needQueue && strings.TrimSpace(c.Queue.Topic) == "" {
		return errors.New("config: queue.topic must not be empty")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.Errorf("config: listen_port %d out of range", c.ListenPort)
	}
	if role == RoleGateway && strings.TrimSpace(c.IntakeEndpoint) == "" {
		return errors.New("config: intake_endpoint must not be empty")
	}
	if role == RoleWorker {
		if c.Worker.Slots <= 0 {
			return errors.Errorf("config: worker.slots must be positive, got %d", c.Worker.Slots)
		}
		if c.Worker.ProcessingDuration < 0 {
			return errors.New("config: worker.processing_duration must not be negative")
		}
	}
	if needStore {
		if c.ConnectRetry.MaxAttempts <= 0 {
			return errors.New("config: connect_retry.max_attempts must be positive")
		}
		if c.ConnectRetry.Delay < 0 {
			return errors.New("config: connect_retry.delay must not be negative")
		}
	}
	if role == RoleReconciler && c.Reconciler.StaleAfter < 0 {
		return errors.New("config: reconciler.stale_after must not be negative")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("config: shutdown_timeout must not be negative")
	}
	return nil
}

// LoadConfig 依次应用 YAML 文件与环境变量，未设置的字段取 env-default。
// path 为空时只使用默认值和环境变量。
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	return &cfg, nil
}

var current atomic.Pointer[Config]

var configPath = flag.String("config", "", "path to the YAML config file (or CONFIG_PATH)")

// Init 解析命令行、加载配置并初始化日志，失败时直接退出
func Init(serviceName string, role Role) *Config {
	if !flag.Parsed() {
		flag.Parse()
	}
	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		fatal("failed to load config", err)
	}
	if err := cfg.Validate(role); err != nil {
		fatal("invalid config", err)
	}
	logger.Init(serviceName, cfg.Log)
	current.Store(cfg)
	return cfg
}

// GetCurrentConfig 返回 Init 加载的配置；未初始化时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	cfg, err := LoadConfig("")
	if err != nil {
		return &Config{}
	}
	return cfg
}
