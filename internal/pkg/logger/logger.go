// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"orderflow/internal/pkg/tracing"
)

// Config 控制日志级别与输出位置
type Config struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	// File 非空时日志写入该文件并按大小滚动
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"7"`
}

// Init 配置全局 zerolog logger，并把它设为 context 中没有 logger 时的默认值
func Init(serviceName string, cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = zerolog.New(writer(cfg)).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

func writer(cfg Config) io.Writer {
	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.File == "" {
		return out
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return zerolog.MultiLevelWriter(out, file)
}

// Ctx 返回 ctx 中的 logger；存在活动 Span 时附带 trace_id
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base(ctx)
	if id := tracing.TraceID(ctx); id != "" {
		withTrace := l.With().Str("trace_id", id).Logger()
		return &withTrace
	}
	return l
}

// WithOrder 把 order_id 挂到 ctx 的 logger 上，后续 Ctx(ctx) 都会带上它
func WithOrder(ctx context.Context, orderID string) context.Context {
	l := base(ctx).With().Str("order_id", orderID).Logger()
	return l.WithContext(ctx)
}

func base(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled && zerolog.DefaultContextLogger == nil {
		return &log.Logger
	}
	return l
}
