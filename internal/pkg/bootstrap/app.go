// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/pkg/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// Component 是随服务一起启动和关停的后台组件（例如 Kafka 消费者）。
// Start 不应阻塞；Stop 应在 ctx 截止前尽量完成在途工作。
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// ReadinessCheck 用于 /readyz
type ReadinessCheck func(ctx context.Context) error

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 允许每个服务注册自己独特的 HTTP 路由
	Components       []Component
	Readiness        map[string]ReadinessCheck
	// OnShutdown 在组件与 HTTP 服务器停止之后按倒序执行（关闭 writer、连接池等）
	OnShutdown []func(ctx context.Context) error
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号。
func StartService(cfg *Config, info AppInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, cfg, info); err != nil {
		fatal("service terminated with error", err)
	}
}

// Run 启动 HTTP 服务器和所有组件，ctx 结束后执行关停流程
func Run(ctx context.Context, cfg *Config, info AppInfo) error {
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return errors.Wrap(err, "initialize tracer provider")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", readyzHandler(info.Readiness))
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}

	port := info.Port
	if port == 0 {
		port = cfg.ListenPort
	}
	server := &http.Server{
		Addr: ":" + strconv.Itoa(port),
		Handler: otelhttp.NewHandler(mux, info.ServiceName,
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" && r.URL.Path != "/metrics" && r.URL.Path != "/readyz"
			}),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	started := make([]Component, 0, len(info.Components))
	for _, c := range info.Components {
		if err := c.Start(ctx); err != nil {
			shutdown(cfg, info, server, tp, started)
			return errors.Wrap(err, "start component")
		}
		started = append(started, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("service", info.ServiceName).Int("port", port).Msg("✅ HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", server.Addr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("service", info.ServiceName).Msg("🛑 Shutting down service...")
		shutdown(cfg, info, server, tp, started)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
	return nil
}

// shutdown 按顺序执行清理：先停止组件（不再拉取新任务，等待在途任务），再关 HTTP，最后释放资源
func shutdown(cfg *Config, info AppInfo, server *http.Server, tp interface{ Shutdown(context.Context) error }, started []Component) {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(started) - 1; i >= 0; i-- {
		started[i].Stop(ctx)
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	for i := len(info.OnShutdown) - 1; i >= 0; i-- {
		if err := info.OnShutdown[i](ctx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown hook")
		}
	}

	// 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}
}

func readyzHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
	}
}

func fatal(msg string, err error) {
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}
