package interfaces

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/application"
)

// Sweeper 由 application.Reconciler 实现
type Sweeper interface {
	Sweep(ctx context.Context) (application.SweepResult, error)
}

// Locker 保证多个对账进程中只有一个在扫描，由 zklock.Lock 实现
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// ReconcileJob 按 cron 表达式定期触发对账扫描。
// SkipIfStillRunning 保证本进程内同一时刻只有一次扫描；locker 非空时跨进程互斥。
type ReconcileJob struct {
	sweeper  Sweeper
	schedule string
	locker   Locker
	cron     *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewReconcileJob(sweeper Sweeper, schedule string, locker Locker) *ReconcileJob {
	return &ReconcileJob{
		sweeper:  sweeper,
		schedule: schedule,
		locker:   locker,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (j *ReconcileJob) Start(ctx context.Context) error {
	j.mu.Lock()
	j.ctx, j.cancel = context.WithCancel(context.WithoutCancel(ctx))
	j.mu.Unlock()

	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return errors.Wrapf(err, "invalid reconciler schedule %q", j.schedule)
	}
	j.cron.Start()
	logger.Ctx(ctx).Info().Str("schedule", j.schedule).Msg("✅ Reconcile job started")
	return nil
}

// RunOnce 执行一次扫描，错误只记录日志，下一次调度会重试
func (j *ReconcileJob) RunOnce() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if j.locker != nil {
		ok, err := j.locker.TryLock()
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("Failed to acquire reconcile lock, skipping sweep")
			return
		}
		if !ok {
			logger.Ctx(ctx).Debug().Msg("Another reconciler holds the lock, skipping sweep")
			return
		}
		defer func() {
			if err := j.locker.Unlock(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to release reconcile lock")
			}
		}()
	}

	res, err := j.sweeper.Sweep(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Ctx(ctx).Error().Err(err).
			Int("scanned", res.Scanned).
			Int("republished", res.Republished).
			Int("failed", res.Failed).
			Msg("Reconcile sweep finished with errors")
		return
	}
	logger.Ctx(ctx).Info().
		Int("scanned", res.Scanned).
		Int("republished", res.Republished).
		Int("deferred", res.Deferred).
		Msg("Reconcile sweep finished")
}

// Stop 停止调度并等待正在运行的扫描；ctx 到期时中断扫描
func (j *ReconcileJob) Stop(ctx context.Context) {
	stopped := j.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		j.mu.Lock()
		if j.cancel != nil {
			j.cancel()
		}
		j.mu.Unlock()
		<-stopped.Done()
	}
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()
	logger.Ctx(ctx).Info().Msg("✅ Reconcile job stopped")
}
