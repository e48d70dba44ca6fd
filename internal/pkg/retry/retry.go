// internal/pkg/retry/retry.go
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrExhausted 表示重试次数用尽
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy 是有界的重试策略。Multiplier <= 1 时为固定间隔，否则为指数退避。
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" env-default:"10"`
	Delay       time.Duration `yaml:"delay" env-default:"3s"`
	Multiplier  float64       `yaml:"multiplier" env-default:"1"`
	MaxDelay    time.Duration `yaml:"max_delay" env-default:"30s"`
}

// DefaultPolicy 连接启动时默认重试 10 次，每次间隔 3 秒
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Delay: 3 * time.Second, Multiplier: 1, MaxDelay: 30 * time.Second}
}

func (p Policy) backOff() backoff.BackOff {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Second
	}
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(delay)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = delay
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	// 次数由 WithMaxRetries 控制，不按总时长放弃
	eb.MaxElapsedTime = 0
	eb.Reset()
	return eb
}

// Connect 按策略执行 fn，直到成功、次数用尽或 ctx 结束。
// 用尽时返回包装了最后一次错误的 ErrExhausted。
func Connect(ctx context.Context, p Policy, name string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		lastErr = fn(ctx)
		return lastErr
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("target", name).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("next_in", wait).
			Msg("Connection failed, retrying")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "connect %s", name)
		}
		return errors.Wrapf(ErrExhausted, "connect %s after %d attempts: %v", name, attempt, lastErr)
	}
	log.Info().Str("target", name).Int("attempt", attempt).Msg("Connected")
	return nil
}

// Forever 以指数退避无限重试 fn，直到成功或 ctx 结束。
// 用于消息处理中的瞬时故障：消息不 ack，原地重试。
func Forever(ctx context.Context, initial, max time.Duration, fn func(ctx context.Context) error, onRetry func(err error, wait time.Duration)) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = max
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.RetryNotify(func() error {
		return fn(ctx)
	}, backoff.WithContext(eb, ctx), onRetry)
}

// Permanent 标记一个不应再重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}
