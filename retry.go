package lokacall

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// RetrySettings is the immutable configuration of the retrying decorator's
// backoff schedule and overall deadline, per spec.md §3. All durations
// must be non-negative and multipliers at least 1; Validate enforces the
// initial<=max invariants for both delay and timeout.
type RetrySettings struct {
	InitialRetryDelay    time.Duration
	MaxRetryDelay        time.Duration
	RetryDelayMultiplier float64
	InitialRPCTimeout    time.Duration
	MaxRPCTimeout        time.Duration
	RPCTimeoutMultiplier float64
	TotalTimeout         time.Duration
}

// Validate reports whether the settings satisfy spec.md §3's invariants.
func (s RetrySettings) Validate() error {
	if s.InitialRetryDelay < 0 || s.MaxRetryDelay < 0 || s.InitialRPCTimeout < 0 || s.MaxRPCTimeout < 0 || s.TotalTimeout < 0 {
		return fmt.Errorf("lokacall: retry settings durations must be non-negative")
	}
	if s.InitialRetryDelay > s.MaxRetryDelay {
		return fmt.Errorf("lokacall: initial retry delay exceeds max retry delay")
	}
	if s.InitialRPCTimeout > s.MaxRPCTimeout {
		return fmt.Errorf("lokacall: initial RPC timeout exceeds max RPC timeout")
	}
	if s.RetryDelayMultiplier < 1 || s.RPCTimeoutMultiplier < 1 {
		return fmt.Errorf("lokacall: retry multipliers must be >= 1")
	}
	return nil
}

// DeadlineSleepDuration is the sentinel sleep used when a DEADLINE_EXCEEDED
// failure is retried: backoff is skipped entirely in favor of an
// immediate (zero-duration) re-issue, per spec.md §4.3.
const DeadlineSleepDuration time.Duration = 0

type retryingCallable[Req, Resp any] struct {
	inner     Callable[Req, Resp]
	settings  RetrySettings
	retryable map[Code]bool
	sched     Scheduler
	clk       Clock
	logger    *logrus.Logger
}

func newRetryingCallable[Req, Resp any](inner Callable[Req, Resp], settings RetrySettings, retryable map[Code]bool, sched Scheduler, clk Clock, logger *logrus.Logger) Callable[Req, Resp] {
	if sched == nil {
		sched = SystemScheduler{}
	}
	if clk == nil {
		clk = SystemClock{}
	}
	if retryable == nil {
		retryable = map[Code]bool{}
	}
	return &retryingCallable[Req, Resp]{
		inner:     inner,
		settings:  settings,
		retryable: retryable,
		sched:     sched,
		clk:       clk,
		logger:    logger,
	}
}

// newBackoff builds the delay-growth engine for one retry loop. Using
// cenkalti/backoff's ExponentialBackOff with RandomizationFactor=0 keeps
// the sequence deterministic — min(delay*multiplier, max) exactly — which
// matches spec.md §4.3's formula and the scheduler-capture contract tests
// rely on (spec.md §8).
func newBackoff(s RetrySettings) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.InitialRetryDelay
	bo.MaxInterval = s.MaxRetryDelay
	bo.Multiplier = s.RetryDelayMultiplier
	bo.RandomizationFactor = 0
	return bo
}

func (r *retryingCallable[Req, Resp]) FutureCall(ctx context.Context, req Req, cctx *CallContext) *Future[Resp] {
	out := NewFuture[Resp]()
	go r.run(ctx, req, cctx, out)
	return out
}

func (r *retryingCallable[Req, Resp]) run(ctx context.Context, req Req, cctx *CallContext, out *Future[Resp]) {
	t0 := r.clk.Now()
	totalDeadline := t0.Add(r.settings.TotalTimeout)

	perAttemptTimeout := r.settings.InitialRPCTimeout
	bo := newBackoff(r.settings)

	r.attempt(ctx, req, cctx, out, totalDeadline, perAttemptTimeout, bo)
}

func (r *retryingCallable[Req, Resp]) attempt(ctx context.Context, req Req, cctx *CallContext, out *Future[Resp], totalDeadline time.Time, perAttemptTimeout time.Duration, bo *backoff.ExponentialBackOff) {
	now := r.clk.Now()
	attemptDeadline := now.Add(perAttemptTimeout)
	if attemptDeadline.After(totalDeadline) {
		attemptDeadline = totalDeadline
	}

	attemptCtx := cctx.WithDeadline(attemptDeadline)
	r.logAttempt(cctx, perAttemptTimeout)

	inner := r.inner.FutureCall(ctx, req, attemptCtx)

	go func() {
		resp, err := inner.Wait(ctx)
		if err == nil {
			out.SetValue(resp)
			return
		}
		r.onFailure(ctx, req, cctx, out, err, totalDeadline, perAttemptTimeout, bo)
	}()
}

func (r *retryingCallable[Req, Resp]) onFailure(ctx context.Context, req Req, cctx *CallContext, out *Future[Resp], err error, totalDeadline time.Time, perAttemptTimeout time.Duration, bo *backoff.ExponentialBackOff) {
	code := Classify(err)

	if !r.retryable[code] && code != DeadlineExceeded {
		out.SetException(NewApiException(code, err))
		return
	}

	delay := bo.NextBackOff()
	if delay == backoff.Stop {
		delay = r.settings.MaxRetryDelay
	}

	sleep := delay
	if code == DeadlineExceeded {
		sleep = DeadlineSleepDuration
	}

	now := r.clk.Now()
	if !now.Add(sleep).Before(totalDeadline) {
		out.SetException(NewApiException(code, err))
		return
	}

	nextTimeout := growCapped(perAttemptTimeout, r.settings.RPCTimeoutMultiplier, r.settings.MaxRPCTimeout)

	r.sched.Schedule(sleep, func() {
		r.attempt(ctx, req, cctx, out, totalDeadline, nextTimeout, bo)
	})
}

func (r *retryingCallable[Req, Resp]) logAttempt(cctx *CallContext, timeout time.Duration) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"correlation_id":      cctx.CorrelationID(),
		"per_attempt_timeout": timeout,
	}).Debug("lokacall: issuing attempt")
}

func growCapped(cur time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(cur) * multiplier)
	if next > max {
		next = max
	}
	return next
}
