package lokacall

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Callable is a deferred unary RPC: given a request and a CallContext, it
// returns a Future of the response. Every decorator (retrying, bundling)
// implements Callable over an inner Callable, so stacking decorators
// yields a new Callable of the same shape. Callable values are immutable
// once built.
type Callable[Req, Resp any] interface {
	FutureCall(ctx context.Context, req Req, cctx *CallContext) *Future[Resp]
}

// PrimitiveFunc adapts a plain function into the leaf Callable of every
// stack: the one that actually issues the call against a transport. The
// transport itself is out of scope for this module (spec.md §1); callers
// supply it here.
type PrimitiveFunc[Req, Resp any] func(ctx context.Context, req Req, cctx *CallContext) (Resp, error)

type primitiveCallable[Req, Resp any] struct {
	fn PrimitiveFunc[Req, Resp]
}

func (p *primitiveCallable[Req, Resp]) FutureCall(ctx context.Context, req Req, cctx *CallContext) *Future[Resp] {
	f := NewFuture[Resp]()
	go func() {
		resp, err := p.fn(ctx, req, cctx)
		if err != nil {
			f.SetException(err)
			return
		}
		f.SetValue(resp)
	}()
	return f
}

// UnaryApiCallable is the builder-style composition root described in
// spec.md §6. Create it from a primitive, then layer Bind / RetryableOn /
// Retrying / Bundling in any combination; each step returns a new,
// independent value.
type UnaryApiCallable[Req, Resp any] struct {
	inner        Callable[Req, Resp]
	baseCtx      *CallContext
	retryableSet map[Code]bool
	logger       *logrus.Logger
}

// Create builds a base UnaryApiCallable directly over a primitive
// function — the leaf of every stack.
func Create[Req, Resp any](primitive PrimitiveFunc[Req, Resp]) *UnaryApiCallable[Req, Resp] {
	return &UnaryApiCallable[Req, Resp]{
		inner:   &primitiveCallable[Req, Resp]{fn: primitive},
		baseCtx: NewCallContext(),
	}
}

func (u *UnaryApiCallable[Req, Resp]) clone() *UnaryApiCallable[Req, Resp] {
	cp := *u
	return &cp
}

// Bind returns a callable pre-bound to channel: every underlying primitive
// invocation made through it observes channel in its CallContext, whether
// reached directly, after a retry, after a page fetch, or after a
// bundling flush.
func (u *UnaryApiCallable[Req, Resp]) Bind(channel any) *UnaryApiCallable[Req, Resp] {
	cp := u.clone()
	cp.baseCtx = u.baseCtx.WithChannel(channel)
	return cp
}

// WithLogger attaches a logrus logger used for leveled debug logging of
// retry attempts and bundle flushes. A nil logger (the default) disables
// this ambient logging entirely; it is never a required collaborator.
func (u *UnaryApiCallable[Req, Resp]) WithLogger(logger *logrus.Logger) *UnaryApiCallable[Req, Resp] {
	cp := u.clone()
	cp.logger = logger
	return cp
}

// RetryableOn declares which codes are eligible for the retrying
// decorator. It has no effect unless Retrying is also applied.
func (u *UnaryApiCallable[Req, Resp]) RetryableOn(codes ...Code) *UnaryApiCallable[Req, Resp] {
	cp := u.clone()
	set := make(map[Code]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	cp.retryableSet = set
	return cp
}

// Retrying wraps the callable with retry logic per RetrySettings, using
// sched/clk as the deferral and time source (inject clocktest fakes for
// deterministic tests). Retrying panics if settings violates one of
// spec.md §3's invariants — an invalid RetrySettings is a programming
// error in the caller, not a runtime condition to propagate through the
// call chain.
func (u *UnaryApiCallable[Req, Resp]) Retrying(settings RetrySettings, sched Scheduler, clk Clock) *UnaryApiCallable[Req, Resp] {
	if err := settings.Validate(); err != nil {
		panic(err)
	}
	cp := u.clone()
	cp.inner = newRetryingCallable(u.inner, settings, u.retryableSet, sched, clk, u.logger)
	return cp
}

// Bundling wraps the callable with request bundling per desc, caching the
// bundler in factory.
func (u *UnaryApiCallable[Req, Resp]) Bundling(desc BundlingDescriptor[Req, Resp], factory *BundlerFactory[Req, Resp]) *UnaryApiCallable[Req, Resp] {
	cp := u.clone()
	cp.inner = factory.bundlingCallable(u.inner, desc, u.logger)
	return cp
}

// FutureCall issues req asynchronously, returning its Future immediately.
func (u *UnaryApiCallable[Req, Resp]) FutureCall(ctx context.Context, req Req) *Future[Resp] {
	cctx := u.baseCtx.clone()
	cctx.correlation = uuid.New()
	return u.inner.FutureCall(ctx, req, cctx)
}

// Call issues req and blocks until it completes, returning the response or
// an error. With Retrying applied, RPC failures surface as *ApiException;
// without it, the error is returned exactly as the inner callable reported
// it, not wrapped in an *ApiException.
func (u *UnaryApiCallable[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return u.FutureCall(ctx, req).Wait(ctx)
}
