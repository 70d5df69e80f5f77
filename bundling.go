package lokacall

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BundlingSettings is the immutable configuration of the bundling
// decorator, per spec.md §3.
type BundlingSettings struct {
	ElementCountThreshold      int
	DelayThreshold             time.Duration
	BlockingCallCountThreshold int
	IsEnabled                  bool
}

// BundlingDescriptor is the stateless strategy a bundling decorator
// consults to partition, merge, and split requests. Implementations hold
// no state of their own and must be safe to share across bundles.
type BundlingDescriptor[Req, Resp any] interface {
	// PartitionKey returns the key under which req may share a bundle
	// with other requests. Requests with equal keys may share a bundle;
	// distinct keys never do.
	PartitionKey(req Req) string
	// Merge combines same-partition requests, in submission order, into
	// one bundle request.
	Merge(reqs []Req) Req
	// Split maps resp back onto issuers in submission order; exactly one
	// SetValue must be called per issuer.
	Split(resp Resp, issuers []*RequestIssuer[Req, Resp])
	// SplitError propagates a bundle failure to every issuer.
	SplitError(err error, issuers []*RequestIssuer[Req, Resp])
	// CountElements returns how many elements req contributes toward
	// ElementCountThreshold.
	CountElements(req Req) int
	// CountBytes returns how many bytes req contributes; bundling itself
	// does not threshold on bytes in this core, but descriptors may use
	// it for their own Merge sizing decisions.
	CountBytes(req Req) int
}

// RequestIssuer is the per-entry handle a submitted request gets inside a
// bundle: the original request plus a one-shot sink (its Future) that the
// flush eventually completes. Exactly one of SetValue/SetException fires.
type RequestIssuer[Req, Resp any] struct {
	Request Req
	future  *Future[Resp]
}

// SetValue completes this issuer's caller-visible future successfully.
func (i *RequestIssuer[Req, Resp]) SetValue(resp Resp) { i.future.SetValue(resp) }

// SetException completes this issuer's caller-visible future with a failure.
func (i *RequestIssuer[Req, Resp]) SetException(err error) { i.future.SetException(err) }

// bundle is the mutable per-partition accumulator described in spec.md
// §3. All mutation happens under mu.
type bundle[Req, Resp any] struct {
	mu       sync.Mutex
	key      string
	id       uuid.UUID
	created  time.Time
	issuers  []*RequestIssuer[Req, Resp]
	elements int
	bytes    int
	cancel   CancelFunc
	flushed  bool
	// cctx is the first issuer's CallContext; the merged call is issued
	// with it so a bound channel reaches the inner callable.
	cctx *CallContext
}

// BundlerFactory owns the partition map for one BundlingDescriptor and the
// lifecycle of its bundles, per spec.md §4.5. It caches bundlers keyed by
// partition key and is safe for concurrent use; Close flushes every open
// bundle and forbids further submissions.
type BundlerFactory[Req, Resp any] struct {
	mu       sync.Mutex
	bundles  map[string]*bundle[Req, Resp]
	closed   bool
	sched    Scheduler
	clk      Clock
	settings BundlingSettings
	sem      *semaphore.Weighted
}

// NewBundlerFactory returns a factory governed by settings, deferring
// scheduled flushes via sched and reading time via clk (inject clocktest
// fakes for deterministic tests).
func NewBundlerFactory[Req, Resp any](settings BundlingSettings, sched Scheduler, clk Clock) *BundlerFactory[Req, Resp] {
	if sched == nil {
		sched = SystemScheduler{}
	}
	if clk == nil {
		clk = SystemClock{}
	}
	f := &BundlerFactory[Req, Resp]{
		bundles:  make(map[string]*bundle[Req, Resp]),
		sched:    sched,
		clk:      clk,
		settings: settings,
	}
	if settings.BlockingCallCountThreshold > 0 {
		f.sem = semaphore.NewWeighted(int64(settings.BlockingCallCountThreshold))
	}
	return f
}

func (f *BundlerFactory[Req, Resp]) bundlingCallable(inner Callable[Req, Resp], desc BundlingDescriptor[Req, Resp], logger *logrus.Logger) Callable[Req, Resp] {
	return &bundlingCallable[Req, Resp]{factory: f, inner: inner, desc: desc, logger: logger}
}

type bundlingCallable[Req, Resp any] struct {
	factory *BundlerFactory[Req, Resp]
	inner   Callable[Req, Resp]
	desc    BundlingDescriptor[Req, Resp]
	logger  *logrus.Logger
}

func (b *bundlingCallable[Req, Resp]) FutureCall(ctx context.Context, req Req, cctx *CallContext) *Future[Resp] {
	f := b.factory
	if !f.settings.IsEnabled {
		return b.inner.FutureCall(ctx, req, cctx)
	}

	out := NewFuture[Resp]()
	issuer := &RequestIssuer[Req, Resp]{Request: req, future: out}

	key := b.desc.PartitionKey(req)
	elems := b.desc.CountElements(req)
	byts := b.desc.CountBytes(req)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		out.SetException(NewValidationException("bundler factory is closed"))
		return out
	}

	// bd.mu is taken while f.mu is still held, so a bundle that has been
	// flushed but not yet detached from the map is replaced, never joined.
	bd, existed := f.bundles[key]
	if existed {
		bd.mu.Lock()
		if bd.flushed {
			bd.mu.Unlock()
			existed = false
		}
	}
	if !existed {
		bd = &bundle[Req, Resp]{key: key, id: uuid.New(), created: f.clk.Now(), cctx: cctx}
		f.bundles[key] = bd
		bd.mu.Lock()
	}
	f.mu.Unlock()

	bd.issuers = append(bd.issuers, issuer)
	bd.elements += elems
	bd.bytes += byts
	shouldFlushNow := bd.elements >= f.settings.ElementCountThreshold
	isFresh := !existed
	bd.mu.Unlock()

	// Schedule is both called off bd.mu and launched on its own goroutine.
	// Releasing bd.mu first avoids a deadlock against a scheduler that fires
	// its action synchronously (as clocktest's does) re-entering bd.mu from
	// inside detachAndFlush. Launching it on its own goroutine additionally
	// keeps that synchronous fire from running inline in this call: with a
	// synchronous scheduler, firing inline here would flush the bundle with
	// only this first issuer before FutureCall even returns to its caller,
	// so a same-key submission immediately following this one could never
	// join it. Deferring to a goroutine lets this call return first.
	if isFresh {
		go func() {
			cancel := f.sched.Schedule(f.settings.DelayThreshold, func() {
				f.detachAndFlush(key, bd, b.inner, b.desc, b.logger, ctx)
			})
			bd.mu.Lock()
			bd.cancel = cancel
			bd.mu.Unlock()
		}()
	}

	if shouldFlushNow {
		bd.mu.Lock()
		cancel := bd.cancel
		bd.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		go f.detachAndFlush(key, bd, b.inner, b.desc, b.logger, ctx)
	}

	return out
}

// detachAndFlush removes bd from the partition map (if it is still the
// current bundle for key) and flushes it exactly once, per spec.md §4.5.
// Double-flush is prevented by the bundle's own flushed flag: both the
// element-count-threshold path and the delay-threshold path can race to
// call this for the same bundle.
func (f *BundlerFactory[Req, Resp]) detachAndFlush(key string, bd *bundle[Req, Resp], inner Callable[Req, Resp], desc BundlingDescriptor[Req, Resp], logger *logrus.Logger, ctx context.Context) {
	bd.mu.Lock()
	if bd.flushed {
		bd.mu.Unlock()
		return
	}
	bd.flushed = true
	issuers := bd.issuers
	bd.mu.Unlock()

	f.mu.Lock()
	if f.bundles[key] == bd {
		delete(f.bundles, key)
	}
	f.mu.Unlock()

	if f.sem != nil {
		_ = f.sem.Acquire(context.Background(), 1)
		defer f.sem.Release(1)
	}

	f.flush(ctx, bd, issuers, inner, desc, logger)
}

func (f *BundlerFactory[Req, Resp]) flush(ctx context.Context, bd *bundle[Req, Resp], issuers []*RequestIssuer[Req, Resp], inner Callable[Req, Resp], desc BundlingDescriptor[Req, Resp], logger *logrus.Logger) {
	if len(issuers) == 0 {
		return
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"bundle_id":     bd.id,
			"partition_key": bd.key,
			"count":         len(issuers),
		}).Debug("lokacall: flushing bundle")
	}

	reqs := make([]Req, len(issuers))
	for i, iss := range issuers {
		reqs[i] = iss.Request
	}
	merged := desc.Merge(reqs)

	cctx := bd.cctx
	if cctx == nil {
		cctx = NewCallContext()
	}
	resp, err := inner.FutureCall(ctx, merged, cctx).Wait(ctx)
	if err != nil {
		desc.SplitError(err, issuers)
		return
	}
	desc.Split(resp, issuers)
}

// Close flushes every open bundle and forbids further submissions,
// fanning the flushes out concurrently with errgroup the same way the
// teacher's pollRound (lokex/v2/client.go) fans out concurrent polls over
// pending process IDs.
func (f *BundlerFactory[Req, Resp]) Close(ctx context.Context, inner Callable[Req, Resp], desc BundlingDescriptor[Req, Resp], logger *logrus.Logger) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	pending := make([]*bundle[Req, Resp], 0, len(f.bundles))
	for k, bd := range f.bundles {
		pending = append(pending, bd)
		delete(f.bundles, k)
	}
	f.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, bd := range pending {
		bd := bd
		g.Go(func() error {
			f.detachAndFlush(bd.key, bd, inner, desc, logger, gctx)
			return nil
		})
	}
	return g.Wait()
}
