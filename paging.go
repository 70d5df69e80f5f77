package lokacall

import "context"

// PageDescriptor is the stateless strategy the paging decorator consults
// to move between pages of a list-returning call, per spec.md §3/§4.4.
type PageDescriptor[Req, Resp, Elem any] interface {
	// EmptyToken is both the initial token injected into the first
	// request and the sentinel meaning "no more pages".
	EmptyToken() string
	// InjectToken returns a copy of req with token set as its
	// continuation cursor.
	InjectToken(req Req, token string) Req
	// InjectPageSize returns a copy of req with a page-size hint set.
	InjectPageSize(req Req, size int) Req
	// ExtractPageSize reads the page-size hint back off req.
	ExtractPageSize(req Req) int
	// ExtractNextToken reads the continuation cursor off resp. Equal to
	// EmptyToken() iff no further pages exist.
	ExtractNextToken(resp Resp) string
	// ExtractElements reads the ordered element slice off resp.
	ExtractElements(resp Resp) []Elem
}

// Page is a snapshot of one fetched page: its elements, the request that
// produced it, the response, and a lazy handle to the next page.
type Page[Req, Resp, Elem any] struct {
	Elements []Elem
	Request  Req
	Response Resp

	callable Callable[Req, Resp]
	desc     PageDescriptor[Req, Resp, Elem]
	cctx     *CallContext
	nextTok  string
}

// HasNextPage reports whether GetNextPage would fetch another page rather
// than returning nil. Per spec.md §4.4, an empty element list is also
// treated as terminal regardless of the token.
func (p *Page[Req, Resp, Elem]) HasNextPage() bool {
	return p.nextTok != p.desc.EmptyToken() && len(p.Elements) > 0
}

// GetNextPage fetches the next page synchronously, using the same
// callable and descriptor, with the request rebuilt by injecting the
// current page's next-token. Returns nil, nil when there is no next page.
func (p *Page[Req, Resp, Elem]) GetNextPage(ctx context.Context) (*Page[Req, Resp, Elem], error) {
	if !p.HasNextPage() {
		return nil, nil
	}
	nextReq := p.desc.InjectToken(p.Request, p.nextTok)
	return fetchPage(ctx, p.callable, p.desc, nextReq, p.cctx)
}

func fetchPage[Req, Resp, Elem any](ctx context.Context, callable Callable[Req, Resp], desc PageDescriptor[Req, Resp, Elem], req Req, cctx *CallContext) (*Page[Req, Resp, Elem], error) {
	resp, err := callable.FutureCall(ctx, req, cctx).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &Page[Req, Resp, Elem]{
		Elements: desc.ExtractElements(resp),
		Request:  req,
		Response: resp,
		callable: callable,
		desc:     desc,
		cctx:     cctx,
		nextTok:  desc.ExtractNextToken(resp),
	}, nil
}

// PagedListResponse is the root handle returned by a paging call: it can
// iterate elements lazily across pages, hand back the first Page, or
// expand into a FixedSizeCollection.
type PagedListResponse[Req, Resp, Elem any] struct {
	first *Page[Req, Resp, Elem]
}

// GetPage returns the first fetched page.
func (p *PagedListResponse[Req, Resp, Elem]) GetPage() *Page[Req, Resp, Elem] {
	return p.first
}

// ElementIterator yields elements lazily, advancing pages on demand.
type ElementIterator[Req, Resp, Elem any] struct {
	ctx     context.Context
	page    *Page[Req, Resp, Elem]
	idx     int
	err     error
	started bool
}

// Iterator returns a lazy iterator over every element across every page,
// in page order, stopping at the first page whose token equals the empty
// token or whose element list is empty.
func (p *PagedListResponse[Req, Resp, Elem]) Iterator(ctx context.Context) *ElementIterator[Req, Resp, Elem] {
	return &ElementIterator[Req, Resp, Elem]{ctx: ctx, page: p.first}
}

// Next advances the iterator and reports whether an element is available.
// Call Elem() / Err() after a false return to distinguish end-of-stream
// from failure.
func (it *ElementIterator[Req, Resp, Elem]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.page == nil {
		return false
	}
	if it.started {
		it.idx++
	}
	it.started = true

	for it.idx >= len(it.page.Elements) {
		if !it.page.HasNextPage() {
			return false
		}
		next, err := it.page.GetNextPage(it.ctx)
		if err != nil {
			it.err = err
			return false
		}
		it.page = next
		it.idx = 0
		if it.page == nil {
			return false
		}
	}
	return true
}

// Elem returns the element at the iterator's current position. Only
// valid after a call to Next that returned true.
func (it *ElementIterator[Req, Resp, Elem]) Elem() Elem {
	return it.page.Elements[it.idx]
}

// Err returns any failure encountered while advancing pages.
func (it *ElementIterator[Req, Resp, Elem]) Err() error {
	return it.err
}

// IterateAllElements materializes the full lazy stream into a slice. It
// is a convenience wrapper around Iterator for callers who don't need
// true laziness.
func (p *PagedListResponse[Req, Resp, Elem]) IterateAllElements(ctx context.Context) ([]Elem, error) {
	var out []Elem
	it := p.Iterator(ctx)
	for it.Next() {
		out = append(out, it.Elem())
	}
	return out, it.Err()
}

// FixedSizeCollection is one exactly-N-sized (or, for the terminal
// collection, <=N-sized) regrouping of a page-delimited element stream,
// per spec.md §3/§4.4.
type FixedSizeCollection[Elem any] struct {
	Elements []Elem
}

// ExpandToFixedSizeCollection regroups elements into chunks of exactly N,
// with only the terminal chunk possibly shorter. N must be >= the first
// page's declared page size, and the implementation must not re-chunk
// mid-page: if a page's elements would push the accumulator past N, that
// is a ValidationException, never a silent mid-page split.
func (p *PagedListResponse[Req, Resp, Elem]) ExpandToFixedSizeCollection(ctx context.Context, n int) ([]FixedSizeCollection[Elem], error) {
	if p.first == nil {
		return nil, nil
	}

	declaredPageSize := p.first.desc.ExtractPageSize(p.first.Request)
	if declaredPageSize > 0 && n < declaredPageSize {
		return nil, NewValidationException("collection size too small: %d < page size %d", n, declaredPageSize)
	}

	var collections []FixedSizeCollection[Elem]
	var acc []Elem

	page := p.first
	for page != nil {
		if len(acc)+len(page.Elements) > n {
			return nil, NewValidationException("too many elements: accumulated %d plus page %d exceeds collection size %d", len(acc), len(page.Elements), n)
		}
		acc = append(acc, page.Elements...)

		if len(acc) == n {
			collections = append(collections, FixedSizeCollection[Elem]{Elements: acc})
			acc = nil
		}

		if !page.HasNextPage() {
			break
		}
		next, err := page.GetNextPage(ctx)
		if err != nil {
			return nil, err
		}
		page = next
	}

	if len(acc) > 0 {
		collections = append(collections, FixedSizeCollection[Elem]{Elements: acc})
	}

	return collections, nil
}

// PageStreaming wraps inner so that calling it returns a PagedListResponse
// instead of a bare Resp. It is a free function rather than a
// UnaryApiCallable method because its result shape differs from Resp, per
// spec.md §6.
func PageStreaming[Req, Resp, Elem any](inner Callable[Req, Resp], desc PageDescriptor[Req, Resp, Elem]) *PagingCallable[Req, Resp, Elem] {
	return &PagingCallable[Req, Resp, Elem]{inner: inner, desc: desc}
}

// PagingCallable is the pageStreaming-wrapped callable described in
// spec.md §4.4/§6: its Call returns a PagedListResponse rather than Resp.
type PagingCallable[Req, Resp, Elem any] struct {
	inner Callable[Req, Resp]
	desc  PageDescriptor[Req, Resp, Elem]
}

// Call fetches the first page and returns the PagedListResponse handle.
func (p *PagingCallable[Req, Resp, Elem]) Call(ctx context.Context, req Req, cctx *CallContext) (*PagedListResponse[Req, Resp, Elem], error) {
	if cctx == nil {
		cctx = NewCallContext()
	}
	seeded := p.desc.InjectToken(req, p.desc.EmptyToken())
	first, err := fetchPage(ctx, p.inner, p.desc, seeded, cctx)
	if err != nil {
		return nil, err
	}
	return &PagedListResponse[Req, Resp, Elem]{first: first}, nil
}
