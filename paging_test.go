package lokacall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageReq struct {
	token    string
	pageSize int
}

type pageResp struct {
	elems []int
	next  string
}

type intPageDesc struct {
	pageSize int
}

func (intPageDesc) EmptyToken() string { return "" }

func (d intPageDesc) InjectToken(req pageReq, token string) pageReq {
	req.token = token
	return req
}

func (d intPageDesc) InjectPageSize(req pageReq, size int) pageReq {
	req.pageSize = size
	return req
}

func (d intPageDesc) ExtractPageSize(req pageReq) int     { return req.pageSize }
func (intPageDesc) ExtractNextToken(resp pageResp) string { return resp.next }
func (intPageDesc) ExtractElements(resp pageResp) []int   { return resp.elems }

// fixedPages serves a fixed sequence of pageResp keyed by the request token,
// the way a mock transport would back a pagination test.
func fixedPages(byToken map[string]pageResp) Callable[pageReq, pageResp] {
	return &primitiveCallable[pageReq, pageResp]{
		fn: func(_ context.Context, req pageReq, _ *CallContext) (pageResp, error) {
			return byToken[req.token], nil
		},
	}
}

// TestPagingIterateAllElements covers spec.md §8 scenario 5: pages
// [0,1,2], [3,4], [] flatten to [0,1,2,3,4] in order, and GetPage /
// GetNextPage expose the same boundaries directly.
func TestPagingIterateAllElements(t *testing.T) {
	inner := fixedPages(map[string]pageResp{
		"":  {elems: []int{0, 1, 2}, next: "p2"},
		"p2": {elems: []int{3, 4}, next: "p3"},
		"p3": {elems: nil, next: ""},
	})

	desc := intPageDesc{pageSize: 3}
	streaming := PageStreaming[pageReq, pageResp, int](inner, desc)

	resp, err := streaming.Call(context.Background(), pageReq{pageSize: 3}, nil)
	require.NoError(t, err)

	all, err := resp.IterateAllElements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, all)

	first := resp.GetPage()
	require.NotNil(t, first)
	assert.Equal(t, []int{0, 1, 2}, first.Elements)

	second, err := first.GetNextPage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, []int{3, 4}, second.Elements)
	assert.True(t, second.HasNextPage())
}

// TestPagingExpandToFixedSizeCollectionHappyPath covers scenario 6's happy
// path: pages [0,1,2], [3,4], [5,6,7], [] regroup into chunks of exactly 5.
func TestPagingExpandToFixedSizeCollectionHappyPath(t *testing.T) {
	inner := fixedPages(map[string]pageResp{
		"":  {elems: []int{0, 1, 2}, next: "p2"},
		"p2": {elems: []int{3, 4}, next: "p3"},
		"p3": {elems: []int{5, 6, 7}, next: "p4"},
		"p4": {elems: nil, next: ""},
	})

	desc := intPageDesc{pageSize: 3}
	streaming := PageStreaming[pageReq, pageResp, int](inner, desc)

	resp, err := streaming.Call(context.Background(), pageReq{pageSize: 3}, nil)
	require.NoError(t, err)

	collections, err := resp.ExpandToFixedSizeCollection(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, collections, 2)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, collections[0].Elements)
	assert.Equal(t, []int{5, 6, 7}, collections[1].Elements)
}

// TestPagingExpandToFixedSizeCollectionOverrun covers scenario 6's overrun
// case: N=4 against pages of 3+2 can't land on an exact boundary without a
// mid-page split, which is forbidden, so it surfaces a ValidationException.
func TestPagingExpandToFixedSizeCollectionOverrun(t *testing.T) {
	inner := fixedPages(map[string]pageResp{
		"":  {elems: []int{0, 1, 2}, next: "p2"},
		"p2": {elems: []int{3, 4}, next: "p3"},
		"p3": {elems: nil, next: ""},
	})

	desc := intPageDesc{pageSize: 3}
	streaming := PageStreaming[pageReq, pageResp, int](inner, desc)

	resp, err := streaming.Call(context.Background(), pageReq{pageSize: 3}, nil)
	require.NoError(t, err)

	_, err = resp.ExpandToFixedSizeCollection(context.Background(), 4)
	require.Error(t, err)

	var ve *ValidationException
	require.True(t, errors.As(err, &ve))
}

// TestPagingExpandToFixedSizeCollectionTooSmall covers scenario 6's
// too-small case: N below the declared page size is rejected up front.
func TestPagingExpandToFixedSizeCollectionTooSmall(t *testing.T) {
	inner := fixedPages(map[string]pageResp{
		"":  {elems: []int{0, 1}, next: "p2"},
		"p2": {elems: nil, next: ""},
	})

	desc := intPageDesc{pageSize: 3}
	streaming := PageStreaming[pageReq, pageResp, int](inner, desc)

	resp, err := streaming.Call(context.Background(), pageReq{pageSize: 3}, nil)
	require.NoError(t, err)

	_, err = resp.ExpandToFixedSizeCollection(context.Background(), 2)
	require.Error(t, err)

	var ve *ValidationException
	require.True(t, errors.As(err, &ve))
}
