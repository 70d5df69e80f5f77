// Package lokacall is a client-side middleware library for unary RPC-style
// calls. It wraps one "perform a single call" primitive and lets callers
// stack retrying, pagination, and request bundling around it without
// touching the primitive itself.
//
// The composition root is UnaryApiCallable: Create a callable from a
// primitive, optionally Bind a channel, declare RetryableOn codes, and wrap
// with Retrying and/or Bundling. Pagination is exposed separately via
// PageStreaming because it changes the shape of the call's result.
package lokacall
