package cache

import (
	"context"
	"net/http"
)

// Request describes one remote call made on behalf of the cache or a writer.
type Request struct {
	// Method defaults to GET when empty.
	Method string

	// URL is the full resource URL.
	URL string

	// Header is merged over the transport's default headers.
	Header http.Header

	// Body is JSON-encoded by the transport. Nil means no body.
	Body any
}

// Transport performs remote calls. Implementations must return an error for
// any non-success status, regardless of the body content.
type Transport interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) ([]byte, error)

// Do calls f(ctx, req).
func (f TransportFunc) Do(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
