package port

import (
	"context"
	"io"
)

// TransportResponse is the response of a single GET
type TransportResponse struct {
	StatusCode    int
	ContentType   string
	ContentLength int64 // -1 when unknown
	Body          io.ReadCloser
}

// Transport issues HTTP GET requests for source URLs.
// Non-2xx responses are returned as typed fetch errors, not as responses.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*TransportResponse, error)
}
