package deepl

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport throttles outgoing requests with a token bucket.
//
// It also marks every response as varying on Authorization. The cache layer
// above keys entries by URL alone, and all keys share one URL, so without the
// Vary header a cached usage for one key could be served for another.
type rateLimitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Header.Add("Vary", "Authorization")
	return resp, nil
}
