package httpx

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitedTransport is an http.RoundTripper that paces outbound requests
// through a token bucket. Wrapping a token-endpoint client with it keeps a
// burst of concurrent refresh triggers from hammering the provider.
type RateLimitedTransport struct {
	// Base performs the actual request. nil means http.DefaultTransport.
	Base http.RoundTripper
	// Limiter gates each request. nil disables pacing.
	Limiter *rate.Limiter
}

// NewRateLimitedTransport wraps base with a limiter allowing
// requestsPerSecond sustained throughput and burst immediate requests.
func NewRateLimitedTransport(base http.RoundTripper, requestsPerSecond float64, burst int) *RateLimitedTransport {
	return &RateLimitedTransport{
		Base:    base,
		Limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// RoundTrip waits for limiter clearance, honouring the request's context,
// then delegates to the base transport.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a handler in declaration order; the first
// middleware becomes the outermost wrapper.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
