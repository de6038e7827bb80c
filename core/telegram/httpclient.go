package telegram

import (
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/m3rciful/pricebot/core/netutil"
)

// HTTPClientOptions tunes BuildHTTPClient; zero fields take defaults.
type HTTPClientOptions struct {
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	MaxDelay time.Duration
}

func (o HTTPClientOptions) withDefaults() HTTPClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	return o
}

// BuildHTTPClient returns the client used for Bot API calls. Dial and
// timeout failures are retried with linear backoff, and so are 429 and 5xx
// answers when the request body can be replayed. A Retry-After header wins
// over the backoff, up to MaxDelay.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	opts = opts.withDefaults()
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retryTransport{base: base, opts: opts},
	}
}

type retryTransport struct {
	base http.RoundTripper
	opts HTTPClientOptions
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.GetBody != nil
	for attempt := 1; ; attempt++ {
		cur := req
		if attempt > 1 {
			cur = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				cur.Body = body
			}
		}

		resp, err := t.base.RoundTrip(cur)
		last := attempt > t.opts.Retries || !replayable
		var delay time.Duration
		switch {
		case err != nil:
			if last || !netutil.ShouldRetry(err) {
				return nil, err
			}
			delay = netutil.Backoff(t.opts.Backoff, attempt)
		case retryableStatus(resp.StatusCode) && !last:
			delay = retryAfter(resp.Header.Get("Retry-After"), netutil.Backoff(t.opts.Backoff, attempt))
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			return resp, nil
		}

		if err := netutil.Sleep(req.Context(), min(delay, t.opts.MaxDelay)); err != nil {
			return nil, err
		}
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

func retryAfter(header string, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
