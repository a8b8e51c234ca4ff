package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	connectTimeout = 8 * time.Second
	requestTimeout = 15 * time.Second

	defaultUserAgent = "Mozilla/5.0"
)

// ErrRateLimited marks an HTTP 429 from the upstream. Callers must not retry
// automatically and should surface a distinct message instead.
var ErrRateLimited = errors.New("upstream rate limit exceeded (429)")

// HTTPError is any non-200, non-429 response. Body carries the error payload
// (best effort) for diagnostics.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}

// Client is a stateless GET client with fixed connect/read timeouts. Safe for
// concurrent use.
type Client struct {
	http *resty.Client
	log  *logrus.Logger
}

func New(log *logrus.Logger) *Client {
	c := resty.New()
	c.SetTimeout(requestTimeout)
	c.SetTransport(&http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	})
	c.SetHeader("User-Agent", defaultUserAgent)
	return &Client{http: c, log: log}
}

// Get fetches url and returns the body decoded from charset into UTF-8.
// An empty charset means the body is already UTF-8. The context label is only
// used for logging.
func (c *Client) Get(ctx context.Context, url, charset, label string) (string, error) {
	url = stripFormatting(url)

	c.log.Debugf("fetching %s (%s)", url, label)
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", label, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		// fallthrough to decoding below
	case code == http.StatusTooManyRequests:
		c.log.Errorf("fetch %s: rate limited by upstream: %s", label, snippet(resp.Body()))
		return "", fmt.Errorf("fetch %s: %w", label, ErrRateLimited)
	default:
		c.log.Warnf("fetch %s: HTTP %d: %s", label, code, snippet(resp.Body()))
		return "", &HTTPError{StatusCode: code, Body: snippet(resp.Body())}
	}

	body := resp.Body()
	if charset != "" && !strings.EqualFold(charset, "utf-8") {
		enc, err := ianaindex.IANA.Encoding(charset)
		if err != nil || enc == nil {
			return "", fmt.Errorf("fetch %s: unsupported charset %q", label, charset)
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", fmt.Errorf("fetch %s: decode %s: %w", label, charset, err)
		}
		body = decoded
	}
	return string(body), nil
}

// stripFormatting removes chat formatting sequences and control characters
// that occasionally leak into URLs captured from game chat ("§x" color codes).
func stripFormatting(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == '§' {
			skip = true
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func snippet(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return strings.TrimSpace(string(b))
}
