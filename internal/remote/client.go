package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/babel"
)

// Remote Page Source
//
// Fetches pages from a peer engine (or any service speaking the same page
// protocol) instead of generating them locally. Used by the remote and
// hybrid search modes. Every response is validated against the page
// contract before it is trusted; a peer that returns malformed pages is
// indistinguishable from one that is down.
//
// All failures surface as ErrFetchFailed so the pipeline can log and skip
// uniformly. A slow or dead peer must never sink a search: requests carry
// both the caller's context and the client's own timeout.

// ErrFetchFailed wraps every remote failure mode: transport errors, non-200
// statuses, protocol mismatches, and invalid page text.
var ErrFetchFailed = errors.New("remote fetch failed")

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 5 * time.Second

// Client talks to one remote page source. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

type pageResponse struct {
	Address string `json:"address"`
	Text    string `json:"text"`
}

// NewClient validates the base URL and builds a client. The URL must be
// absolute; a trailing slash is tolerated. Reachability is checked via
// Ping, not here, so a temporarily down peer does not block startup.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("remote base URL %q is not an absolute URL", baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger.Named("remote"),
	}, nil
}

// Ping verifies the peer answers its health endpoint. Callers treat a
// failure as a warning; the client stays usable and may recover.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// FetchPage retrieves and validates the page at address. The returned text
// always satisfies the page contract (exact length, closed alphabet).
func (c *Client) FetchPage(ctx context.Context, address string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/pages/"+address, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d for %s", ErrFetchFailed, resp.StatusCode, address)
	}

	var page pageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&page); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrFetchFailed, err)
	}
	if page.Address != address {
		return "", fmt.Errorf("%w: peer answered for %s, wanted %s", ErrFetchFailed, page.Address, address)
	}
	if ok, reason := babel.ValidatePage(page.Text); !ok {
		c.log.Warn("Peer returned invalid page",
			zap.String("address", address),
			zap.String("reason", reason))
		return "", fmt.Errorf("%w: invalid page: %s", ErrFetchFailed, reason)
	}
	return page.Text, nil
}
