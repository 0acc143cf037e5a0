package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/codexcrawl/internal/config"
	"github.com/nao1215/codexcrawl/internal/model"
)

// Fetcher retrieves one page. Implementations must be safe for concurrent
// use and must report every failure as an error, never by panicking.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*model.Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*model.Page, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*model.Page, error) {
	return f(ctx, url)
}

// HTTPFetcher performs a single GET per call. It does not retry.
type HTTPFetcher struct {
	client      *http.Client
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger

	// flight collapses concurrent requests for the same URL. calls holds
	// the context of each shared request; it is cancelled once every
	// caller waiting on that request has gone.
	flight singleflight.Group
	mu     sync.Mutex
	calls  map[string]*sharedCall
}

type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout bounds each call, in addition to the client's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize limits how many bytes of a body are read.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher creates an HTTPFetcher around client.
// A nil client means http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      client,
		timeout:     config.DefaultTimeout,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		calls:       make(map[string]*sharedCall),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	return f
}

// Fetch implements Fetcher. Concurrent calls for the same URL share one
// request. Each caller stops waiting when its own ctx is done; the shared
// request is cancelled only when no caller is left waiting for it.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	call := f.join(ctx, pageURL)
	defer f.leave(pageURL, call)

	ch := f.flight.DoChan(pageURL, func() (any, error) {
		return f.fetch(call.ctx, pageURL)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &FetchError{URL: pageURL, Err: ctx.Err()}
	}

	if res.Shared {
		f.logger.Debug("shared in-flight fetch", "url", pageURL)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// Callers own the page; hand out copies when the result was shared.
	page := *res.Val.(*model.Page) //nolint:forcetypeassert // fetch only returns *model.Page
	if res.Shared {
		page.Body = bytes.Clone(page.Body)
	}
	return &page, nil
}

// join registers a caller of the shared request for pageURL. The request
// context keeps the values of the first caller's ctx but not its deadline
// or cancellation.
func (f *HTTPFetcher) join(ctx context.Context, pageURL string) *sharedCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	call, ok := f.calls[pageURL]
	if !ok {
		callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &sharedCall{ctx: callCtx, cancel: cancel}
		f.calls[pageURL] = call
	}
	call.waiters++
	return call
}

// leave drops a caller. The last one cancels the request and makes the
// next Fetch of pageURL start a fresh one.
func (f *HTTPFetcher) leave(pageURL string, call *sharedCall) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call.waiters--
	if call.waiters > 0 {
		return
	}
	call.cancel()
	if f.calls[pageURL] == call {
		delete(f.calls, pageURL)
	}
	f.flight.Forget(pageURL)
}

func (f *HTTPFetcher) fetch(ctx context.Context, pageURL string) (*model.Page, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.5")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := readBody(io.LimitReader(resp.Body, f.maxBodySize), contentType)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	f.logger.Debug("fetched",
		"url", pageURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return &model.Page{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// readBody reads r and transcodes it to UTF-8 using the declared or
// sniffed charset.
func readBody(r io.Reader, contentType string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		// Unknown charset: keep the bytes as they are.
		return raw, nil //nolint:nilerr // undecodable charset is not a fetch failure
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil {
		return raw, nil //nolint:nilerr // same as above
	}
	return decoded, nil
}
