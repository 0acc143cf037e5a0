package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/codexcrawl/internal/config"
)

// ErrUnsupportedProxy is returned for a proxy URL scheme other than
// socks5, socks5h, http or https.
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// maxRedirects stops redirect loops on misconfigured servers.
const maxRedirects = 10

// ClientOptions configures the HTTP client used by the fetcher.
type ClientOptions struct {
	// Timeout bounds one request including reading the body.
	Timeout time.Duration

	// Proxy is an optional proxy URL, e.g. socks5://127.0.0.1:9050.
	Proxy string

	// MaxConns caps idle and active connections per host. It should be at
	// least the worker count so that the gate, not the transport, limits
	// concurrency.
	MaxConns int

	// Sites supplies per-host cookies and headers. May be nil.
	Sites *config.File
}

// NewHTTPClient builds an *http.Client for crawling.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = config.DefaultWorkers
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: opts.Timeout,
		ForceAttemptHTTP2:   true,
	}

	if opts.Proxy != "" {
		if err := applyProxy(transport, opts.Proxy); err != nil {
			return nil, err
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = transport
	if opts.Sites != nil {
		rt = &headerInjectingTransport{base: transport, sites: opts.Sites}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// applyProxy routes the transport through a SOCKS5 or HTTP proxy.
func applyProxy(t *http.Transport, rawProxy string) error {
	u, err := url.Parse(rawProxy)
	if err != nil {
		return fmt.Errorf("invalid proxy %q: %w", rawProxy, err)
	}

	switch u.Scheme {
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
}

// headerInjectingTransport adds the per-host cookie and headers from the
// config file to every request.
type headerInjectingTransport struct {
	base  http.RoundTripper
	sites *config.File
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	site := t.sites.GetSiteConfig(req.URL.Hostname())
	if site.Cookie == "" && len(site.Headers) == 0 {
		return t.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	if site.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+site.Cookie)
		} else {
			clone.Header.Set("Cookie", site.Cookie)
		}
	}
	for key, value := range site.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
