// Package fetch retrieves pages over HTTP.
//
// HTTPFetcher performs exactly one GET per call with a per-call timeout,
// reads at most a configured number of bytes, and transcodes the body to
// UTF-8. Every failure (network error, timeout, non-2xx status) is
// returned as a *FetchError; errors.Is(err, ErrTimeout) and
// errors.Is(err, ErrStatus) classify it. Retrying is left to the caller;
// IsRetryable and Backoff help with that.
//
// Concurrent calls for the same URL share one request. A caller whose
// context ends stops waiting without failing the others; the request
// itself is cancelled when the last waiting caller has gone.
//
// NewHTTPClient builds the underlying client, optionally routed through a
// SOCKS5 or HTTP proxy, and injects per-host cookies and headers from the
// config file.
package fetch
