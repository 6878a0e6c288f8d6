package scrape

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/canonical"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/resilience"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/urlguard"
)

// ErrRedirectLimit marks a redirect chain that exceeded the configured cap.
var ErrRedirectLimit = eris.New("scrape: redirect limit exceeded")

// ErrNotModified reports a 304 response to a conditional fetch; the cached
// copy is still current and no body was transferred.
var ErrNotModified = eris.New("scrape: not modified")

// maxBodyBytes caps how much of a response we read. Listing pages are small;
// anything larger is junk or a tarpit.
const maxBodyBytes = 5 << 20

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// FetchOptions tunes a single fetch.
type FetchOptions struct {
	// ETag and LastModified, when set, are sent as conditional request
	// headers. A 304 response surfaces as ErrNotModified.
	ETag         string
	LastModified string
}

// Fetcher performs guarded HTTP fetches: every URL (including each redirect
// hop) passes the URL guard, responses run through block detection, and
// traffic optionally routes through the proxy pool.
type Fetcher struct {
	guard    *urlguard.Guard
	detector *Detector
	proxies  *ProxyPool
	timeout  time.Duration
	uaIndex  atomic.Uint64
}

// NewFetcher wires a Fetcher. proxies may be nil for direct connections.
func NewFetcher(guard *urlguard.Guard, detector *Detector, proxies *ProxyPool, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		guard:    guard,
		detector: detector,
		proxies:  proxies,
		timeout:  timeout,
	}
}

func (f *Fetcher) nextUserAgent() string {
	return userAgents[f.uaIndex.Add(1)%uint64(len(userAgents))]
}

// Fetch retrieves one page. The returned RawPage carries the body, caching
// validators, and an HTML content hash. Block challenges come back as a
// *BlockError; transport failures as *resilience.TransientError when
// retryable.
func (f *Fetcher) Fetch(ctx context.Context, siteID, rawURL string, opts FetchOptions) (*model.RawPage, error) {
	requestID := uuid.NewString()

	decision := f.guard.Validate(rawURL, requestID)
	if !decision.Allowed {
		return nil, eris.Wrap(urlguard.ErrDenied, decision.Reason)
	}
	target := decision.SanitizedURL
	defer f.guard.CompleteRequest(target)

	var proxyAddr string
	transport := &http.Transport{}
	if f.proxies != nil {
		if ep := f.proxies.Next(); ep != nil {
			proxyURL, err := url.Parse(ep.Protocol + "://" + ep.Address)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
				proxyAddr = ep.Address
			}
		}
	}

	client := &http.Client{
		Timeout:   f.timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !f.guard.TrackRedirect(target) {
				return ErrRedirectLimit
			}
			hop := f.guard.Validate(req.URL.String(), requestID)
			if !hop.Allowed {
				return eris.Wrap(urlguard.ErrDenied, "redirect target: "+hop.Reason)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: build request")
	}
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}
	if opts.LastModified != "" {
		req.Header.Set("If-Modified-Since", opts.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		// CheckRedirect errors come back wrapped in *url.Error; unwrap the
		// guard verdicts so callers can classify them.
		if errors.Is(err, ErrRedirectLimit) {
			return nil, ErrRedirectLimit
		}
		if errors.Is(err, urlguard.ErrDenied) {
			return nil, eris.Wrap(urlguard.ErrDenied, "redirect denied")
		}
		f.reportProxy(proxyAddr, false)
		if resilience.IsTransient(err) {
			return nil, &resilience.TransientError{Err: err}
		}
		return nil, eris.Wrap(err, "scrape: fetch "+target)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.reportProxy(proxyAddr, true)
		return nil, ErrNotModified
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.reportProxy(proxyAddr, false)
		return nil, &resilience.TransientError{Err: err, StatusCode: resp.StatusCode}
	}

	if block := f.detector.Detect(resp, body); block != nil {
		f.reportProxy(proxyAddr, false)
		if proxyAddr != "" {
			f.proxies.MarkBlocked(proxyAddr)
		}
		zap.L().Warn("scrape: block detected",
			zap.String("site", siteID),
			zap.String("url", target),
			zap.String("kind", string(block.Kind)),
			zap.Int("status", resp.StatusCode),
		)
		return nil, block
	}

	if resp.StatusCode >= 400 {
		f.reportProxy(proxyAddr, false)
		err := eris.Errorf("scrape: fetch %s: status %d", target, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &resilience.TransientError{Err: err, StatusCode: resp.StatusCode}
		}
		return nil, err
	}

	f.reportProxy(proxyAddr, true)

	return &model.RawPage{
		URL:          target,
		SiteID:       siteID,
		Body:         string(body),
		StatusCode:   resp.StatusCode,
		ContentHash:  canonical.HTMLContentHash(string(body)),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		RenderMode:   "http",
		ProxyAddr:    proxyAddr,
		FetchedAt:    time.Now().UTC(),
	}, nil
}

func (f *Fetcher) reportProxy(address string, ok bool) {
	if f.proxies == nil || address == "" {
		return
	}
	if ok {
		f.proxies.ReportSuccess(address)
	} else {
		f.proxies.ReportFailure(address)
	}
}
