package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrFetchFailed signals that every transport (direct and proxy) failed for
// one fetch attempt. Retry cadence belongs to the scheduler, not here.
var ErrFetchFailed = errors.New("feed fetch failed")

// proxyEnvelope is the allorigins-style wrapper: the proxy returns JSON whose
// contents field holds the original feed body verbatim.
type proxyEnvelope struct {
	Contents string `json:"contents"`
}

// Fetcher retrieves the raw feed over HTTP. It always requests a fresh copy
// and falls back to an envelope proxy when the direct transport fails.
type Fetcher struct {
	client   *resty.Client
	feedURL  string
	proxyURL string
	logger   *zap.Logger
}

func NewFetcher(feedURL, proxyURL string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/rss+xml").
		SetHeader("Cache-Control", "no-cache")

	return &Fetcher{
		client:   client,
		feedURL:  feedURL,
		proxyURL: proxyURL,
		logger:   logger,
	}
}

// FetchRaw returns the raw feed text. A single call makes at most one direct
// attempt and one proxy attempt; both failing yields ErrFetchFailed.
func (f *Fetcher) FetchRaw(ctx context.Context) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(f.feedURL)
	if err == nil && resp.IsSuccess() {
		return resp.Body(), nil
	}

	if err != nil {
		f.logger.Warn("Direct feed fetch failed, trying proxy",
			zap.String("url", f.feedURL),
			zap.Error(err),
		)
	} else {
		f.logger.Warn("Direct feed fetch failed, trying proxy",
			zap.String("url", f.feedURL),
			zap.Int("status_code", resp.StatusCode()),
		)
	}

	if f.proxyURL == "" {
		return nil, fmt.Errorf("%w: direct transport failed and no proxy configured", ErrFetchFailed)
	}

	var envelope proxyEnvelope
	proxyResp, proxyErr := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("url", f.feedURL).
		SetResult(&envelope).
		Get(f.proxyURL)
	if proxyErr != nil {
		return nil, fmt.Errorf("%w: proxy transport: %v", ErrFetchFailed, proxyErr)
	}
	if !proxyResp.IsSuccess() {
		return nil, fmt.Errorf("%w: proxy transport returned status %d", ErrFetchFailed, proxyResp.StatusCode())
	}
	if envelope.Contents == "" {
		return nil, fmt.Errorf("%w: proxy envelope carried no contents", ErrFetchFailed)
	}

	f.logger.Info("Fetched feed via proxy transport",
		zap.String("proxy_url", f.proxyURL),
		zap.Int("bytes", len(envelope.Contents)),
	)

	return []byte(envelope.Contents), nil
}
