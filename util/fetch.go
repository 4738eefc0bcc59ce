package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"hlsgrab/enums"
	"hlsgrab/metrics"
	"hlsgrab/models"
	"hlsgrab/util/networking"

	"go.uber.org/zap"
)

// Fetcher performs bounded-retry GET requests. It keeps no per-request
// state, so one instance is shared by every worker.
type Fetcher struct {
	client  models.HTTPClient
	policy  *RetryPolicy
	timeout time.Duration
	maxSize int64
	cookies []*http.Cookie
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

func NewFetcher(config *models.DownloadConfig, policy *RetryPolicy) *Fetcher {
	config = models.GetDownloadConfig(config)
	if policy == nil {
		policy = NewRetryPolicy(config)
	}
	var client models.HTTPClient = config.Client
	if client == nil {
		client = networking.GetDefaultHTTPClient()
	}
	return &Fetcher{
		client:  client,
		policy:  policy,
		timeout: config.Timeout,
		maxSize: config.MaxSegmentSize,
		cookies: config.Cookies,
	}
}

// Fetch downloads uri and returns the whole body. Transient failures are
// retried up to the policy bound, permanent HTTP statuses return at once.
func (f *Fetcher) Fetch(
	ctx context.Context,
	uri string,
	headers map[string]string,
) ([]byte, error) {
	var lastErr *FetchError

	for attempt := 1; attempt <= f.policy.attempts(); attempt++ {
		if attempt > 1 {
			metrics.FetchRetries.Inc()
			if err := f.policy.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		data, err := f.fetchOnce(ctx, uri, headers)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = classifyFetchError(uri, err)
		lastErr.Attempts = attempt
		zap.S().Debugf("fetch %s attempt %d/%d failed: %v", uri, attempt, f.policy.attempts(), err)
		if lastErr.Permanent {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (f *Fetcher) fetchOnce(
	ctx context.Context,
	uri string,
	headers map[string]string,
) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range f.cookies {
		req.AddCookie(cookie)
	}

	metrics.FetchInflight.Inc()
	started := time.Now()
	defer func() {
		metrics.FetchInflight.Dec()
		metrics.FetchDuration.Observe(time.Since(started).Seconds())
	}()

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.FetchRequests.WithLabelValues("status").Inc()
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &statusError{code: resp.StatusCode}
	}
	if resp.ContentLength > f.maxSize {
		metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, ErrSegmentTooLarge
	}

	data, err := readBody(resp, f.maxSize)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FetchRequests.WithLabelValues("ok").Inc()
	return data, nil
}

func readBody(resp *http.Response, maxSize int64) ([]byte, error) {
	// allocate a single buffer with the
	// correct size upfront to prevent reallocations
	var data []byte
	if resp.ContentLength > 0 {
		data = make([]byte, 0, resp.ContentLength)
	} else {
		// 64KB initial capacity
		data = make([]byte, 0, 64*1024)
	}

	// read one byte past the limit to detect oversized bodies
	// even when content-length is missing or wrong
	limitedReader := io.LimitReader(resp.Body, maxSize+1)

	buf := make([]byte, 32*1024) // 32KB buffer
	for {
		n, err := limitedReader.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	}
	if int64(len(data)) > maxSize {
		return nil, ErrSegmentTooLarge
	}
	return data, nil
}

func classifyFetchError(uri string, err error) *FetchError {
	fetchErr := &FetchError{
		URI:  uri,
		Kind: enums.FetchErrorNetwork,
		Err:  err,
	}

	var statusErr *statusError
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr):
		fetchErr.Kind = enums.FetchErrorHTTPStatus
		fetchErr.StatusCode = statusErr.code
		fetchErr.Permanent = !IsTransientStatus(statusErr.code)
	case errors.Is(err, ErrSegmentTooLarge):
		fetchErr.Permanent = true
	case errors.Is(err, context.DeadlineExceeded):
		fetchErr.Kind = enums.FetchErrorTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fetchErr.Kind = enums.FetchErrorTimeout
	}
	return fetchErr
}
