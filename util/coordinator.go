package util

import (
	"context"
	"errors"
	"sync"
	"time"

	"hlsgrab/metrics"
	"hlsgrab/models"

	"go.uber.org/zap"
)

// SegmentFetcher is satisfied by *Fetcher.
type SegmentFetcher interface {
	Fetch(ctx context.Context, uri string, headers map[string]string) ([]byte, error)
}

// Coordinator fans segment fetches out to a bounded pool of goroutines
// and hands decrypted results to a single consumer.
type Coordinator struct {
	fetcher     SegmentFetcher
	decryptor   *Decryptor
	headers     map[string]string
	concurrency int
	gracePeriod time.Duration

	// one slot per segment that is in flight or buffered by the writer
	window chan struct{}
}

func NewCoordinator(
	fetcher SegmentFetcher,
	decryptor *Decryptor,
	headers map[string]string,
	config *models.DownloadConfig,
) *Coordinator {
	config = models.GetDownloadConfig(config)
	return &Coordinator{
		fetcher:     fetcher,
		decryptor:   decryptor,
		headers:     headers,
		concurrency: config.Concurrency,
		gracePeriod: config.GracePeriod,
		window:      make(chan struct{}, config.ReorderWindow),
	}
}

// Release returns one reorder window slot. The consumer calls it once
// for every segment it resolves.
func (c *Coordinator) Release() {
	select {
	case <-c.window:
	default:
	}
}

// Run dispatches every segment once and closes out when all workers are
// done. After ctx is cancelled no new segment is dispatched, and fetches
// already running get the grace period to finish; results of fetches cut
// short by the grace period are dropped rather than reported as failures.
func (c *Coordinator) Run(
	ctx context.Context,
	segments []models.SegmentRef,
	out chan<- models.SegmentResult,
) {
	defer close(out)

	workCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()
	stopAfterGrace := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(c.gracePeriod)
		defer timer.Stop()
		select {
		case <-timer.C:
			zap.S().Debugf("grace period of %s elapsed, abandoning in-flight segments", c.gracePeriod)
			stop()
		case <-workCtx.Done():
		}
	})
	defer stopAfterGrace()

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

dispatch:
	for _, segment := range segments {
		select {
		case c.window <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.Release()
			break dispatch
		}

		wg.Add(1)
		go func(segment models.SegmentRef) {
			defer wg.Done()
			defer func() { <-sem }()

			result := c.process(workCtx, segment)
			if result.Err != nil && workCtx.Err() != nil {
				zap.S().Debugf("dropping interrupted segment %d", segment.Index)
				c.Release()
				return
			}
			out <- result
		}(segment)
	}

	wg.Wait()
}

func (c *Coordinator) process(
	ctx context.Context,
	segment models.SegmentRef,
) models.SegmentResult {
	data, err := c.fetchAndDecrypt(ctx, segment)

	var decryptErr *DecryptError
	if errors.As(err, &decryptErr) {
		// usually a truncated body or an error page, one fresh copy is worth a try
		zap.S().Debugf("segment %d failed to decrypt (%s), fetching it again", segment.Index, decryptErr.Kind)
		metrics.Segments.WithLabelValues("refetched").Inc()
		data, err = c.fetchAndDecrypt(ctx, segment)
	}

	if err != nil {
		return models.SegmentResult{
			Index: segment.Index,
			URI:   segment.URI,
			Err: &SegmentError{
				Index: segment.Index,
				URI:   segment.URI,
				Err:   err,
			},
		}
	}
	return models.SegmentResult{
		Index: segment.Index,
		URI:   segment.URI,
		Data:  data,
	}
}

func (c *Coordinator) fetchAndDecrypt(
	ctx context.Context,
	segment models.SegmentRef,
) ([]byte, error) {
	data, err := c.fetcher.Fetch(ctx, segment.URI, c.headers)
	if err != nil {
		return nil, err
	}
	if segment.Clear {
		return data, nil
	}
	return c.decryptor.Decrypt(data, segment.Sequence)
}
