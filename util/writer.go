package util

import (
	"context"
	"fmt"
	"io"

	"hlsgrab/metrics"
	"hlsgrab/models"

	"go.uber.org/zap"
)

// Artifact is the temporary output file.
type Artifact interface {
	io.Writer
	Sync() error
}

// Checkpointer durably records writer progress.
type Checkpointer interface {
	Append(record models.CheckpointRecord) error
}

type WriterConfig struct {
	FlushSize   int           // bytes to coalesce before a flush, 0 flushes every run
	StartIndex  uint64        // first index the writer expects
	StartOffset int64         // artifact length when the writer starts
	Total       int           // number of segments the writer expects
	Release     func()        // called once for every resolved segment
	Abort       func()        // called when a write fails, to stop producers
	OnProgress  func(float64) // optional, receives resolved/Total
}

type WriteStats struct {
	Written    int
	Failed     int
	Duplicates int
	Discarded  int
	Bytes      int64 // bytes appended by this run
	Offset     int64 // artifact length after the last flush
	Last       *models.CheckpointRecord
	Failures   []*SegmentError
}

// OrderedWriter appends segment results to the artifact strictly by
// index, whatever order they arrive in. It is the only writer of both
// the artifact and the checkpoint log.
type OrderedWriter struct {
	artifact Artifact
	log      Checkpointer
	config   WriterConfig

	next     uint64
	end      uint64
	buffered map[uint64]models.SegmentResult
	pending  []byte
	dirty    *models.CheckpointRecord
	resolved int
	stats    WriteStats
}

func NewOrderedWriter(
	artifact Artifact,
	log Checkpointer,
	config WriterConfig,
) *OrderedWriter {
	return &OrderedWriter{
		artifact: artifact,
		log:      log,
		config:   config,
		next:     config.StartIndex,
		end:      config.StartIndex + uint64(config.Total),
		buffered: make(map[uint64]models.SegmentResult),
		stats: WriteStats{
			Offset: config.StartOffset,
		},
	}
}

// Run consumes results until the channel is closed. On a write failure it
// aborts the producers, keeps draining, and returns the error.
func (w *OrderedWriter) Run(
	ctx context.Context,
	results <-chan models.SegmentResult,
) (WriteStats, error) {
	var writeErr error

	for result := range results {
		if writeErr != nil {
			w.release()
			continue
		}
		if err := w.accept(result); err != nil {
			writeErr = err
			zap.S().Errorf("writer stopped: %v", err)
			if w.config.Abort != nil {
				w.config.Abort()
			}
			// results still buffered will never be written
			for range w.buffered {
				w.release()
			}
			w.stats.Discarded += len(w.buffered)
			clear(w.buffered)
		}
	}
	if writeErr != nil {
		return w.stats, writeErr
	}

	if err := w.flush(); err != nil {
		return w.stats, err
	}
	if len(w.buffered) > 0 {
		if ctx.Err() != nil {
			zap.S().Infof(
				"download interrupted, discarding %d buffered segment(s) after index %d",
				len(w.buffered), w.next,
			)
		} else {
			zap.S().Warnf(
				"segment %d never arrived, discarding %d buffered segment(s)",
				w.next, len(w.buffered),
			)
		}
		w.stats.Discarded += len(w.buffered)
		clear(w.buffered)
	}
	return w.stats, nil
}

func (w *OrderedWriter) accept(result models.SegmentResult) error {
	if result.Index < w.next || result.Index >= w.end {
		return w.reject(result)
	}
	if _, ok := w.buffered[result.Index]; ok {
		return w.reject(result)
	}
	w.buffered[result.Index] = result

	advanced := false
	for {
		head, ok := w.buffered[w.next]
		if !ok {
			break
		}
		delete(w.buffered, w.next)
		w.resolve(head)
		w.next++
		advanced = true
	}
	if !advanced {
		return nil
	}
	if len(w.pending) >= w.config.FlushSize {
		return w.flush()
	}
	return nil
}

func (w *OrderedWriter) reject(result models.SegmentResult) error {
	w.stats.Duplicates++
	metrics.Segments.WithLabelValues("duplicate").Inc()
	zap.S().Warnf("rejecting result: %v: %d (%s)", ErrDuplicateSegment, result.Index, result.URI)
	return nil
}

func (w *OrderedWriter) resolve(result models.SegmentResult) {
	if result.OK() {
		w.pending = append(w.pending, result.Data...)
		w.stats.Written++
		metrics.Segments.WithLabelValues("written").Inc()
	} else {
		segErr := asSegmentError(result)
		w.stats.Failed++
		w.stats.Failures = append(w.stats.Failures, segErr)
		metrics.Segments.WithLabelValues("failed").Inc()
		zap.S().Warnf("abandoning %v", segErr)
	}
	w.dirty = &models.CheckpointRecord{
		Index: result.Index,
		URI:   result.URI,
	}
	w.release()

	w.resolved++
	if w.config.OnProgress != nil && w.config.Total > 0 {
		w.config.OnProgress(float64(w.resolved) / float64(w.config.Total))
	}
}

// flush writes the pending bytes, syncs the artifact and only then
// records the checkpoint, so a record never points past durable data.
func (w *OrderedWriter) flush() error {
	if w.dirty == nil {
		return nil
	}
	if len(w.pending) > 0 {
		n, err := w.artifact.Write(w.pending)
		if err != nil {
			return fmt.Errorf("%w: write artifact: %v", ErrIO, err)
		}
		if n != len(w.pending) {
			return fmt.Errorf("%w: short write (%d of %d bytes)", ErrIO, n, len(w.pending))
		}
		if err := w.artifact.Sync(); err != nil {
			return fmt.Errorf("%w: sync artifact: %v", ErrIO, err)
		}
		w.stats.Offset += int64(n)
		w.stats.Bytes += int64(n)
		metrics.BytesWritten.Add(float64(n))
		w.pending = w.pending[:0]
	}

	record := *w.dirty
	record.Offset = w.stats.Offset
	if err := w.log.Append(record); err != nil {
		return err
	}
	w.stats.Last = &record
	w.dirty = nil
	return nil
}

func (w *OrderedWriter) release() {
	if w.config.Release != nil {
		w.config.Release()
	}
}

func asSegmentError(result models.SegmentResult) *SegmentError {
	if segErr, ok := result.Err.(*SegmentError); ok {
		return segErr
	}
	return &SegmentError{
		Index: result.Index,
		URI:   result.URI,
		Err:   result.Err,
	}
}
