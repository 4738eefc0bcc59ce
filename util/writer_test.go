package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"hlsgrab/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recorder captures artifact and checkpoint calls in a single timeline.
type recorder struct {
	data     bytes.Buffer
	synced   int64
	records  []models.CheckpointRecord
	events   []string
	writeErr error
	failOn   int
	writes   int
}

type recorderArtifact struct{ r *recorder }

func (a recorderArtifact) Write(p []byte) (int, error) {
	a.r.writes++
	if a.r.writeErr != nil && a.r.writes >= a.r.failOn {
		return 0, a.r.writeErr
	}
	a.r.events = append(a.r.events, "write")
	return a.r.data.Write(p)
}

func (a recorderArtifact) Sync() error {
	a.r.events = append(a.r.events, "sync")
	a.r.synced = int64(a.r.data.Len())
	return nil
}

type recorderLog struct{ r *recorder }

func (l recorderLog) Append(record models.CheckpointRecord) error {
	if record.Offset > l.r.synced {
		return fmt.Errorf("checkpoint offset %d ahead of synced %d", record.Offset, l.r.synced)
	}
	l.r.events = append(l.r.events, "append")
	l.r.records = append(l.r.records, record)
	return nil
}

func segmentPayload(index uint64) []byte {
	return []byte(fmt.Sprintf("<segment-%02d>", index))
}

func okResult(index uint64) models.SegmentResult {
	return models.SegmentResult{
		Index: index,
		URI:   fmt.Sprintf("https://cdn/seg-%d.ts", index),
		Data:  segmentPayload(index),
	}
}

func failedResult(index uint64) models.SegmentResult {
	return models.SegmentResult{
		Index: index,
		URI:   fmt.Sprintf("https://cdn/seg-%d.ts", index),
		Err:   errors.New("boom"),
	}
}

func runWriter(
	t *testing.T,
	r *recorder,
	config WriterConfig,
	results ...models.SegmentResult,
) (WriteStats, error) {
	t.Helper()
	ch := make(chan models.SegmentResult, len(results))
	for _, result := range results {
		ch <- result
	}
	close(ch)
	writer := NewOrderedWriter(recorderArtifact{r}, recorderLog{r}, config)
	return writer.Run(context.Background(), ch)
}

func TestOrderedWriterReordersResults(t *testing.T) {
	const total = 20
	order := rand.Perm(total)
	results := make([]models.SegmentResult, 0, total)
	var expected bytes.Buffer
	for i := range total {
		expected.Write(segmentPayload(uint64(i)))
	}
	for _, i := range order {
		results = append(results, okResult(uint64(i)))
	}

	r := &recorder{}
	released := 0
	stats, err := runWriter(t, r, WriterConfig{
		Total:   total,
		Release: func() { released++ },
	}, results...)
	require.NoError(t, err)

	assert.Equal(t, expected.String(), r.data.String())
	assert.Equal(t, total, stats.Written)
	assert.Equal(t, total, released)
	assert.Equal(t, int64(expected.Len()), stats.Offset)
	require.NotNil(t, stats.Last)
	assert.Equal(t, uint64(total-1), stats.Last.Index)
	assert.Equal(t, int64(expected.Len()), stats.Last.Offset)
}

func TestOrderedWriterSyncsBeforeCheckpoint(t *testing.T) {
	r := &recorder{}
	_, err := runWriter(t, r, WriterConfig{Total: 3},
		okResult(1), okResult(0), okResult(2),
	)
	require.NoError(t, err)

	// segment 1 waits for 0, then 0..1 and 2 are two runs
	assert.Equal(t, []string{
		"write", "sync", "append",
		"write", "sync", "append",
	}, r.events)
	require.Len(t, r.records, 2)
	assert.Equal(t, uint64(1), r.records[0].Index)
	assert.Equal(t, int64(len(segmentPayload(0))+len(segmentPayload(1))), r.records[0].Offset)
	assert.Equal(t, uint64(2), r.records[1].Index)
}

func TestOrderedWriterCoalescesUpToFlushSize(t *testing.T) {
	r := &recorder{}
	stats, err := runWriter(t, r, WriterConfig{Total: 4, FlushSize: 1 << 20},
		okResult(0), okResult(1), okResult(2), okResult(3),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"write", "sync", "append"}, r.events)
	assert.Equal(t, 4, stats.Written)
	require.Len(t, r.records, 1)
	assert.Equal(t, uint64(3), r.records[0].Index)
}

func TestOrderedWriterAbandonsFailedHead(t *testing.T) {
	r := &recorder{}
	released := 0
	stats, err := runWriter(t, r, WriterConfig{
		Total:   4,
		Release: func() { released++ },
	}, okResult(2), failedResult(1), okResult(3), okResult(0))
	require.NoError(t, err)

	expected := string(segmentPayload(0)) + string(segmentPayload(2)) + string(segmentPayload(3))
	assert.Equal(t, expected, r.data.String())
	assert.Equal(t, 3, stats.Written)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, released)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, uint64(1), stats.Failures[0].Index)
	assert.Equal(t, "https://cdn/seg-1.ts", stats.Failures[0].URI)
}

func TestOrderedWriterRejectsDuplicates(t *testing.T) {
	r := &recorder{}
	stats, err := runWriter(t, r, WriterConfig{Total: 3},
		okResult(0), okResult(0), okResult(2), okResult(2), okResult(1), okResult(7),
	)
	require.NoError(t, err)

	expected := string(segmentPayload(0)) + string(segmentPayload(1)) + string(segmentPayload(2))
	assert.Equal(t, expected, r.data.String())
	assert.Equal(t, 3, stats.Written)
	assert.Equal(t, 3, stats.Duplicates)
}

func TestOrderedWriterLogsDuplicates(t *testing.T) {
	logCore, logs := observer.New(zap.WarnLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(logCore)))

	_, err := runWriter(t, &recorder{}, WriterConfig{Total: 2},
		okResult(0), okResult(0), okResult(1),
	)
	require.NoError(t, err)

	duplicates := logs.FilterMessageSnippet(ErrDuplicateSegment.Error()).All()
	require.Len(t, duplicates, 1)
	assert.Contains(t, duplicates[0].Message, ": 0 (")
}

func TestOrderedWriterResumesFromOffset(t *testing.T) {
	r := &recorder{}
	stats, err := runWriter(t, r, WriterConfig{
		StartIndex:  5,
		StartOffset: 1000,
		Total:       2,
	}, okResult(6), okResult(5))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Written)
	assert.Equal(t, int64(1000+len(segmentPayload(5))+len(segmentPayload(6))), stats.Offset)
	require.NotNil(t, stats.Last)
	assert.Equal(t, uint64(6), stats.Last.Index)
}

func TestOrderedWriterDiscardsAfterGap(t *testing.T) {
	r := &recorder{}
	stats, err := runWriter(t, r, WriterConfig{Total: 5},
		okResult(0), okResult(1), okResult(3), okResult(4),
	)
	require.NoError(t, err)

	assert.Equal(t, string(segmentPayload(0))+string(segmentPayload(1)), r.data.String())
	assert.Equal(t, 2, stats.Discarded)
	require.NotNil(t, stats.Last)
	assert.Equal(t, uint64(1), stats.Last.Index)
}

func TestOrderedWriterStopsOnWriteError(t *testing.T) {
	r := &recorder{
		writeErr: errors.New("disk full"),
		failOn:   2,
	}
	aborted := false
	released := 0
	stats, err := runWriter(t, r, WriterConfig{
		Total:   4,
		Release: func() { released++ },
		Abort:   func() { aborted = true },
	}, okResult(0), okResult(1), okResult(3), okResult(2))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrIO)
	assert.True(t, aborted)
	assert.Equal(t, 4, released)
	require.Len(t, r.records, 1)
	assert.Equal(t, uint64(0), r.records[0].Index)
	assert.Equal(t, string(segmentPayload(0)), r.data.String())
	assert.Equal(t, int64(len(segmentPayload(0))), stats.Offset)
}

func TestOrderedWriterReportsProgress(t *testing.T) {
	r := &recorder{}
	var progress []float64
	_, err := runWriter(t, r, WriterConfig{
		Total:      2,
		OnProgress: func(p float64) { progress = append(progress, p) },
	}, okResult(1), okResult(0))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1}, progress)
}
