package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"hlsgrab/enums"
	"hlsgrab/metrics"
	"hlsgrab/models"
	"hlsgrab/util"
	"hlsgrab/util/parser"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/manifest_source.go -package=mocks hlsgrab/core ManifestSource

// ManifestSource returns the playlist text for a URI.
type ManifestSource interface {
	FetchManifest(ctx context.Context, uri string, headers map[string]string) ([]byte, error)
}

type Request struct {
	ManifestURL string
	OutputPath  string
	Headers     map[string]string
	KeyURL      string // overrides the key URI declared by the playlist
}

type Downloader struct {
	source  ManifestSource
	config  *models.DownloadConfig
	fetcher util.SegmentFetcher

	// OnState, when set, observes every state transition.
	OnState func(id string, state enums.PipelineState)
}

func New(source ManifestSource, config *models.DownloadConfig) *Downloader {
	config = models.GetDownloadConfig(config)
	return &Downloader{
		source:  source,
		config:  config,
		fetcher: util.NewFetcher(config, nil),
	}
}

// run carries the state of a single Download call.
type run struct {
	*Downloader

	request   Request
	headers   map[string]string
	outcome   *models.DownloadOutcome
	manifest  *models.StreamManifest
	decryptor *util.Decryptor
	paths     util.ArtifactPaths
	log       *util.CheckpointLog
	artifact  *os.File
	offset    int64
	pending   []models.SegmentRef
}

// Download drives one stream from manifest to final file. It never
// panics on segment trouble: segment failures are counted, everything
// else ends in a Failed outcome with the temporary files kept for resume.
func (d *Downloader) Download(ctx context.Context, request Request) *models.DownloadOutcome {
	started := time.Now()
	r := &run{
		Downloader: d,
		request:    request,
		headers:    mergeHeaders(d.config.Headers, request.Headers),
		outcome: &models.DownloadOutcome{
			ID:          uuid.NewString(),
			State:       enums.PipelineStateIdle,
			ManifestURL: request.ManifestURL,
		},
	}
	defer func() {
		r.outcome.Elapsed = time.Since(started)
		metrics.Downloads.WithLabelValues(string(r.outcome.Status)).Inc()
	}()
	defer r.closeFiles()

	zap.S().Infof("[%s] downloading %s", r.outcome.ID, request.ManifestURL)

	steps := []struct {
		next enums.PipelineState
		step func(context.Context) error
	}{
		{enums.PipelineStateManifestResolved, r.resolveManifest},
		{enums.PipelineStateKeyResolved, r.resolveKey},
		{enums.PipelineStateResuming, r.resume},
		{enums.PipelineStateDownloading, r.download},
		{enums.PipelineStateFinalizing, r.finalize},
	}
	for _, s := range steps {
		if err := s.step(ctx); err != nil {
			return r.fail(err)
		}
		r.transition(s.next)
	}

	r.outcome.Status = enums.OutcomeStatusCompleted
	r.transition(enums.PipelineStateCompleted)
	zap.S().Infof(
		"[%s] completed %s (%s, %d/%d segments failed)",
		r.outcome.ID, r.outcome.OutputPath,
		humanize.Bytes(uint64(r.outcome.BytesWritten)),
		r.outcome.FailedSegments, r.outcome.PendingSegments,
	)
	return r.outcome
}

func (r *run) transition(state enums.PipelineState) {
	zap.S().Debugf("[%s] %s -> %s", r.outcome.ID, r.outcome.State, state)
	r.outcome.State = state
	if r.OnState != nil {
		r.OnState(r.outcome.ID, state)
	}
}

func (r *run) fail(err error) *models.DownloadOutcome {
	failedIn := r.outcome.State
	r.outcome.Fail(failedIn, err)
	zap.S().Errorf("[%s] failed after %s: %v", r.outcome.ID, failedIn, err)
	if r.OnState != nil {
		r.OnState(r.outcome.ID, enums.PipelineStateFailed)
	}
	return r.outcome
}

// Idle -> ManifestResolved
func (r *run) resolveManifest(ctx context.Context) error {
	manifestURL := r.request.ManifestURL
	content, err := r.source.FetchManifest(ctx, manifestURL, r.headers)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch manifest: %v", util.ErrParse, err)
	}

	manifest, err := parser.ParseM3U8Content(content, manifestURL)
	var masterErr *parser.MasterPlaylistError
	if errors.As(err, &masterErr) {
		zap.S().Infof(
			"[%s] master playlist, following variant %s (%d bps)",
			r.outcome.ID, masterErr.VariantURL, masterErr.Bandwidth,
		)
		manifestURL = masterErr.VariantURL
		content, err = r.source.FetchManifest(ctx, manifestURL, r.headers)
		if err != nil {
			return fmt.Errorf("%w: failed to fetch variant playlist: %v", util.ErrParse, err)
		}
		manifest, err = parser.ParseM3U8Content(content, manifestURL)
		if errors.As(err, &masterErr) {
			return fmt.Errorf("%w: variant %s is another master playlist", util.ErrParse, manifestURL)
		}
	}
	if err != nil {
		return err
	}

	r.manifest = manifest
	r.outcome.TotalSegments = len(manifest.Segments)
	zap.S().Debugf(
		"[%s] %d segments, %.0fs, encrypted: %t",
		r.outcome.ID, len(manifest.Segments), manifest.Duration, manifest.IsEncrypted(),
	)
	return nil
}

// ManifestResolved -> KeyResolved
func (r *run) resolveKey(ctx context.Context) error {
	keyRef := r.manifest.Key
	if keyRef == nil {
		if r.request.KeyURL != "" {
			zap.S().Warnf("[%s] playlist is not encrypted, ignoring key url %s", r.outcome.ID, r.request.KeyURL)
		}
		decryptor, err := util.NewDecryptor(nil)
		r.decryptor = decryptor
		return err
	}

	keyURL := keyRef.URI
	if r.request.KeyURL != "" {
		keyURL = r.request.KeyURL
	}
	keyBytes, err := r.fetcher.Fetch(ctx, keyURL, r.headers)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrKeyFetch, err)
	}
	decryptor, err := util.NewDecryptor(&models.DecryptionKey{
		Key:    keyBytes,
		IV:     keyRef.IV,
		Method: keyRef.Method,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", util.ErrKeyFetch, keyURL, err)
	}
	r.decryptor = decryptor
	return nil
}

// KeyResolved -> Resuming
func (r *run) resume(_ context.Context) error {
	r.paths = util.NewArtifactPaths(r.request.OutputPath, r.config.Extension)
	r.outcome.OutputPath = r.paths.Final

	if err := util.EnsureDownloadDir(r.paths.Temp); err != nil {
		return fmt.Errorf("%w: %v", util.ErrIO, err)
	}
	log, err := util.OpenCheckpointLog(r.paths.Checkpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrIO, err)
	}
	r.log = log

	record, err := log.Reconcile(r.paths.Temp)
	if err != nil {
		return err
	}
	if record != nil {
		if err := r.validateCheckpoint(record); err != nil {
			return err
		}
		r.offset = record.Offset
		r.pending = r.manifest.Pending(&record.Index)
		r.outcome.Resumed = true
		zap.S().Infof(
			"[%s] resuming after segment %d (%s already on disk)",
			r.outcome.ID, record.Index, humanize.Bytes(uint64(record.Offset)),
		)
	} else {
		if err := r.startFresh(); err != nil {
			return err
		}
		r.pending = r.manifest.Pending(nil)
	}

	artifact, err := util.SafeOpenAppend(r.paths.Temp)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrIO, err)
	}
	r.artifact = artifact
	r.outcome.PendingSegments = len(r.pending)
	return nil
}

func (r *run) validateCheckpoint(record *models.CheckpointRecord) error {
	if record.Index >= uint64(len(r.manifest.Segments)) {
		return fmt.Errorf(
			"%w: checkpoint is at segment %d but the playlist has %d",
			util.ErrCheckpointMismatch, record.Index, len(r.manifest.Segments),
		)
	}
	expected := r.manifest.Segments[record.Index].URI
	if !parser.SamePath(record.URI, expected) {
		return fmt.Errorf(
			"%w: segment %d was %s, the playlist now has %s",
			util.ErrCheckpointMismatch, record.Index, record.URI, expected,
		)
	}
	return nil
}

func (r *run) startFresh() error {
	if err := os.Truncate(r.paths.Temp, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", util.ErrIO, err)
	}
	if err := r.log.Reset(); err != nil {
		return err
	}
	r.offset = 0
	return nil
}

// Resuming -> Downloading
func (r *run) download(ctx context.Context) error {
	if len(r.pending) == 0 {
		zap.S().Infof("[%s] nothing left to download", r.outcome.ID)
		return nil
	}

	runCtx := ctx
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}
	dispatchCtx, abort := context.WithCancel(runCtx)
	defer abort()

	coordinator := util.NewCoordinator(r.fetcher, r.decryptor, r.headers, r.config)
	results := make(chan models.SegmentResult, r.config.Concurrency)
	go coordinator.Run(dispatchCtx, r.pending, results)

	writer := util.NewOrderedWriter(r.artifact, r.log, util.WriterConfig{
		FlushSize:   r.config.FlushSize,
		StartIndex:  r.pending[0].Index,
		StartOffset: r.offset,
		Total:       len(r.pending),
		Release:     coordinator.Release,
		Abort:       abort,
		OnProgress:  r.config.ProgressUpdater,
	})
	stats, err := writer.Run(runCtx, results)
	if err != nil {
		return err
	}
	if err := runCtx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: run timeout of %s exceeded", util.ErrTimeout, r.config.RunTimeout)
		}
		return fmt.Errorf("%w: %v", util.ErrInterrupted, err)
	}
	if resolved := stats.Written + stats.Failed; resolved != len(r.pending) {
		return fmt.Errorf(
			"%w: only %d of %d segments were resolved",
			util.ErrInterrupted, resolved, len(r.pending),
		)
	}

	r.applyFailureRate(stats)
	return nil
}

func (r *run) applyFailureRate(stats util.WriteStats) {
	r.outcome.FailedSegments = stats.Failed
	if len(r.pending) == 0 {
		return
	}
	rate := float64(stats.Failed) / float64(len(r.pending))
	r.outcome.FailureRate = rate
	r.outcome.Warning = rate > r.config.WarnThreshold
	r.outcome.Severe = rate > r.config.SevereThreshold

	switch {
	case r.outcome.Severe:
		zap.S().Errorf(
			"[%s] %d of %d segments failed (%.1f%%), output is likely unusable",
			r.outcome.ID, stats.Failed, len(r.pending), rate*100,
		)
	case r.outcome.Warning:
		zap.S().Warnf(
			"[%s] %d of %d segments failed (%.1f%%), output may be corrupted",
			r.outcome.ID, stats.Failed, len(r.pending), rate*100,
		)
	}
	for _, failure := range stats.Failures {
		zap.S().Debugf("[%s] missing %v", r.outcome.ID, failure)
	}
}

// Downloading -> Finalizing
func (r *run) finalize(_ context.Context) error {
	if err := r.artifact.Sync(); err != nil {
		return fmt.Errorf("%w: sync artifact: %v", util.ErrIO, err)
	}
	if err := util.SafeCloseFile(r.artifact); err != nil {
		return fmt.Errorf("%w: close artifact: %v", util.ErrIO, err)
	}
	r.artifact = nil

	info, err := os.Stat(r.paths.Temp)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrIO, err)
	}
	if err := os.Rename(r.paths.Temp, r.paths.Final); err != nil {
		return fmt.Errorf("%w: rename %s: %v", util.ErrIO, r.paths.Temp, err)
	}
	r.outcome.BytesWritten = info.Size()

	if err := r.log.Remove(); err != nil {
		zap.S().Warnf("[%s] %v", r.outcome.ID, err)
	}
	r.log = nil
	return nil
}

func (r *run) closeFiles() {
	if r.artifact != nil {
		if err := util.SafeCloseFile(r.artifact); err != nil {
			zap.S().Warnf("[%s] failed to close %s: %v", r.outcome.ID, r.paths.Temp, err)
		}
		r.artifact = nil
	}
	if r.log != nil {
		if err := r.log.Close(); err != nil {
			zap.S().Warnf("[%s] failed to close %s: %v", r.outcome.ID, r.paths.Checkpoint, err)
		}
		r.log = nil
	}
}

func mergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	headers := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		headers[key] = value
	}
	for key, value := range extra {
		headers[key] = value
	}
	return headers
}
