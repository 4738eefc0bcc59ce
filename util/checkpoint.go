package util

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"hlsgrab/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CheckpointLog is the append-only progress file kept next to the
// temporary artifact. Each line is "<index>\t<offset>\t<uri>".
type CheckpointLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func OpenCheckpointLog(path string) (*CheckpointLog, error) {
	file, err := SafeOpenAppend(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint log")
	}
	return &CheckpointLog{
		path: path,
		file: file,
	}, nil
}

// Load returns the newest record, or nil when the log is empty.
func (l *CheckpointLog) Load() (*models.CheckpointRecord, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[len(records)-1]
	return &record, nil
}

// LoadAll returns every complete record in append order.
// A trailing line without a newline is a torn write and is skipped.
func (l *CheckpointLog) LoadAll() ([]models.CheckpointRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read checkpoint log")
	}

	lines := bytes.Split(content, []byte{'\n'})
	if torn := lines[len(lines)-1]; len(torn) > 0 {
		zap.S().Warnf("ignoring torn checkpoint line in %s: %q", l.path, torn)
	}
	lines = lines[:len(lines)-1]

	records := make([]models.CheckpointRecord, 0, len(lines))
	for lineNum, line := range lines {
		if len(line) == 0 {
			continue
		}
		record, err := parseCheckpointLine(string(line))
		if err != nil {
			return nil, fmt.Errorf(
				"%w: line %d of %s: %v",
				ErrCheckpointMismatch, lineNum+1, l.path, err,
			)
		}
		records = append(records, record)
	}
	return records, nil
}

// Append writes one record and forces it to stable storage.
func (l *CheckpointLog) Append(record models.CheckpointRecord) error {
	if strings.ContainsAny(record.URI, "\t\n") {
		return fmt.Errorf("%w: segment uri contains a separator", ErrIO)
	}
	line := formatCheckpointLine(record)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("%w: append checkpoint: %v", ErrIO, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync checkpoint: %v", ErrIO, err)
	}
	return nil
}

// Reset drops every record, used when a download restarts from scratch.
func (l *CheckpointLog) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: reset checkpoint: %v", ErrIO, err)
	}
	return l.file.Sync()
}

func (l *CheckpointLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := SafeCloseFile(l.file)
	l.file = nil
	return err
}

// Remove closes the log and deletes it from disk.
func (l *CheckpointLog) Remove() error {
	if err := l.Close(); err != nil {
		zap.S().Warnf("failed to close checkpoint log %s: %v", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove checkpoint log")
	}
	return nil
}

// Reconcile finds the newest record the temporary artifact can honour,
// truncating the artifact to that record's offset. It returns nil when
// no record is usable and the download has to start over.
func (l *CheckpointLog) Reconcile(tmpPath string) (*models.CheckpointRecord, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		err := ReconcileArtifact(tmpPath, &record)
		if err == nil {
			return &record, nil
		}
		if !errors.Is(err, ErrCheckpointAhead) {
			return nil, err
		}
		zap.S().Warnf(
			"checkpoint for segment %d claims %d bytes, more than %s holds",
			record.Index, record.Offset, tmpPath,
		)
	}
	return nil, nil
}

// ReconcileArtifact makes the artifact length equal the record offset.
// A longer artifact holds bytes written after the last checkpoint and is
// truncated; a shorter one cannot back the record.
func ReconcileArtifact(tmpPath string, record *models.CheckpointRecord) error {
	info, err := os.Stat(tmpPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCheckpointAhead
		}
		return fmt.Errorf("%w: stat artifact: %v", ErrIO, err)
	}
	size := info.Size()
	switch {
	case size < record.Offset:
		return ErrCheckpointAhead
	case size > record.Offset:
		zap.S().Debugf(
			"truncating %s from %d to %d bytes",
			tmpPath, size, record.Offset,
		)
		if err := os.Truncate(tmpPath, record.Offset); err != nil {
			return fmt.Errorf("%w: truncate artifact: %v", ErrIO, err)
		}
	}
	return nil
}

func formatCheckpointLine(record models.CheckpointRecord) string {
	return strconv.FormatUint(record.Index, 10) + "\t" +
		strconv.FormatInt(record.Offset, 10) + "\t" +
		record.URI + "\n"
}

func parseCheckpointLine(line string) (models.CheckpointRecord, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return models.CheckpointRecord{}, errors.New("expected three fields")
	}
	index, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return models.CheckpointRecord{}, errors.Wrap(err, "invalid index")
	}
	offset, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || offset < 0 {
		return models.CheckpointRecord{}, errors.Errorf("invalid offset %q", parts[1])
	}
	return models.CheckpointRecord{
		Index:  index,
		Offset: offset,
		URI:    parts[2],
	}, nil
}
