package util

import (
	"os"
	"path/filepath"
	"testing"

	"hlsgrab/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) (*CheckpointLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.log")
	log, err := OpenCheckpointLog(path)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log, path
}

func TestCheckpointLogEmpty(t *testing.T) {
	log, _ := openTestLog(t)

	record, err := log.Load()
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCheckpointLogAppendAndLoad(t *testing.T) {
	log, path := openTestLog(t)

	require.NoError(t, log.Append(models.CheckpointRecord{Index: 0, Offset: 100, URI: "https://cdn/a.ts"}))
	require.NoError(t, log.Append(models.CheckpointRecord{Index: 3, Offset: 400, URI: "https://cdn/d.ts"}))

	record, err := log.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.CheckpointRecord{Index: 3, Offset: 400, URI: "https://cdn/d.ts"}, *record)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0\t100\thttps://cdn/a.ts\n3\t400\thttps://cdn/d.ts\n", string(content))
}

func TestCheckpointLogIgnoresTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.log")
	err := os.WriteFile(path, []byte("0\t100\thttps://cdn/a.ts\n1\t2"), 0o644)
	require.NoError(t, err)

	log, err := OpenCheckpointLog(path)
	require.NoError(t, err)
	defer log.Close()

	record, err := log.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint64(0), record.Index)
	assert.Equal(t, int64(100), record.Offset)
}

func TestCheckpointLogRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.log")
	err := os.WriteFile(path, []byte("zero\t100\ta.ts\n"), 0o644)
	require.NoError(t, err)

	log, err := OpenCheckpointLog(path)
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Load()
	assert.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestCheckpointLogResetAndRemove(t *testing.T) {
	log, path := openTestLog(t)

	require.NoError(t, log.Append(models.CheckpointRecord{Index: 0, Offset: 10, URI: "a"}))
	require.NoError(t, log.Reset())

	record, err := log.Load()
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, log.Append(models.CheckpointRecord{Index: 1, Offset: 20, URI: "b"}))
	record, err = log.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint64(1), record.Index)

	require.NoError(t, log.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReconcileArtifactTruncatesTail(t *testing.T) {
	tmpPath := filepath.Join(t.TempDir(), "video.tmp")
	require.NoError(t, os.WriteFile(tmpPath, make([]byte, 150), 0o644))

	err := ReconcileArtifact(tmpPath, &models.CheckpointRecord{Index: 1, Offset: 100})
	require.NoError(t, err)

	info, err := os.Stat(tmpPath)
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Size())
}

func TestReconcileArtifactRejectsShortFile(t *testing.T) {
	tmpPath := filepath.Join(t.TempDir(), "video.tmp")
	require.NoError(t, os.WriteFile(tmpPath, make([]byte, 50), 0o644))

	err := ReconcileArtifact(tmpPath, &models.CheckpointRecord{Index: 1, Offset: 100})
	assert.ErrorIs(t, err, ErrCheckpointAhead)

	err = ReconcileArtifact(filepath.Join(t.TempDir(), "missing.tmp"), &models.CheckpointRecord{Offset: 1})
	assert.ErrorIs(t, err, ErrCheckpointAhead)
}

func TestCheckpointLogReconcileFallsBack(t *testing.T) {
	log, path := openTestLog(t)
	tmpPath := filepath.Join(filepath.Dir(path), "video.tmp")

	require.NoError(t, log.Append(models.CheckpointRecord{Index: 0, Offset: 100, URI: "a"}))
	require.NoError(t, log.Append(models.CheckpointRecord{Index: 1, Offset: 200, URI: "b"}))
	require.NoError(t, log.Append(models.CheckpointRecord{Index: 2, Offset: 300, URI: "c"}))

	// bytes of segment 2 never reached the disk
	require.NoError(t, os.WriteFile(tmpPath, make([]byte, 250), 0o644))

	record, err := log.Reconcile(tmpPath)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, uint64(1), record.Index)

	info, err := os.Stat(tmpPath)
	require.NoError(t, err)
	assert.Equal(t, int64(200), info.Size())
}

func TestCheckpointLogReconcileNothingUsable(t *testing.T) {
	log, path := openTestLog(t)
	tmpPath := filepath.Join(filepath.Dir(path), "video.tmp")

	require.NoError(t, log.Append(models.CheckpointRecord{Index: 0, Offset: 100, URI: "a"}))
	require.NoError(t, os.WriteFile(tmpPath, make([]byte, 10), 0o644))

	record, err := log.Reconcile(tmpPath)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestNewArtifactPaths(t *testing.T) {
	paths := NewArtifactPaths("/data/show/episode.mp4", ".mp4")
	assert.Equal(t, "/data/show/episode", paths.Name)
	assert.Equal(t, "/data/show/episode.tmp", paths.Temp)
	assert.Equal(t, "/data/show/episode.log", paths.Checkpoint)
	assert.Equal(t, "/data/show/episode.mp4", paths.Final)

	paths = NewArtifactPaths("episode", ".ts")
	assert.Equal(t, "episode.tmp", paths.Temp)
	assert.Equal(t, "episode.ts", paths.Final)
}
