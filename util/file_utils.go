package util

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	TempExtension       = ".tmp"
	CheckpointExtension = ".log"
)

var (
	// track open files to prevent leaks
	openFiles      = make(map[string]*os.File)
	openFilesMutex sync.RWMutex
)

// ArtifactPaths groups the three files a single download touches.
type ArtifactPaths struct {
	Name       string // output path without extension
	Temp       string // <name>.tmp, receives segment bytes
	Checkpoint string // <name>.log, one record per flush
	Final      string // destination after finalize
}

// NewArtifactPaths derives the working and final paths of outputPath.
// When outputPath has no extension, defaultExt is used for the final file.
func NewArtifactPaths(outputPath string, defaultExt string) ArtifactPaths {
	ext := filepath.Ext(outputPath)
	name := strings.TrimSuffix(outputPath, ext)
	if ext == "" || ext == TempExtension || ext == CheckpointExtension {
		ext = defaultExt
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ArtifactPaths{
		Name:       name,
		Temp:       name + TempExtension,
		Checkpoint: name + CheckpointExtension,
		Final:      name + ext,
	}
}

// opens the file for appending, creating it when missing, and tracks it for cleanup
func SafeOpenAppend(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	openFilesMutex.Lock()
	openFiles[path] = file
	openFilesMutex.Unlock()

	return file, nil
}

// closes a file and removes it from tracking
func SafeCloseFile(file *os.File) error {
	if file == nil {
		return nil
	}

	path := file.Name()
	err := file.Close()

	openFilesMutex.Lock()
	delete(openFiles, path)
	openFilesMutex.Unlock()

	return err
}

// forcefully closes all tracked files
func CleanupOpenFiles() {
	openFilesMutex.Lock()
	defer openFilesMutex.Unlock()

	for path, file := range openFiles {
		if file != nil {
			zap.S().Warnf("force closing leaked file: %s", path)
			file.Close()
		}
	}
	openFiles = make(map[string]*os.File)
}

// ensures a file path is within the downloads directory
func EnsureFileInDownloadsDir(downloadsDir string, fileName string) string {
	if filepath.IsAbs(fileName) || downloadsDir == "" {
		return fileName
	}
	return filepath.Join(downloadsDir, fileName)
}

func EnsureDownloadDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// CleanupStalePartials removes .tmp and .log leftovers older than maxAge.
// It returns the removed paths.
func CleanupStalePartials(dir string, maxAge time.Duration) ([]string, error) {
	var removed []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != TempExtension && ext != CheckpointExtension {
			return nil
		}

		if time.Since(info.ModTime()) > maxAge {
			zap.S().Debugf("removing stale partial file: %s", path)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			removed = append(removed, path)
		}

		return nil
	})
	return removed, err
}
