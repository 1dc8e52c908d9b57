// Package staging manages per-request temporary files: every uploaded
// reference recording is staged to a uniquely-named path scoped to one
// request, and removed on every exit path once the request finishes.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-gateway/internal/ttsutils"
)

const stagedFilePermissions = 0o600

// Job tracks the staged input files of a single synthesis request. Staged
// paths are never shared between jobs; the uuid suffix keeps concurrent
// requests collision-free even for identical upload names.
type Job struct {
	dir    string
	log    *logger.Logger
	staged []string
}

// NewJob creates a staging job rooted at dir, which must already exist.
func NewJob(dir string, log *logger.Logger) *Job {
	return &Job{
		dir: dir,
		log: log,
	}
}

// Stage copies an upload to a unique temporary path and records it for
// cleanup. The returned path is fully written and closed.
func (j *Job) Stage(src io.Reader, originalName string) (string, error) {
	name := fmt.Sprintf(
		"%s_%s", uuid.NewString(), ttsutils.SanitizeFilename(filepath.Base(originalName)),
	)
	path := filepath.Join(j.dir, name)

	dst, createErr := os.OpenFile(
		path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, stagedFilePermissions,
	)
	if createErr != nil {
		return "", fmt.Errorf("failed to create staged file: %w", createErr)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	if copyErr != nil {
		j.remove(path)

		return "", fmt.Errorf("failed to write staged file %s: %w", path, copyErr)
	}

	if closeErr != nil {
		j.remove(path)

		return "", fmt.Errorf("failed to close staged file %s: %w", path, closeErr)
	}

	j.staged = append(j.staged, path)

	return path, nil
}

// OutputPath allocates a unique path for the synthesis result. The output is
// handed off to the response and is not removed by Cleanup.
func (j *Job) OutputPath(extension string) string {
	return filepath.Join(j.dir, fmt.Sprintf("output_%s.%s", uuid.NewString(), extension))
}

// Staged returns the staged input paths recorded so far.
func (j *Job) Staged() []string {
	return j.staged
}

// Cleanup removes every staged input file. It is safe to call more than
// once and runs on success and failure alike.
func (j *Job) Cleanup() {
	for _, path := range j.staged {
		j.remove(path)
	}

	j.staged = nil
}

func (j *Job) remove(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		j.log.Warn("Failed to remove staged file '%s': %v", path, removeErr)
	}
}
