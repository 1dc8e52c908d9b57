// Package ttsutils provides file and path utilities shared by the gateway:
// reference-audio extension checks, filename sanitization for uploads, size
// formatting for validation messages, and model artifact resolution for the
// local engine runtimes.
package ttsutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "CACHE_DIR"
)

// Application directory constants.
const (
	appName               = "voice-gateway"
	modelsDirName         = "models"
	dotCache              = ".cache"
	tmpDir                = "/tmp"
	defaultDirPermissions = 0o750
	dot                   = "."
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Size formatting constants.
const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// Reference audio extensions accepted by every engine.
const (
	extWAV  = ".wav"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extFLAC = ".flac"
	extM4A  = ".m4a"
)

const invalidCharReplacement = "_"

// Error messages and formats.
const (
	errArtifactNotFoundMsg       = "model artifact not found"
	errFmtFailedToCreateDir      = "failed to create directory %s: %w"
	errFmtCouldNotResolvePath    = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingArtifact  = "error checking artifact path %q: %w"
	errFmtArtifactNotFound       = "%w: %s"
)

// ErrArtifactNotFound is returned when a model artifact cannot be located in
// any of the standard search locations.
var ErrArtifactNotFound = errors.New(errArtifactNotFoundMsg)

// CacheDir returns the gateway's cache directory, honoring CACHE_DIR and
// falling back to ~/.cache/voice-gateway.
func CacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(tmpDir, appName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// EnsureDir creates a directory (and parents) if it does not exist.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// ResolveArtifact resolves the absolute path of a model artifact by checking,
// in order: the name itself, a local models directory, and the cache.
func ResolveArtifact(name string) (string, error) {
	candidatePaths := []string{
		name,
		filepath.Join(modelsDirName, name),
		filepath.Join(CacheDir(), modelsDirName, name),
	}

	for _, path := range candidatePaths {
		resolvedPath, found, err := checkCandidate(path)
		if err != nil {
			return "", err
		}

		if found {
			return resolvedPath, nil
		}
	}

	return "", fmt.Errorf(errFmtArtifactNotFound, ErrArtifactNotFound, name)
}

// checkCandidate reports whether a file exists at path. Errors other than
// "not found" abort the search.
func checkCandidate(path string) (resolvedPath string, found bool, err error) {
	_, statErr := os.Stat(path)
	if statErr == nil {
		absPath, absErr := filepath.Abs(path)
		if absErr != nil {
			return "", false, fmt.Errorf(errFmtCouldNotResolvePath, path, absErr)
		}

		return absPath, true, nil
	}

	if !os.IsNotExist(statErr) {
		return "", false, fmt.Errorf(errFmtErrorCheckingArtifact, path, statErr)
	}

	return "", false, nil
}

// FormatFileSize renders a byte count for user-facing validation messages.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsValidAudioFile checks a filename against the reference-audio allow-list.
func IsValidAudioFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case extWAV, extMP3, extOGG, extFLAC, extM4A:
		return true
	default:
		return false
	}
}

// FileExtension returns the lowercase extension without the leading dot.
func FileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), dot))
}

// SanitizeFilename replaces characters that are unsafe in staged upload
// names on common filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}
