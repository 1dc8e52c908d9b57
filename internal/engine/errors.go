// Package engine implements the synthesis backend registry and the three
// engine adapters: the edge-tts cloud service, the index-tts2 local cloning
// runtime, and the coqui-tts local multilingual runtime.
package engine

import (
	"errors"
	"fmt"
)

// EmotionVectorLength is the required number of emotion intensities.
const EmotionVectorLength = 8

// Static errors shared by all engine adapters. Text-shape problems are the
// text package's sentinels; these cover the engine-specific failures.
var (
	// ErrReferenceNotFound indicates a referenced audio path is absent.
	ErrReferenceNotFound = errors.New("reference audio not found")
	// ErrInvalidEmotionVector indicates an emotion vector of the wrong length.
	ErrInvalidEmotionVector = errors.New("emotion vector must have exactly 8 elements")
	// ErrEngineUnavailable indicates the backend's model failed to load.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrUnknownEngine indicates a request for an unregistered engine kind.
	ErrUnknownEngine = errors.New("unknown engine")
	// ErrUnsupportedOperation indicates the engine does not implement the
	// requested capability.
	ErrUnsupportedOperation = errors.New("operation not supported by engine")
)

// Helper constructors for dynamic error detail.

func newReferenceNotFoundError(path string) error {
	return fmt.Errorf("%w: %s", ErrReferenceNotFound, path)
}

func newEngineUnavailableError(kind Kind, reason error) error {
	if reason == nil {
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, kind)
	}

	return fmt.Errorf("%w: %s: %w", ErrEngineUnavailable, kind, reason)
}

func newInvalidEmotionVectorError(length int) error {
	return fmt.Errorf("%w: got %d", ErrInvalidEmotionVector, length)
}
