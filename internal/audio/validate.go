// Package audio validates uploaded reference recordings before they are
// handed to a synthesis engine. Validation problems are reported as data,
// not errors, so handlers can surface a user-facing message directly.
package audio

import (
	"fmt"
	"os"

	"github.com/book-expert/voice-gateway/internal/ttsutils"
)

// Size bounds for cloning references. Anything under MinReferenceBytes is
// shorter than the ~3 seconds of audio the cloning models need; anything
// over MaxReferenceBytes is rejected outright. Files up to
// RecommendedMaxBytes make ideal references.
const (
	MinReferenceBytes   = 10_000
	RecommendedMaxBytes = 5_000_000
	MaxReferenceBytes   = 50 * 1024 * 1024
)

// User-facing validation messages.
const (
	msgFileDoesNotExist = "File does not exist"
	msgInvalidFileType  = "Invalid file type"
	fmtFileTooSmall     = "Audio file too small: %s (minimum 3 seconds recommended)"
	fmtFileTooLarge     = "Audio file too large: %s (maximum 50MB)"
)

// ValidationResult describes the outcome of a reference-audio check.
type ValidationResult struct {
	Valid       bool   `json:"valid"`
	Size        int64  `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
	Recommended bool   `json:"recommended,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ValidateReference checks an on-disk audio file: existence, extension
// against the allow-list, and size bounds. The recommended flag marks files
// in the ideal cloning range without rejecting larger valid ones.
func ValidateReference(path string) ValidationResult {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return ValidationResult{Valid: false, Error: msgFileDoesNotExist}
	}

	if !ttsutils.IsValidAudioFile(path) {
		return ValidationResult{Valid: false, Error: msgInvalidFileType}
	}

	size := info.Size()

	if size < MinReferenceBytes {
		return ValidationResult{
			Valid: false,
			Error: fmt.Sprintf(fmtFileTooSmall, ttsutils.FormatFileSize(size)),
		}
	}

	if size > MaxReferenceBytes {
		return ValidationResult{
			Valid: false,
			Error: fmt.Sprintf(fmtFileTooLarge, ttsutils.FormatFileSize(size)),
		}
	}

	return ValidationResult{
		Valid:       true,
		Size:        size,
		Path:        path,
		Recommended: size > MinReferenceBytes && size < RecommendedMaxBytes,
	}
}
