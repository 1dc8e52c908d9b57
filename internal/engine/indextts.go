package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/text"
)

// Default index-tts2 runtime settings.
const (
	defaultIndexBinary  = "indextts"
	indexConfigFileName = "config.yaml"
	defaultIndexTimeout = 300 * time.Second
)

// IndexTTS is the local voice-cloning engine with emotional control. Each
// synthesis call shells out to the index-tts2 inference runtime; calls are
// serialized because the runtime is not reentrant.
type IndexTTS struct {
	mu         sync.Mutex
	binaryPath string
	modelDir   string
	timeout    time.Duration
	log        *logger.Logger
}

// NewIndexTTS constructs the index-tts2 engine. Construction fails when the
// inference binary or the model checkpoint directory cannot be found; the
// registry records that failure as permanent unavailability.
func NewIndexTTS(cfg config.IndexTTSConfig, log *logger.Logger) (*IndexTTS, error) {
	binaryName := cfg.BinaryPath
	if binaryName == "" {
		binaryName = defaultIndexBinary
	}

	binaryPath, lookErr := exec.LookPath(binaryName)
	if lookErr != nil {
		return nil, fmt.Errorf("index-tts2 runtime binary not found: %w", lookErr)
	}

	configPath := filepath.Join(cfg.ModelDir, indexConfigFileName)

	_, statErr := os.Stat(configPath)
	if statErr != nil {
		return nil, fmt.Errorf(
			"index-tts2 models not found at %s (run setup to download them): %w",
			cfg.ModelDir, statErr,
		)
	}

	timeout := defaultIndexTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &IndexTTS{
		binaryPath: binaryPath,
		modelDir:   cfg.ModelDir,
		timeout:    timeout,
		log:        log,
	}, nil
}

// ID returns the engine identifier.
func (e *IndexTTS) ID() string {
	return string(KindIndexTTS)
}

// Available reports true: a constructed instance has its runtime and model
// artifacts in place. Construction failures never produce an instance.
func (e *IndexTTS) Available() bool {
	return true
}

// Describe returns the discovery metadata for the cloning engine.
func (e *IndexTTS) Describe() core.EngineDescriptor {
	return descriptorFor(KindIndexTTS, e.Available())
}

// CloneVoice synthesizes text in the timbre of the reference recording.
func (e *IndexTTS) CloneVoice(
	ctx context.Context,
	input, referencePath, outputPath, _ string,
) error {
	validationErr := validateCloneInputs(input, referencePath)
	if validationErr != nil {
		return validationErr
	}

	e.log.Info("Cloning voice with reference: %s", referencePath)

	return e.runInference(ctx, outputPath,
		"--speaker-audio", referencePath,
		"--text", text.Normalize(input),
		"--output", outputPath,
	)
}

// SynthesizeWithEmotionAudio clones the speaker voice while transferring the
// emotional style of a second reference recording. Intensity is clamped into
// [0, 1], never rejected.
func (e *IndexTTS) SynthesizeWithEmotionAudio(
	ctx context.Context,
	input, speakerPath, emotionPath, outputPath string,
	intensity float64,
) error {
	validationErr := validateCloneInputs(input, speakerPath)
	if validationErr != nil {
		return validationErr
	}

	_, statErr := os.Stat(emotionPath)
	if statErr != nil {
		return newReferenceNotFoundError(emotionPath)
	}

	alpha := ClampIntensity(intensity)

	e.log.Info("Synthesizing with emotion reference: %s (alpha %.2f)", emotionPath, alpha)

	return e.runInference(ctx, outputPath,
		"--speaker-audio", speakerPath,
		"--text", text.Normalize(input),
		"--output", outputPath,
		"--emotion-audio", emotionPath,
		"--emotion-alpha", strconv.FormatFloat(alpha, 'f', 2, 64),
	)
}

// SynthesizeWithEmotionVector clones the speaker voice with an explicit
// 8-dimensional emotion vector. The vector is validated for length and its
// elements clamped before any file I/O on the output side.
func (e *IndexTTS) SynthesizeWithEmotionVector(
	ctx context.Context,
	input, speakerPath string,
	vector []float64,
	outputPath string,
) error {
	normalized, vectorErr := NormalizeEmotionVector(vector)
	if vectorErr != nil {
		return vectorErr
	}

	validationErr := validateCloneInputs(input, speakerPath)
	if validationErr != nil {
		return validationErr
	}

	encoded, marshalErr := json.Marshal(normalized)
	if marshalErr != nil {
		return fmt.Errorf("failed to encode emotion vector: %w", marshalErr)
	}

	e.log.Info("Synthesizing with emotion vector: %s", string(encoded))

	return e.runInference(ctx, outputPath,
		"--speaker-audio", speakerPath,
		"--text", text.Normalize(input),
		"--output", outputPath,
		"--emotion-vector", string(encoded),
	)
}

// runInference invokes the runtime binary with the model directory and the
// given arguments, serialized per instance, and verifies the output exists
// before returning.
func (e *IndexTTS) runInference(ctx context.Context, outputPath string, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	fullArgs := append([]string{"infer", "--model-dir", e.modelDir}, args...)

	// #nosec G204 -- the binary path is resolved at construction and the
	// arguments are validated above.
	cmd := exec.CommandContext(runCtx, e.binaryPath, fullArgs...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf(
			"index-tts2 inference failed: %w - output: %s", err, string(output),
		)
	}

	_, statErr := os.Stat(outputPath)
	if statErr != nil {
		return fmt.Errorf("index-tts2 produced no output at %s: %w", outputPath, statErr)
	}

	e.log.Info("Generated speech: %s", outputPath)

	return nil
}

// validateCloneInputs applies the shared contract checks for cloning calls:
// text shape first, then reference existence.
func validateCloneInputs(input, referencePath string) error {
	validationErr := text.Validate(input)
	if validationErr != nil {
		return validationErr
	}

	_, statErr := os.Stat(referencePath)
	if statErr != nil {
		return newReferenceNotFoundError(referencePath)
	}

	return nil
}
