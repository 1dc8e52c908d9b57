package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/text"
)

// Default coqui-tts runtime settings.
const (
	defaultCoquiBinary   = "tts"
	defaultCoquiModel    = "tts_models/multilingual/multi-dataset/xtts_v2"
	defaultCoquiLanguage = "en"
	defaultCoquiTimeout  = 300 * time.Second
)

// CoquiTTS is the local multilingual engine (XTTS v2 family). It supports
// plain synthesis, voice cloning, and cross-speaker voice conversion, all by
// shelling out to the coqui inference CLI. Calls are serialized because the
// runtime shares model state across invocations.
type CoquiTTS struct {
	mu              sync.Mutex
	binaryPath      string
	modelName       string
	conversionModel string
	timeout         time.Duration
	log             *logger.Logger
}

// NewCoquiTTS constructs the coqui engine. Construction fails when the
// inference CLI is not installed; the registry records that failure as
// permanent unavailability.
func NewCoquiTTS(cfg config.CoquiTTSConfig, log *logger.Logger) (*CoquiTTS, error) {
	binaryName := cfg.BinaryPath
	if binaryName == "" {
		binaryName = defaultCoquiBinary
	}

	binaryPath, lookErr := exec.LookPath(binaryName)
	if lookErr != nil {
		return nil, fmt.Errorf("coqui-tts runtime binary not found: %w", lookErr)
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = defaultCoquiModel
	}

	timeout := defaultCoquiTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &CoquiTTS{
		binaryPath:      binaryPath,
		modelName:       modelName,
		conversionModel: cfg.ConversionModel,
		timeout:         timeout,
		log:             log,
	}, nil
}

// ID returns the engine identifier.
func (e *CoquiTTS) ID() string {
	return string(KindCoquiTTS)
}

// Available reports true: a constructed instance has its runtime in place.
func (e *CoquiTTS) Available() bool {
	return true
}

// Describe returns the discovery metadata for the multilingual engine.
func (e *CoquiTTS) Describe() core.EngineDescriptor {
	return descriptorFor(KindCoquiTTS, e.Available())
}

// Synthesize converts text to speech in the given language with the default
// model speaker.
func (e *CoquiTTS) Synthesize(ctx context.Context, input, outputPath, language string) error {
	validationErr := text.Validate(input)
	if validationErr != nil {
		return validationErr
	}

	e.log.Info("Synthesizing text in language: %s", resolveLanguage(language))

	return e.runRuntime(ctx, outputPath,
		"--model_name", e.modelName,
		"--text", text.Normalize(input),
		"--language_idx", resolveLanguage(language),
		"--out_path", outputPath,
	)
}

// CloneVoice synthesizes text in the timbre of the reference recording.
func (e *CoquiTTS) CloneVoice(
	ctx context.Context,
	input, referencePath, outputPath, language string,
) error {
	validationErr := validateCloneInputs(input, referencePath)
	if validationErr != nil {
		return validationErr
	}

	e.log.Info("Cloning voice from: %s", referencePath)

	return e.runRuntime(ctx, outputPath,
		"--model_name", e.modelName,
		"--text", text.Normalize(input),
		"--speaker_wav", referencePath,
		"--language_idx", resolveLanguage(language),
		"--out_path", outputPath,
	)
}

// ConvertVoice re-renders the source recording in the target speaker's
// timbre. Without a dedicated conversion model configured, the main model's
// approximate conversion mode is used instead; the result transfers timbre
// but not prosody faithfully.
func (e *CoquiTTS) ConvertVoice(
	ctx context.Context,
	sourcePath, targetPath, outputPath string,
) error {
	_, statErr := os.Stat(sourcePath)
	if statErr != nil {
		return newReferenceNotFoundError(sourcePath)
	}

	_, statErr = os.Stat(targetPath)
	if statErr != nil {
		return newReferenceNotFoundError(targetPath)
	}

	if e.conversionModel == "" {
		e.log.Warn("No dedicated conversion model configured, using approximate TTS conversion")

		return e.runRuntime(ctx, outputPath,
			"--model_name", e.modelName,
			"--source_wav", sourcePath,
			"--speaker_wav", targetPath,
			"--out_path", outputPath,
		)
	}

	e.log.Info("Converting voice from %s to %s", sourcePath, targetPath)

	return e.runRuntime(ctx, outputPath,
		"--model_name", e.conversionModel,
		"--source_wav", sourcePath,
		"--target_wav", targetPath,
		"--out_path", outputPath,
	)
}

// runRuntime invokes the coqui CLI, serialized per instance, and verifies
// the output file exists before returning.
func (e *CoquiTTS) runRuntime(ctx context.Context, outputPath string, args ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// #nosec G204 -- the binary path is resolved at construction and the
	// arguments are validated above.
	cmd := exec.CommandContext(runCtx, e.binaryPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("coqui-tts inference failed: %w - output: %s", err, string(output))
	}

	_, statErr := os.Stat(outputPath)
	if statErr != nil {
		return fmt.Errorf("coqui-tts produced no output at %s: %w", outputPath, statErr)
	}

	e.log.Info("Generated speech: %s", outputPath)

	return nil
}

func resolveLanguage(language string) string {
	if language == "" {
		return defaultCoquiLanguage
	}

	return language
}

// CoquiModel describes one curated runtime model for discovery listings.
type CoquiModel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Languages   []string `json:"languages"`
}

// Language pairs a language code with its display name.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CoquiModels returns the curated model catalog exposed for discovery.
func CoquiModels() []CoquiModel {
	return []CoquiModel{
		{
			ID:          "tts_models/multilingual/multi-dataset/xtts_v2",
			Name:        "XTTS v2",
			Description: "Multilingual voice cloning (recommended)",
			Features:    []string{"voice_cloning", "multilingual"},
			Languages: []string{
				"en", "es", "fr", "de", "it", "pt", "pl", "tr",
				"ru", "nl", "cs", "ar", "zh-cn", "ja", "hu", "ko",
			},
		},
		{
			ID:          "tts_models/multilingual/multi-dataset/your_tts",
			Name:        "YourTTS",
			Description: "Voice cloning in English, French, Portuguese",
			Features:    []string{"voice_cloning", "multilingual"},
			Languages:   []string{"en", "fr-fr", "pt-br"},
		},
		{
			ID:          "tts_models/en/ljspeech/vits",
			Name:        "VITS (English)",
			Description: "High-quality English TTS",
			Features:    []string{"high_quality"},
			Languages:   []string{"en"},
		},
		{
			ID:          "voice_conversion_models/multilingual/vctk/freevc24",
			Name:        "FreeVC",
			Description: "Voice conversion model",
			Features:    []string{"voice_conversion"},
			Languages:   []string{"multilingual"},
		},
	}
}

// SupportedLanguages returns the language list supported by XTTS v2.
func SupportedLanguages() []Language {
	return []Language{
		{Code: "en", Name: "English"},
		{Code: "es", Name: "Spanish"},
		{Code: "fr", Name: "French"},
		{Code: "de", Name: "German"},
		{Code: "it", Name: "Italian"},
		{Code: "pt", Name: "Portuguese"},
		{Code: "pl", Name: "Polish"},
		{Code: "tr", Name: "Turkish"},
		{Code: "ru", Name: "Russian"},
		{Code: "nl", Name: "Dutch"},
		{Code: "cs", Name: "Czech"},
		{Code: "ar", Name: "Arabic"},
		{Code: "zh-cn", Name: "Chinese (Simplified)"},
		{Code: "ja", Name: "Japanese"},
		{Code: "hu", Name: "Hungarian"},
		{Code: "ko", Name: "Korean"},
		{Code: "hi", Name: "Hindi"},
	}
}
