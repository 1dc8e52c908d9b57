package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/text"
)

// API endpoints on the edge-tts speech service.
const (
	apiSynthesize = "/v1/synthesize"
	apiVoices     = "/v1/voices"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// DefaultVoiceName is used when the requested voice is not in the catalog.
const DefaultVoiceName = "en-US-AriaNeural"

const edgeFilePermissions = 0o600

// Static errors for the edge adapter.
var (
	errReceivedEmptyAudio    = errors.New("received empty audio data")
	errUnexpectedContentType = errors.New("unexpected content type")
)

// synthesizeRequest is the JSON payload sent to the speech service.
type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// serviceError is the structured error body the speech service returns.
type serviceError struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// EdgeTTS is the cloud neural-voice engine. The voice catalog is fetched
// once at construction; a static fallback list keeps the engine usable when
// the catalog endpoint is unreachable.
type EdgeTTS struct {
	httpClient   *http.Client
	baseURL      string
	defaultVoice string
	voices       []core.Voice
	log          *logger.Logger
}

// NewEdgeTTS constructs the cloud engine and loads its voice catalog.
// Catalog failures are logged and replaced with the fallback voices; they do
// not make the engine unavailable.
func NewEdgeTTS(cfg config.EdgeTTSConfig, log *logger.Logger) (*EdgeTTS, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	defaultVoice := cfg.DefaultVoice
	if defaultVoice == "" {
		defaultVoice = DefaultVoiceName
	}

	eng := &EdgeTTS{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      cfg.ServiceURL,
		defaultVoice: defaultVoice,
		log:          log,
	}

	eng.loadVoices()

	return eng, nil
}

// ID returns the engine identifier.
func (e *EdgeTTS) ID() string {
	return string(KindEdgeTTS)
}

// Available always reports true: the cloud engine has no local model to
// load, and transport failures surface per call instead.
func (e *EdgeTTS) Available() bool {
	return true
}

// Describe returns the discovery metadata for the cloud engine.
func (e *EdgeTTS) Describe() core.EngineDescriptor {
	return descriptorFor(KindEdgeTTS, e.Available())
}

// Voices returns the loaded voice catalog.
func (e *EdgeTTS) Voices() []core.Voice {
	return e.voices
}

// ResolveVoice returns the requested voice name if it is in the catalog, or
// the default voice otherwise. Unknown voices fall back rather than fail.
func (e *EdgeTTS) ResolveVoice(name string) string {
	for _, voice := range e.voices {
		if voice.Name == name {
			return name
		}
	}

	e.log.Warn("Voice %q not found, using default %q", name, e.defaultVoice)

	return e.defaultVoice
}

// Synthesize converts text to speech with the default voice. The language
// parameter is unused here: edge voices carry their locale in the voice name.
func (e *EdgeTTS) Synthesize(ctx context.Context, input, outputPath, _ string) error {
	return e.SynthesizeWithVoice(ctx, input, e.defaultVoice, outputPath)
}

// SynthesizeWithVoice converts text to speech with an explicit voice and
// writes the MP3 result to outputPath. The file is fully written and closed
// before this method returns.
func (e *EdgeTTS) SynthesizeWithVoice(ctx context.Context, input, voice, outputPath string) error {
	validationErr := text.Validate(input)
	if validationErr != nil {
		return validationErr
	}

	audioData, synthErr := e.fetchAudio(ctx, text.Normalize(input), e.ResolveVoice(voice))
	if synthErr != nil {
		return synthErr
	}

	writeErr := os.WriteFile(outputPath, audioData, edgeFilePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	e.log.Info("Generated speech: %s (%d bytes)", outputPath, len(audioData))

	return nil
}

// HealthCheck verifies that the speech service is reachable.
func (e *EdgeTTS) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody,
	)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (e *EdgeTTS) fetchAudio(ctx context.Context, input, voice string) ([]byte, error) {
	requestBody, err := json.Marshal(synthesizeRequest{Text: input, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+apiSynthesize,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to send request to speech service at %s: %w", e.baseURL, err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseServiceError(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeMPEG {
		return nil, fmt.Errorf(
			"%w: expected %s, got %s", errUnexpectedContentType, contentTypeMPEG, contentType,
		)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, errReceivedEmptyAudio
	}

	return audioData, nil
}

// parseServiceError decodes a structured JSON error from the speech service,
// falling back to the raw body so diagnostics are never lost.
func (e *EdgeTTS) parseServiceError(resp *http.Response) error {
	var svcErr serviceError

	err := json.NewDecoder(resp.Body).Decode(&svcErr)
	if err == nil {
		return fmt.Errorf(
			"speech service error (%s): %s (code: %s)",
			resp.Status, svcErr.Detail, svcErr.ErrorCode,
		)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"speech service returned non-OK status: %s, body: %s", resp.Status, string(body),
	)
}

// loadVoices fetches the voice catalog, keeping only neural voices. Any
// failure installs the static fallback list.
func (e *EdgeTTS) loadVoices() {
	voices, err := e.fetchVoices()
	if err != nil {
		e.log.Warn("Failed to load voice catalog: %v, using fallback voices", err)

		e.voices = fallbackVoices()

		return
	}

	e.voices = voices
	e.log.Info("Loaded %d neural voices", len(voices))
}

func (e *EdgeTTS) fetchVoices() ([]core.Voice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, e.baseURL+apiVoices, http.NoBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices from %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices request failed with status: %s", resp.Status)
	}

	var voices []core.Voice

	err = json.NewDecoder(resp.Body).Decode(&voices)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice catalog: %w", err)
	}

	if len(voices) == 0 {
		return nil, errors.New("voice catalog is empty")
	}

	return voices, nil
}

// fallbackVoices is the minimal catalog used when the service catalog cannot
// be fetched at construction time.
func fallbackVoices() []core.Voice {
	return []core.Voice{
		{
			Name:        "en-US-AriaNeural",
			DisplayName: "Aria (US Female)",
			Gender:      "Female",
			Locale:      "en-US",
		},
		{
			Name:        "en-US-GuyNeural",
			DisplayName: "Guy (US Male)",
			Gender:      "Male",
			Locale:      "en-US",
		},
		{
			Name:        "en-GB-SoniaNeural",
			DisplayName: "Sonia (UK Female)",
			Gender:      "Female",
			Locale:      "en-GB",
		},
	}
}
