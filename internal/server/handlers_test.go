package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/engine"
	"github.com/book-expert/voice-gateway/internal/server"
)

var errRuntimeDown = errors.New("runtime not installed")

// fakeEdge stands in for the cloud engine: a fixed catalog and synthesis
// that writes canned MPEG bytes.
type fakeEdge struct{}

func (f *fakeEdge) ID() string {
	return string(engine.KindEdgeTTS)
}

func (f *fakeEdge) Available() bool {
	return true
}

func (f *fakeEdge) Describe() core.EngineDescriptor {
	return core.EngineDescriptor{ID: f.ID(), Name: "Edge-TTS", Available: true}
}

func (f *fakeEdge) Voices() []core.Voice {
	return []core.Voice{
		{Name: "en-US-AriaNeural", DisplayName: "Aria", Gender: "Female", Locale: "en-US"},
		{Name: "en-US-GuyNeural", DisplayName: "Guy", Gender: "Male", Locale: "en-US"},
		{Name: "en-GB-SoniaNeural", DisplayName: "Sonia", Gender: "Female", Locale: "en-GB"},
	}
}

func (f *fakeEdge) SynthesizeWithVoice(_ context.Context, _, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte("mpeg-bytes"), 0o600)
}

// fakeCloner stands in for the index-tts2 engine.
type fakeCloner struct {
	lastVector    []float64
	lastIntensity float64
}

func (f *fakeCloner) ID() string {
	return string(engine.KindIndexTTS)
}

func (f *fakeCloner) Available() bool {
	return true
}

func (f *fakeCloner) Describe() core.EngineDescriptor {
	return core.EngineDescriptor{ID: f.ID(), Name: "Index-TTS2", Available: true}
}

func (f *fakeCloner) CloneVoice(_ context.Context, _, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("cloned-wav"), 0o600)
}

func (f *fakeCloner) SynthesizeWithEmotionAudio(
	_ context.Context,
	_, _, _, outputPath string,
	intensity float64,
) error {
	f.lastIntensity = intensity

	return os.WriteFile(outputPath, []byte("emotion-audio-wav"), 0o600)
}

func (f *fakeCloner) SynthesizeWithEmotionVector(
	_ context.Context,
	_, _ string,
	vector []float64,
	outputPath string,
) error {
	f.lastVector = vector

	return os.WriteFile(outputPath, []byte("emotion-vector-wav"), 0o600)
}

// fakeCoqui stands in for the multilingual engine.
type fakeCoqui struct{}

func (f *fakeCoqui) ID() string {
	return string(engine.KindCoquiTTS)
}

func (f *fakeCoqui) Available() bool {
	return true
}

func (f *fakeCoqui) Describe() core.EngineDescriptor {
	return core.EngineDescriptor{ID: f.ID(), Name: "Coqui TTS", Available: true}
}

func (f *fakeCoqui) Synthesize(_ context.Context, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("coqui-wav"), 0o600)
}

func (f *fakeCoqui) CloneVoice(_ context.Context, _, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("coqui-cloned-wav"), 0o600)
}

func (f *fakeCoqui) ConvertVoice(_ context.Context, _, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte("coqui-converted-wav"), 0o600)
}

type testGateway struct {
	srv     *server.Server
	cloner  *fakeCloner
	workDir string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	log, logErr := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, logErr)

	workDir := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{WorkDir: workDir},
	}

	cloner := &fakeCloner{}

	registry := engine.NewRegistry(log)
	registry.Register(engine.KindEdgeTTS, func() (core.Engine, error) {
		return &fakeEdge{}, nil
	})
	registry.Register(engine.KindIndexTTS, func() (core.Engine, error) {
		return cloner, nil
	})
	registry.Register(engine.KindCoquiTTS, func() (core.Engine, error) {
		return &fakeCoqui{}, nil
	})

	srv, srvErr := server.New(cfg, log, registry)
	require.NoError(t, srvErr)

	return &testGateway{srv: srv, cloner: cloner, workDir: workDir}
}

// newBrokenGateway registers failing builders for the local engines.
func newBrokenGateway(t *testing.T) *server.Server {
	t.Helper()

	log, logErr := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, logErr)

	cfg := &config.Config{
		Paths: config.PathsConfig{WorkDir: t.TempDir()},
	}

	registry := engine.NewRegistry(log)
	registry.Register(engine.KindEdgeTTS, func() (core.Engine, error) {
		return &fakeEdge{}, nil
	})
	registry.Register(engine.KindIndexTTS, func() (core.Engine, error) {
		return nil, errRuntimeDown
	})
	registry.Register(engine.KindCoquiTTS, func() (core.Engine, error) {
		return nil, errRuntimeDown
	})

	srv, srvErr := server.New(cfg, log, registry)
	require.NoError(t, srvErr)

	return srv
}

func (g *testGateway) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	g.srv.Router().ServeHTTP(recorder, req)

	return recorder
}

// multipartBody builds a multipart form from text fields and named file
// parts carrying inline content.
func multipartBody(
	t *testing.T,
	fields map[string]string,
	files map[string][2]string,
) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}

	for name, file := range files {
		part, partErr := writer.CreateFormFile(name, file[0])
		require.NoError(t, partErr)

		_, copyErr := io.Copy(part, strings.NewReader(file[1]))
		require.NoError(t, copyErr)
	}

	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func postForm(
	t *testing.T,
	path string,
	fields map[string]string,
	files map[string][2]string,
) *http.Request {
	t.Helper()

	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)

	return req
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))

	return payload
}

func TestHealth(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	payload := decodeJSON(t, recorder)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, false, payload["edge_tts_loaded"], "health must not force engine loading")
	assert.Equal(t, false, payload["index_tts_loaded"])
	assert.Equal(t, false, payload["coqui_tts_loaded"])
}

func TestEngines_ListsAllThree(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	payload := decodeJSON(t, recorder)
	assert.InDelta(t, 3, payload["total"], 0)
}

func TestEngines_ReportsUnavailableEngines(t *testing.T) {
	t.Parallel()

	srv := newBrokenGateway(t)

	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/engines", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Engines []core.EngineDescriptor `json:"engines"`
		Total   int                     `json:"total"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, 3, payload.Total)

	byID := make(map[string]core.EngineDescriptor)
	for _, descriptor := range payload.Engines {
		byID[descriptor.ID] = descriptor
	}

	assert.True(t, byID["edge-tts"].Available)
	assert.False(t, byID["index-tts2"].Available)
	assert.False(t, byID["coqui-tts"].Available)
}

func TestVoices_GroupedByLocale(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Voices  []core.Voice            `json:"voices"`
		Grouped map[string][]core.Voice `json:"grouped"`
		Total   int                     `json:"total"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, 3, payload.Total)
	assert.Len(t, payload.Grouped["en-US"], 2)
	assert.Len(t, payload.Grouped["en-GB"], 1)
}

func TestTextToSpeech_MissingFields(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	noText := gateway.do(t, postForm(t, "/api/convert/text-to-speech",
		map[string]string{"voice": "en-US-AriaNeural"}, nil))
	require.Equal(t, http.StatusBadRequest, noText.Code)
	assert.Equal(t, "No text provided", decodeJSON(t, noText)["error"])

	noVoice := gateway.do(t, postForm(t, "/api/convert/text-to-speech",
		map[string]string{"text": "Hello."}, nil))
	require.Equal(t, http.StatusBadRequest, noVoice.Code)
	assert.Equal(t, "No voice selected", decodeJSON(t, noVoice)["error"])
}

func TestTextToSpeech_EmptyText(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/convert/text-to-speech",
		map[string]string{"text": "   ", "voice": "en-US-AriaNeural"}, nil))
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, decodeJSON(t, recorder)["error"], "empty")
}

func TestTextToSpeech_Success(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/convert/text-to-speech",
		map[string]string{"text": "Hello there.", "voice": "en-US-AriaNeural"}, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	assert.Equal(t, "mpeg-bytes", recorder.Body.String())
	assert.Contains(t,
		recorder.Header().Get("Content-Disposition"), "converted_speech.mp3",
	)
}

func TestValidateAudio(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	missing := gateway.do(t, postForm(t, "/api/validate-audio", nil, nil))
	require.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "No audio file provided", decodeJSON(t, missing)["error"])

	badType := gateway.do(t, postForm(t, "/api/validate-audio", nil,
		map[string][2]string{"audio": {"notes.txt", "not audio"}}))
	require.Equal(t, http.StatusBadRequest, badType.Code)
	assert.Equal(t, "Invalid file type", decodeJSON(t, badType)["error"])

	tooSmall := gateway.do(t, postForm(t, "/api/validate-audio", nil,
		map[string][2]string{"audio": {"ref.wav", "tiny"}}))
	require.Equal(t, http.StatusOK, tooSmall.Code)

	payload := decodeJSON(t, tooSmall)
	assert.Equal(t, false, payload["valid"])
	assert.Contains(t, payload["error"], "too small")

	valid := gateway.do(t, postForm(t, "/api/validate-audio", nil,
		map[string][2]string{"audio": {"ref.wav", strings.Repeat("x", 20_000)}}))
	require.Equal(t, http.StatusOK, valid.Code)

	validPayload := decodeJSON(t, valid)
	assert.Equal(t, true, validPayload["valid"])
	assert.Equal(t, true, validPayload["recommended"])
}

func TestIndexCloneVoice(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	noRef := gateway.do(t, postForm(t, "/api/index-tts/clone-voice",
		map[string]string{"text": "Hello."}, nil))
	require.Equal(t, http.StatusBadRequest, noRef.Code)
	assert.Equal(t, "No reference audio provided", decodeJSON(t, noRef)["error"])

	success := gateway.do(t, postForm(t, "/api/index-tts/clone-voice",
		map[string]string{"text": "Hello."},
		map[string][2]string{"reference_audio": {"ref.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, success.Code)
	assert.Equal(t, "cloned-wav", success.Body.String())
	assert.Contains(t,
		success.Header().Get("Content-Disposition"), "cloned_voice.wav",
	)
}

func TestIndexCloneVoice_EngineUnavailable(t *testing.T) {
	t.Parallel()

	srv := newBrokenGateway(t)

	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, postForm(t, "/api/index-tts/clone-voice",
		map[string]string{"text": "Hello."},
		map[string][2]string{"reference_audio": {"ref.wav", "RIFF-data"}}))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestSynthesizeEmotion_VectorMode(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	badVector := gateway.do(t, postForm(t, "/api/index-tts/synthesize-emotion",
		map[string]string{
			"text":           "Hello.",
			"emotion_mode":   "vector",
			"emotion_vector": "[0.5, 0.5]",
		},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusBadRequest, badVector.Code)
	assert.Contains(t, decodeJSON(t, badVector)["error"], "8 elements")

	good := gateway.do(t, postForm(t, "/api/index-tts/synthesize-emotion",
		map[string]string{
			"text":           "Hello.",
			"emotion_mode":   "vector",
			"emotion_vector": "[0.8, 0, 0, 0, 0, 0, 0, 0.2]",
		},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, good.Code)
	assert.Equal(t, "emotion-vector-wav", good.Body.String())
	assert.Equal(t, []float64{0.8, 0, 0, 0, 0, 0, 0, 0.2}, gateway.cloner.lastVector)
}

func TestSynthesizeEmotion_AudioMode(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/index-tts/synthesize-emotion",
		map[string]string{
			"text":              "Hello.",
			"emotion_mode":      "audio",
			"emotion_intensity": "3.5",
		},
		map[string][2]string{
			"speaker_audio": {"speaker.wav", "RIFF-data"},
			"emotion_audio": {"emotion.wav", "RIFF-data"},
		}))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "emotion-audio-wav", recorder.Body.String())
	assert.InDelta(t, 1.0, gateway.cloner.lastIntensity, 0, "intensity must be clamped")
}

func TestSynthesizeEmotion_DefaultModePlainCloning(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/index-tts/synthesize-emotion",
		map[string]string{"text": "Hello."},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "cloned-wav", recorder.Body.String())
	assert.Contains(t,
		recorder.Header().Get("Content-Disposition"), "emotional_speech.wav",
	)
}

func TestEmotions(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/index-tts/emotions", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		Emotions []string `json:"emotions"`
		Total    int      `json:"total"`
	}

	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, 8, payload.Total)
	assert.Equal(t, "Happy", payload.Emotions[0])
}

func TestCoquiDiscovery(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	models := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/coqui/models", nil))
	require.Equal(t, http.StatusOK, models.Code)
	assert.Positive(t, decodeJSON(t, models)["total"])

	languages := gateway.do(t, httptest.NewRequest(http.MethodGet, "/api/coqui/languages", nil))
	require.Equal(t, http.StatusOK, languages.Code)
	assert.Positive(t, decodeJSON(t, languages)["total"])
}

func TestCoquiSynthesize(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	missing := gateway.do(t, postForm(t, "/api/coqui/synthesize", nil, nil))
	require.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "No text provided", decodeJSON(t, missing)["error"])

	success := gateway.do(t, postForm(t, "/api/coqui/synthesize",
		map[string]string{"text": "Hola.", "language": "es"}, nil))
	require.Equal(t, http.StatusOK, success.Code)
	assert.Equal(t, "coqui-wav", success.Body.String())
}

func TestCoquiCloneVoice(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	noSpeaker := gateway.do(t, postForm(t, "/api/coqui/clone-voice",
		map[string]string{"text": "Hola.", "language": "es"}, nil))
	require.Equal(t, http.StatusBadRequest, noSpeaker.Code)
	assert.Equal(t, "No speaker audio provided", decodeJSON(t, noSpeaker)["error"])

	success := gateway.do(t, postForm(t, "/api/coqui/clone-voice",
		map[string]string{"text": "Hola.", "language": "es"},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, success.Code)
	assert.Equal(t, "coqui-cloned-wav", success.Body.String())
}

func TestCoquiConvertVoice(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	noTarget := gateway.do(t, postForm(t, "/api/coqui/convert-voice", nil,
		map[string][2]string{"source_audio": {"source.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusBadRequest, noTarget.Code)
	assert.Equal(t, "Target audio file is required", decodeJSON(t, noTarget)["error"])

	success := gateway.do(t, postForm(t, "/api/coqui/convert-voice", nil,
		map[string][2]string{
			"source_audio": {"source.wav", "RIFF-data"},
			"target_audio": {"target.wav", "RIFF-data"},
		}))
	require.Equal(t, http.StatusOK, success.Code)
	assert.Equal(t, "coqui-converted-wav", success.Body.String())
}

// Staged uploads must be removed after the request finishes, success or not.
func TestStagedFilesCleanedUp(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/index-tts/clone-voice",
		map[string]string{"text": "Hello."},
		map[string][2]string{"reference_audio": {"ref.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, recorder.Code)

	entries, readErr := os.ReadDir(gateway.workDir)
	require.NoError(t, readErr)

	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), "_ref.wav"),
			"staged input %s must be removed", entry.Name())
	}
}

// Rejected uploads must not leave staged copies behind either.
func TestStagedFilesCleanedUpOnFailure(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/index-tts/synthesize-emotion",
		map[string]string{
			"text":           "Hello.",
			"emotion_mode":   "vector",
			"emotion_vector": "[0.1]",
		},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	entries, readErr := os.ReadDir(gateway.workDir)
	require.NoError(t, readErr)

	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), "_speaker.wav"),
			"staged input %s must be removed", entry.Name())
	}
}

// The output of a successful request stays on disk after streaming; verify
// the attachment made it out with the staged inputs gone, not the output.
func TestOutputSurvivesUntilStreamed(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t)

	recorder := gateway.do(t, postForm(t, "/api/coqui/clone-voice",
		map[string]string{"text": "Hola."},
		map[string][2]string{"speaker_audio": {"speaker.wav", "RIFF-data"}}))
	require.Equal(t, http.StatusOK, recorder.Code)

	entries, readErr := os.ReadDir(gateway.workDir)
	require.NoError(t, readErr)

	var outputs []string

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "output_") {
			outputs = append(outputs, filepath.Join(gateway.workDir, entry.Name()))
		}
	}

	require.NotEmpty(t, outputs)
}
