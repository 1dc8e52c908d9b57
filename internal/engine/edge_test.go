package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/engine"
	"github.com/book-expert/voice-gateway/internal/text"
)

// newSpeechService fakes the edge-tts HTTP service: a catalog endpoint and a
// synthesize endpoint returning canned MPEG bytes.
func newSpeechService(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, _ *http.Request) {
		voices := []core.Voice{
			{Name: "en-US-AriaNeural", DisplayName: "Aria", Gender: "Female", Locale: "en-US"},
			{Name: "en-GB-SoniaNeural", DisplayName: "Sonia", Gender: "Female", Locale: "en-GB"},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(voices)
	})

	mux.HandleFunc("/v1/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text  string `json:"text"`
			Voice string `json:"voice"`
		}

		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil || req.Text == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"detail":     "text is required",
				"error_code": "TEXT_REQUIRED",
			})

			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mpeg-frames"))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func newEdgeEngine(t *testing.T, serviceURL string) *engine.EdgeTTS {
	t.Helper()

	eng, err := engine.NewEdgeTTS(config.EdgeTTSConfig{
		ServiceURL:     serviceURL,
		DefaultVoice:   "en-US-AriaNeural",
		TimeoutSeconds: 5,
	}, newTestLogger(t))
	require.NoError(t, err)

	return eng
}

func TestEdgeTTS_LoadsCatalog(t *testing.T) {
	t.Parallel()

	service := newSpeechService(t)
	eng := newEdgeEngine(t, service.URL)

	voices := eng.Voices()
	require.Len(t, voices, 2)
	assert.Equal(t, "en-US-AriaNeural", voices[0].Name)
	assert.Equal(t, "en-GB", voices[1].Locale)
}

func TestEdgeTTS_FallbackCatalogWhenServiceDown(t *testing.T) {
	t.Parallel()

	// Port 1 is never listening.
	eng := newEdgeEngine(t, "http://127.0.0.1:1")

	voices := eng.Voices()
	require.NotEmpty(t, voices, "fallback catalog must be installed")
	assert.True(t, eng.Available(), "catalog failure must not make the engine unavailable")
}

func TestEdgeTTS_ResolveVoice(t *testing.T) {
	t.Parallel()

	service := newSpeechService(t)
	eng := newEdgeEngine(t, service.URL)

	assert.Equal(t, "en-GB-SoniaNeural", eng.ResolveVoice("en-GB-SoniaNeural"))
	assert.Equal(t, "en-US-AriaNeural", eng.ResolveVoice("xx-XX-NoSuchNeural"))
}

func TestEdgeTTS_SynthesizeWithVoice(t *testing.T) {
	t.Parallel()

	service := newSpeechService(t)
	eng := newEdgeEngine(t, service.URL)

	outputPath := filepath.Join(t.TempDir(), "speech.mp3")

	err := eng.SynthesizeWithVoice(
		context.Background(), "Hello there.", "en-US-AriaNeural", outputPath,
	)
	require.NoError(t, err)

	data, readErr := os.ReadFile(outputPath)
	require.NoError(t, readErr)
	assert.Equal(t, []byte("ID3-fake-mpeg-frames"), data)
}

func TestEdgeTTS_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	service := newSpeechService(t)
	eng := newEdgeEngine(t, service.URL)

	outputPath := filepath.Join(t.TempDir(), "speech.mp3")

	err := eng.SynthesizeWithVoice(context.Background(), "   ", "en-US-AriaNeural", outputPath)
	require.ErrorIs(t, err, text.ErrEmpty)

	_, statErr := os.Stat(outputPath)
	require.True(t, os.IsNotExist(statErr), "no output may be written for rejected input")
}

func TestEdgeTTS_HealthCheck(t *testing.T) {
	t.Parallel()

	service := newSpeechService(t)
	eng := newEdgeEngine(t, service.URL)

	require.NoError(t, eng.HealthCheck(context.Background()))
}
