// Package core defines the domain types and interfaces shared by the
// voice-gateway: the engine capability contract, the voice catalog model,
// and the object store used in worker mode.
package core

import "context"

// Voice identifies a selectable synthesis identity from the cloud catalog.
// The set is loaded once per process lifetime and is read-only afterwards.
type Voice struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Gender      string `json:"gender"`
	Locale      string `json:"locale"`
}

// EngineDescriptor describes one synthesis engine for discovery purposes.
// Availability is computed on demand and never cached by the caller.
type EngineDescriptor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Available   bool     `json:"available"`
}

// Engine is the minimal contract every synthesis backend satisfies.
// Available must never fail: a backend whose model could not be loaded
// reports false and keeps reporting false for the process lifetime.
type Engine interface {
	ID() string
	Available() bool
	Describe() EngineDescriptor
}

// Synthesizer converts plain text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath, language string) error
}

// VoiceCloner synthesizes text in the timbre of a short reference recording.
type VoiceCloner interface {
	CloneVoice(ctx context.Context, text, referencePath, outputPath, language string) error
}

// EmotionSynthesizer adds emotional control to voice cloning, either from an
// emotion reference recording or from an 8-dimensional emotion vector.
type EmotionSynthesizer interface {
	SynthesizeWithEmotionAudio(
		ctx context.Context,
		text, speakerPath, emotionPath, outputPath string,
		intensity float64,
	) error
	SynthesizeWithEmotionVector(
		ctx context.Context,
		text, speakerPath string,
		vector []float64,
		outputPath string,
	) error
}

// VoiceConverter re-renders source speech in a target speaker's timbre.
type VoiceConverter interface {
	ConvertVoice(ctx context.Context, sourcePath, targetPath, outputPath string) error
}

// VoiceCatalog exposes the cloud engine's voice list.
type VoiceCatalog interface {
	Voices() []Voice
}

// ObjectStore is the key-value blob store used by the NATS worker to move
// text in and audio out of the pipeline.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
