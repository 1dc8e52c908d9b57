// Package config provides the configuration structure for the voice-gateway.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// HTTPConfig holds the configuration for the HTTP surface.
type HTTPConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	MaxUploadSizeMB int    `toml:"max_upload_size_mb"`
}

// EdgeTTSConfig holds the configuration for the cloud neural-voice service.
type EdgeTTSConfig struct {
	ServiceURL     string `toml:"service_url"`
	DefaultVoice   string `toml:"default_voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// IndexTTSConfig holds the configuration for the index-tts2 local runtime.
type IndexTTSConfig struct {
	BinaryPath     string `toml:"binary_path"`
	ModelDir       string `toml:"model_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CoquiTTSConfig holds the configuration for the coqui-tts local runtime.
type CoquiTTSConfig struct {
	BinaryPath      string `toml:"binary_path"`
	ModelName       string `toml:"model_name"`
	ConversionModel string `toml:"conversion_model"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// EnginesConfig groups the per-engine settings.
type EnginesConfig struct {
	EdgeTTS  EdgeTTSConfig  `toml:"edge_tts"`
	IndexTTS IndexTTSConfig `toml:"index_tts"`
	CoquiTTS CoquiTTSConfig `toml:"coqui_tts"`
}

// NATSConfig holds the configuration for worker mode. An empty URL disables
// the worker.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	TextObjectStoreBucket    string `toml:"text_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	WorkDir     string `toml:"work_dir"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Engines EnginesConfig `toml:"engines"`
	NATS    NATSConfig    `toml:"nats"`
	Paths   PathsConfig   `toml:"paths"`
}

// Load loads the configuration for the voice-gateway.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
