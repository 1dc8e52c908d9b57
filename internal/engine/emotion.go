package engine

import (
	"encoding/json"
	"fmt"
)

// EmotionLabels lists the emotion positions of an emotion vector, in the
// fixed order the index-tts2 runtime expects.
var EmotionLabels = []string{
	"Happy",
	"Angry",
	"Sad",
	"Afraid",
	"Disgusted",
	"Melancholic",
	"Surprised",
	"Calm",
}

// ClampIntensity forces an intensity value into [0.0, 1.0]. Out-of-range
// values are clamped rather than rejected; 0 and 1 pass through unchanged.
func ClampIntensity(value float64) float64 {
	if value < 0.0 {
		return 0.0
	}

	if value > 1.0 {
		return 1.0
	}

	return value
}

// NormalizeEmotionVector validates the vector length and returns a copy with
// every element clamped into [0.0, 1.0]. A vector whose length is not exactly
// EmotionVectorLength fails with ErrInvalidEmotionVector.
func NormalizeEmotionVector(vector []float64) ([]float64, error) {
	if len(vector) != EmotionVectorLength {
		return nil, newInvalidEmotionVectorError(len(vector))
	}

	normalized := make([]float64, EmotionVectorLength)
	for i, value := range vector {
		normalized[i] = ClampIntensity(value)
	}

	return normalized, nil
}

// ParseEmotionVector decodes a JSON array of intensities and normalizes it.
func ParseEmotionVector(raw string) ([]float64, error) {
	var vector []float64

	err := json.Unmarshal([]byte(raw), &vector)
	if err != nil {
		return nil, fmt.Errorf("failed to parse emotion vector: %w", err)
	}

	return NormalizeEmotionVector(vector)
}
