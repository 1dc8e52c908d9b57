package ttsutils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-gateway/internal/ttsutils"
)

func TestIsValidAudioFile(t *testing.T) {
	t.Parallel()

	assert.True(t, ttsutils.IsValidAudioFile("speech.wav"))
	assert.True(t, ttsutils.IsValidAudioFile("speech.MP3"))
	assert.True(t, ttsutils.IsValidAudioFile("speech.ogg"))
	assert.True(t, ttsutils.IsValidAudioFile("speech.flac"))
	assert.True(t, ttsutils.IsValidAudioFile("speech.m4a"))

	assert.False(t, ttsutils.IsValidAudioFile("speech.txt"))
	assert.False(t, ttsutils.IsValidAudioFile("speech.aac"))
	assert.False(t, ttsutils.IsValidAudioFile("speech"))
}

func TestFileExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wav", ttsutils.FileExtension("Sample.WAV"))
	assert.Equal(t, "mp3", ttsutils.FileExtension("out.mp3"))
	assert.Empty(t, ttsutils.FileExtension("noext"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c.wav", ttsutils.SanitizeFilename("a/b\\c.wav"))
	assert.Equal(t, "ref__.wav", ttsutils.SanitizeFilename("ref?*.wav"))
	assert.Equal(t, "plain.wav", ttsutils.SanitizeFilename("plain.wav"))
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", ttsutils.FormatFileSize(512))
	assert.Equal(t, "1.0 KB", ttsutils.FormatFileSize(1024))
	assert.Equal(t, "2.5 MB", ttsutils.FormatFileSize(2*1024*1024+512*1024))
	assert.Equal(t, "1.0 GB", ttsutils.FormatFileSize(1024*1024*1024))
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, ttsutils.EnsureDir(path))

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())

	// Second call on an existing directory is a no-op.
	require.NoError(t, ttsutils.EnsureDir(path))
}

func TestResolveArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	artifact := filepath.Join(dir, "model.bin")
	require.NoError(t, os.WriteFile(artifact, []byte("weights"), 0o600))

	resolved, err := ttsutils.ResolveArtifact(artifact)
	require.NoError(t, err)
	assert.Equal(t, artifact, resolved)

	_, missingErr := ttsutils.ResolveArtifact(filepath.Join(dir, "missing.bin"))
	require.ErrorIs(t, missingErr, ttsutils.ErrArtifactNotFound)
}
