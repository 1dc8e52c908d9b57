package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-gateway/internal/audio"
	"github.com/book-expert/voice-gateway/internal/core"
	"github.com/book-expert/voice-gateway/internal/engine"
	"github.com/book-expert/voice-gateway/internal/staging"
	"github.com/book-expert/voice-gateway/internal/text"
	"github.com/book-expert/voice-gateway/internal/ttsutils"
)

// User-facing request errors.
const (
	msgNoText             = "No text provided"
	msgNoVoice            = "No voice selected"
	msgNoAudioFile        = "No audio file provided"
	msgNoReferenceAudio   = "No reference audio provided"
	msgNoSpeakerAudio     = "No speaker audio provided"
	msgNoSourceAudio      = "Source audio file is required"
	msgNoTargetAudio      = "Target audio file is required"
	msgNoFileSelected     = "No file selected"
	msgInvalidFileType    = "Invalid file type"
	msgInvalidIntensity   = "Invalid emotion intensity"
	msgNoEmotionAudio     = "No emotion audio provided"
	msgNoEmotionVector    = "No emotion vector provided"
)

// Form field names.
const (
	fieldText             = "text"
	fieldVoice            = "voice"
	fieldLanguage         = "language"
	fieldAudio            = "audio"
	fieldReferenceAudio   = "reference_audio"
	fieldSpeakerAudio     = "speaker_audio"
	fieldEmotionMode      = "emotion_mode"
	fieldEmotionAudio     = "emotion_audio"
	fieldEmotionVector    = "emotion_vector"
	fieldEmotionIntensity = "emotion_intensity"
	fieldSourceAudio      = "source_audio"
	fieldTargetAudio      = "target_audio"
)

// Emotion modes.
const (
	emotionModeNone   = "none"
	emotionModeAudio  = "audio"
	emotionModeVector = "vector"
)

// Download names for generated audio.
const (
	downloadNameTTS        = "converted_speech.mp3"
	downloadNameCloned     = "cloned_voice.wav"
	downloadNameEmotional  = "emotional_speech.wav"
	downloadNameCoqui      = "coqui_speech.wav"
	downloadNameCoquiClone = "coqui_cloned_voice.wav"
	downloadNameConverted  = "coqui_converted_voice.wav"
)

// Output extensions.
const (
	extMP3 = "mp3"
	extWAV = "wav"
)

const defaultEmotionIntensity = 1.0

// voiceSynthesizer is the catalog-voice synthesis capability of the cloud
// engine.
type voiceSynthesizer interface {
	SynthesizeWithVoice(ctx context.Context, input, voice, outputPath string) error
}

// handleHealth reports process status and which engines have been loaded.
// Loading state is read, never forced, so health stays cheap.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"edge_tts_loaded":  s.registry.Loaded(engine.KindEdgeTTS),
		"index_tts_loaded": s.registry.Loaded(engine.KindIndexTTS),
		"coqui_tts_loaded": s.registry.Loaded(engine.KindCoquiTTS),
	})
}

// handleEngines lists every engine with its availability, computed per call.
func (s *Server) handleEngines(c *gin.Context) {
	descriptors := s.registry.Describe()

	c.JSON(http.StatusOK, gin.H{
		"engines": descriptors,
		"total":   len(descriptors),
	})
}

// handleVoices lists the cloud voice catalog, grouped by locale.
func (s *Server) handleVoices(c *gin.Context) {
	eng, err := s.registry.Get(engine.KindEdgeTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	catalog, ok := eng.(core.VoiceCatalog)
	if !ok {
		s.respondError(c, engine.ErrUnsupportedOperation)

		return
	}

	voices := catalog.Voices()

	grouped := make(map[string][]core.Voice)
	for _, voice := range voices {
		grouped[voice.Locale] = append(grouped[voice.Locale], voice)
	}

	c.JSON(http.StatusOK, gin.H{
		"voices":  voices,
		"grouped": grouped,
		"total":   len(voices),
	})
}

// handleTextToSpeech converts text to speech with a cloud catalog voice.
// Unknown voices fall back to the default voice rather than failing.
func (s *Server) handleTextToSpeech(c *gin.Context) {
	input, hasText := c.GetPostForm(fieldText)
	if !hasText {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoText})

		return
	}

	voice, hasVoice := c.GetPostForm(fieldVoice)
	if !hasVoice {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoVoice})

		return
	}

	validationErr := text.Validate(input)
	if validationErr != nil {
		s.respondError(c, validationErr)

		return
	}

	eng, err := s.registry.Get(engine.KindEdgeTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	edge, ok := eng.(voiceSynthesizer)
	if !ok {
		s.respondError(c, engine.ErrUnsupportedOperation)

		return
	}

	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	outputPath := job.OutputPath(extMP3)

	s.log.Info("Converting text to speech with voice %s", voice)

	synthErr := edge.SynthesizeWithVoice(c.Request.Context(), input, voice, outputPath)
	if synthErr != nil {
		s.respondError(c, synthErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameTTS)
}

// handleValidateAudio stages an upload, validates it, and reports the
// structured result. The staged copy is always removed.
func (s *Server) handleValidateAudio(c *gin.Context) {
	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	stagedPath, ok := s.stageUpload(c, job, fieldAudio, msgNoAudioFile)
	if !ok {
		return
	}

	result := audio.ValidateReference(stagedPath)

	c.JSON(http.StatusOK, result)
}

// handleIndexCloneVoice clones a voice from a reference recording with the
// index-tts2 engine.
func (s *Server) handleIndexCloneVoice(c *gin.Context) {
	input, ok := s.requireText(c)
	if !ok {
		return
	}

	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	referencePath, ok := s.stageUpload(c, job, fieldReferenceAudio, msgNoReferenceAudio)
	if !ok {
		return
	}

	cloner, err := s.voiceCloner(engine.KindIndexTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	outputPath := job.OutputPath(extWAV)

	s.log.Info("Cloning voice with Index-TTS2")

	cloneErr := cloner.CloneVoice(c.Request.Context(), input, referencePath, outputPath, "")
	if cloneErr != nil {
		s.respondError(c, cloneErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameCloned)
}

// handleIndexSynthesizeEmotion synthesizes speech with emotional control:
// none (plain cloning), an emotion reference recording, or an 8-dimensional
// emotion vector.
func (s *Server) handleIndexSynthesizeEmotion(c *gin.Context) {
	input, ok := s.requireText(c)
	if !ok {
		return
	}

	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	speakerPath, ok := s.stageUpload(c, job, fieldSpeakerAudio, msgNoSpeakerAudio)
	if !ok {
		return
	}

	eng, err := s.registry.Get(engine.KindIndexTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	emotional, isEmotional := eng.(core.EmotionSynthesizer)
	if !isEmotional {
		s.respondError(c, engine.ErrUnsupportedOperation)

		return
	}

	outputPath := job.OutputPath(extWAV)
	mode := c.DefaultPostForm(fieldEmotionMode, emotionModeNone)

	synthErr := s.dispatchEmotion(c, job, emotional, mode, input, speakerPath, outputPath)
	if synthErr != nil {
		s.respondError(c, synthErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameEmotional)
}

// handleEmotions lists the emotion labels in vector order.
func (s *Server) handleEmotions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"emotions": engine.EmotionLabels,
		"total":    len(engine.EmotionLabels),
	})
}

// handleCoquiModels lists the curated coqui model catalog.
func (s *Server) handleCoquiModels(c *gin.Context) {
	models := engine.CoquiModels()

	c.JSON(http.StatusOK, gin.H{
		"models": models,
		"total":  len(models),
	})
}

// handleCoquiLanguages lists the languages supported by the multilingual
// model.
func (s *Server) handleCoquiLanguages(c *gin.Context) {
	languages := engine.SupportedLanguages()

	c.JSON(http.StatusOK, gin.H{
		"languages": languages,
		"total":     len(languages),
	})
}

// handleCoquiSynthesize performs plain multilingual synthesis.
func (s *Server) handleCoquiSynthesize(c *gin.Context) {
	input, ok := s.requireText(c)
	if !ok {
		return
	}

	language := c.PostForm(fieldLanguage)

	eng, err := s.registry.Get(engine.KindCoquiTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	synth, isSynth := eng.(core.Synthesizer)
	if !isSynth {
		s.respondError(c, engine.ErrUnsupportedOperation)

		return
	}

	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	outputPath := job.OutputPath(extWAV)

	synthErr := synth.Synthesize(c.Request.Context(), input, outputPath, language)
	if synthErr != nil {
		s.respondError(c, synthErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameCoqui)
}

// handleCoquiCloneVoice clones a voice in the requested language.
func (s *Server) handleCoquiCloneVoice(c *gin.Context) {
	input, ok := s.requireText(c)
	if !ok {
		return
	}

	language := c.PostForm(fieldLanguage)

	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	speakerPath, ok := s.stageUpload(c, job, fieldSpeakerAudio, msgNoSpeakerAudio)
	if !ok {
		return
	}

	cloner, err := s.voiceCloner(engine.KindCoquiTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	outputPath := job.OutputPath(extWAV)

	s.log.Info("Cloning voice with Coqui TTS in language: %s", language)

	cloneErr := cloner.CloneVoice(c.Request.Context(), input, speakerPath, outputPath, language)
	if cloneErr != nil {
		s.respondError(c, cloneErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameCoquiClone)
}

// handleCoquiConvertVoice re-renders source speech in the target speaker's
// timbre.
func (s *Server) handleCoquiConvertVoice(c *gin.Context) {
	job := staging.NewJob(s.workDir, s.log)
	defer job.Cleanup()

	sourcePath, ok := s.stageUpload(c, job, fieldSourceAudio, msgNoSourceAudio)
	if !ok {
		return
	}

	targetPath, ok := s.stageUpload(c, job, fieldTargetAudio, msgNoTargetAudio)
	if !ok {
		return
	}

	eng, err := s.registry.Get(engine.KindCoquiTTS)
	if err != nil {
		s.respondError(c, err)

		return
	}

	converter, isConverter := eng.(core.VoiceConverter)
	if !isConverter {
		s.respondError(c, engine.ErrUnsupportedOperation)

		return
	}

	outputPath := job.OutputPath(extWAV)

	s.log.Info("Converting voice with Coqui TTS")

	convertErr := converter.ConvertVoice(c.Request.Context(), sourcePath, targetPath, outputPath)
	if convertErr != nil {
		s.respondError(c, convertErr)

		return
	}

	c.FileAttachment(outputPath, downloadNameConverted)
}

// dispatchEmotion selects the emotional synthesis variant for the requested
// mode. Mode none degrades to plain cloning when the engine supports it.
func (s *Server) dispatchEmotion(
	c *gin.Context,
	job *staging.Job,
	emotional core.EmotionSynthesizer,
	mode, input, speakerPath, outputPath string,
) error {
	switch mode {
	case emotionModeAudio:
		emotionPath, ok := s.stageUpload(c, job, fieldEmotionAudio, msgNoEmotionAudio)
		if !ok {
			return errAlreadyResponded
		}

		intensity, parseErr := parseIntensity(c.DefaultPostForm(
			fieldEmotionIntensity, strconv.FormatFloat(defaultEmotionIntensity, 'f', 1, 64),
		))
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidIntensity})

			return errAlreadyResponded
		}

		s.log.Info("Synthesizing with emotion audio")

		return emotional.SynthesizeWithEmotionAudio(
			c.Request.Context(), input, speakerPath, emotionPath, outputPath, intensity,
		)
	case emotionModeVector:
		raw, hasVector := c.GetPostForm(fieldEmotionVector)
		if !hasVector {
			c.JSON(http.StatusBadRequest, gin.H{"error": msgNoEmotionVector})

			return errAlreadyResponded
		}

		vector, parseErr := engine.ParseEmotionVector(raw)
		if parseErr != nil {
			return parseErr
		}

		s.log.Info("Synthesizing with emotion vector")

		return emotional.SynthesizeWithEmotionVector(
			c.Request.Context(), input, speakerPath, vector, outputPath,
		)
	default:
		cloner, isCloner := emotional.(core.VoiceCloner)
		if !isCloner {
			return engine.ErrUnsupportedOperation
		}

		s.log.Info("Synthesizing without emotion")

		return cloner.CloneVoice(c.Request.Context(), input, speakerPath, outputPath, "")
	}
}

// errAlreadyResponded signals that a handler helper already wrote the HTTP
// response; callers must not write another one.
var errAlreadyResponded = errors.New("response already written")

// requireText extracts and validates the text form field, responding with a
// client error when it is missing or malformed.
func (s *Server) requireText(c *gin.Context) (string, bool) {
	input, hasText := c.GetPostForm(fieldText)
	if !hasText {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoText})

		return "", false
	}

	validationErr := text.Validate(input)
	if validationErr != nil {
		s.respondError(c, validationErr)

		return "", false
	}

	return input, true
}

// stageUpload pulls a multipart file out of the request, checks its name and
// extension, and stages it to a unique temporary path recorded on the job.
// It writes the HTTP error response itself and reports success via ok.
func (s *Server) stageUpload(
	c *gin.Context,
	job *staging.Job,
	field, missingMsg string,
) (string, bool) {
	fileHeader, formErr := c.FormFile(field)
	if formErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": missingMsg})

		return "", false
	}

	if fileHeader.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFileSelected})

		return "", false
	}

	if !ttsutils.IsValidAudioFile(fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidFileType})

		return "", false
	}

	stagedPath, stageErr := s.stageFile(job, fileHeader)
	if stageErr != nil {
		s.respondError(c, stageErr)

		return "", false
	}

	return stagedPath, true
}

func (s *Server) stageFile(job *staging.Job, fileHeader *multipart.FileHeader) (string, error) {
	src, openErr := fileHeader.Open()
	if openErr != nil {
		return "", openErr
	}
	defer src.Close()

	return job.Stage(src, fileHeader.Filename)
}

// respondError maps an error to the HTTP outcome: validation problems are
// client errors, unavailable engines are 503, and everything else is a
// generic failure carrying the error text but never a stack trace.
func (s *Server) respondError(c *gin.Context, err error) {
	if errors.Is(err, errAlreadyResponded) {
		return
	}

	s.log.Error("Request failed: %v", err)

	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, text.ErrEmpty),
		errors.Is(err, text.ErrTooLong),
		errors.Is(err, engine.ErrReferenceNotFound),
		errors.Is(err, engine.ErrInvalidEmotionVector):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// voiceCloner resolves an engine and asserts its cloning capability.
func (s *Server) voiceCloner(kind engine.Kind) (core.VoiceCloner, error) {
	eng, err := s.registry.Get(kind)
	if err != nil {
		return nil, err
	}

	cloner, isCloner := eng.(core.VoiceCloner)
	if !isCloner {
		return nil, engine.ErrUnsupportedOperation
	}

	return cloner, nil
}

func parseIntensity(raw string) (float64, error) {
	value, parseErr := strconv.ParseFloat(raw, 64)
	if parseErr != nil {
		return 0, parseErr
	}

	return engine.ClampIntensity(value), nil
}
