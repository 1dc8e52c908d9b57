// Package worker provides the NATS worker that renders text chunks from the
// processing pipeline into audio.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-gateway/internal/core"
)

const handleMessageTimeout = 120 * time.Second

// Renderer turns a text chunk into an audio file at outputPath using the
// named catalog voice.
type Renderer interface {
	SynthesizeWithVoice(ctx context.Context, text, voice, outputPath string) error
}

// NatsWorker subscribes to text-processed events, renders each chunk, and
// replies with an audio-chunk-created event pointing at the uploaded audio.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	renderer       Renderer
	workDir        string
	log            *logger.Logger
}

// NewNatsWorker creates a worker bound to the given subject and stores.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	renderer Renderer,
	workDir string,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		renderer:       renderer,
		workDir:        workDir,
		log:            log,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains the
// subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, subErr := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if subErr != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, subErr)
	}

	w.log.Info("Worker listening on subject %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	unmarshalErr := json.Unmarshal(msg.Data, &event)
	if unmarshalErr != nil {
		w.log.Error("Failed to unmarshal event: %v", unmarshalErr)

		return
	}

	audioKey, renderErr := w.renderChunk(ctx, &event)
	if renderErr != nil {
		w.log.Error(
			"Failed to render chunk for workflow %s: %v",
			event.Header.WorkflowID, renderErr,
		)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	replyErr := w.publishReply(msg, replyEvent)
	if replyErr != nil {
		w.log.Error(
			"Failed to publish reply for workflow %s: %v",
			event.Header.WorkflowID, replyErr,
		)
	}
}

// renderChunk downloads the chunk text, synthesizes it, uploads the audio,
// and returns the audio object key. The local audio file is removed after
// the upload.
func (w *NatsWorker) renderChunk(
	ctx context.Context,
	event *events.TextProcessedEvent,
) (string, error) {
	textData, downloadErr := w.textStore.Download(ctx, event.TextKey)
	if downloadErr != nil {
		return "", fmt.Errorf(
			"failed to download text for key '%s': %w", event.TextKey, downloadErr,
		)
	}

	outputPath := filepath.Join(w.workDir, "chunk_"+uuid.NewString()+".mp3")

	defer func() {
		removeErr := os.Remove(outputPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			w.log.Warn("Failed to remove chunk output '%s': %v", outputPath, removeErr)
		}
	}()

	synthErr := w.renderer.SynthesizeWithVoice(
		ctx, string(textData), event.Voice, outputPath,
	)
	if synthErr != nil {
		return "", fmt.Errorf("failed to synthesize chunk: %w", synthErr)
	}

	audioData, readErr := os.ReadFile(outputPath)
	if readErr != nil {
		return "", fmt.Errorf("failed to read chunk output: %w", readErr)
	}

	audioKey := uuid.NewString() + ".mp3"

	uploadErr := w.audioStore.Upload(ctx, audioKey, audioData)
	if uploadErr != nil {
		return "", fmt.Errorf(
			"failed to upload audio for key '%s': %w", audioKey, uploadErr,
		)
	}

	return audioKey, nil
}

func (w *NatsWorker) publishReply(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, marshalErr := json.Marshal(replyEvent)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal reply event: %w", marshalErr)
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		return fmt.Errorf("failed to respond with reply event: %w", respondErr)
	}

	return nil
}
