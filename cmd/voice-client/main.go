// Command voice-client is a small command-line client for the voice-gateway
// HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Flag names.
const (
	flagURL       = "url"
	flagEngine    = "engine"
	flagText      = "text"
	flagVoice     = "voice"
	flagLanguage  = "language"
	flagReference = "reference"
	flagOutput    = "output"
	flagHealth    = "health"
	flagVoices    = "voices"
)

// Flag descriptions.
const (
	flagURLDesc       = "Base URL of the voice gateway"
	flagEngineDesc    = "Engine to use: edge-tts, index-tts2, or coqui-tts"
	flagTextDesc      = "Text to convert to speech"
	flagVoiceDesc     = "Voice name (edge-tts only)"
	flagLanguageDesc  = "Language code (coqui-tts only)"
	flagReferenceDesc = "Reference audio file for voice cloning"
	flagOutputDesc    = "Output audio file path"
	flagHealthDesc    = "Check gateway health and exit"
	flagVoicesDesc    = "List available voices and exit"
)

// Defaults.
const (
	defaultBaseURL    = "http://localhost:5000"
	defaultEngine     = "edge-tts"
	defaultVoice      = "en-US-AriaNeural"
	defaultOutputFile = "output.mp3"
	requestTimeout    = 5 * time.Minute
	healthTimeout     = 10 * time.Second
)

// Messages.
const (
	errTextRequired      = "--text is required"
	errReferenceRequired = "--reference is required for voice cloning engines"
	errUnknownEngine     = "unknown engine: %s"
	errRequestFailed     = "request failed: %w"
	errGatewayError      = "gateway returned %d: %s"
	msgHealthy           = "Voice gateway is healthy"
	msgGenerated         = "Generated: %s\n"
)

type appFlags struct {
	baseURL   string
	engine    string
	text      string
	voice     string
	language  string
	reference string
	output    string
	health    bool
	voices    bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	client := &gatewayClient{
		baseURL:    flags.baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}

	ctx := context.Background()

	if flags.health {
		return handleHealth(ctx, client)
	}

	if flags.voices {
		return handleVoices(ctx, client)
	}

	return handleSynthesis(ctx, client, flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.baseURL, flagURL, defaultBaseURL, flagURLDesc)
	flag.StringVar(&flags.engine, flagEngine, defaultEngine, flagEngineDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.voice, flagVoice, defaultVoice, flagVoiceDesc)
	flag.StringVar(&flags.language, flagLanguage, "en", flagLanguageDesc)
	flag.StringVar(&flags.reference, flagReference, "", flagReferenceDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.BoolVar(&flags.voices, flagVoices, false, flagVoicesDesc)
	flag.Parse()

	return flags
}

func handleHealth(ctx context.Context, client *gatewayClient) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	err := client.health(healthCtx)
	if err != nil {
		return err
	}

	fmt.Println(msgHealthy)

	return nil
}

func handleVoices(ctx context.Context, client *gatewayClient) error {
	body, err := client.getJSON(ctx, "/api/voices")
	if err != nil {
		return err
	}

	_, writeErr := os.Stdout.Write(body)
	if writeErr != nil {
		return fmt.Errorf("failed to write voice list: %w", writeErr)
	}

	return nil
}

// handleSynthesis validates the flags for the chosen engine and performs
// one synthesis request, writing the audio to the output path.
func handleSynthesis(ctx context.Context, client *gatewayClient, flags appFlags) error {
	if flags.text == "" {
		flag.Usage()

		return errors.New(errTextRequired)
	}

	endpoint, fields, referenceField, buildErr := buildRequest(flags)
	if buildErr != nil {
		return buildErr
	}

	files := map[string]string{}
	if referenceField != "" {
		if flags.reference == "" {
			return errors.New(errReferenceRequired)
		}

		files[referenceField] = flags.reference
	}

	audio, requestErr := client.postForm(ctx, endpoint, fields, files)
	if requestErr != nil {
		return requestErr
	}

	writeErr := os.WriteFile(flags.output, audio, 0o600)
	if writeErr != nil {
		return fmt.Errorf("failed to write output file: %w", writeErr)
	}

	fmt.Printf(msgGenerated, flags.output)

	return nil
}

// buildRequest maps the engine flag to its endpoint, form fields, and the
// form field carrying the reference recording, empty when none is needed.
func buildRequest(flags appFlags) (string, map[string]string, string, error) {
	switch flags.engine {
	case "edge-tts":
		return "/api/convert/text-to-speech", map[string]string{
			"text":  flags.text,
			"voice": flags.voice,
		}, "", nil
	case "index-tts2":
		return "/api/index-tts/clone-voice", map[string]string{
			"text": flags.text,
		}, "reference_audio", nil
	case "coqui-tts":
		return "/api/coqui/clone-voice", map[string]string{
			"text":     flags.text,
			"language": flags.language,
		}, "speaker_audio", nil
	default:
		return "", nil, "", fmt.Errorf(errUnknownEngine, flags.engine)
	}
}

// gatewayClient wraps HTTP access to the gateway.
type gatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func (c *gatewayClient) health(ctx context.Context) error {
	body, err := c.getJSON(ctx, "/api/health")
	if err != nil {
		return err
	}

	var status struct {
		Status string `json:"status"`
	}

	unmarshalErr := json.Unmarshal(body, &status)
	if unmarshalErr != nil {
		return fmt.Errorf("failed to decode health response: %w", unmarshalErr)
	}

	if status.Status != "healthy" {
		return fmt.Errorf("gateway unhealthy: %s", status.Status)
	}

	return nil
}

func (c *gatewayClient) getJSON(ctx context.Context, path string) ([]byte, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf(errRequestFailed, doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errGatewayError, resp.StatusCode, string(body))
	}

	return body, nil
}

// postForm sends a multipart form with the given text fields and file
// attachments and returns the raw response body.
func (c *gatewayClient) postForm(
	ctx context.Context,
	path string,
	fields map[string]string,
	files map[string]string,
) ([]byte, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		fieldErr := writer.WriteField(name, value)
		if fieldErr != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, fieldErr)
		}
	}

	for name, filePath := range files {
		attachErr := attachFile(writer, name, filePath)
		if attachErr != nil {
			return nil, attachErr
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", closeErr)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf(errRequestFailed, doErr)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(errGatewayError, resp.StatusCode, string(body))
	}

	return body, nil
}

func attachFile(writer *multipart.Writer, fieldName, filePath string) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, openErr)
	}
	defer file.Close()

	part, partErr := writer.CreateFormFile(fieldName, filepath.Base(filePath))
	if partErr != nil {
		return fmt.Errorf("failed to create form file: %w", partErr)
	}

	_, copyErr := io.Copy(part, file)
	if copyErr != nil {
		return fmt.Errorf("failed to copy %s: %w", filePath, copyErr)
	}

	return nil
}
