// Package server provides the HTTP surface of the voice-gateway: route
// wiring and the request façade that validates input, stages uploads,
// dispatches to a synthesis engine, and guarantees temp-file cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/book-expert/voice-gateway/internal/config"
	"github.com/book-expert/voice-gateway/internal/engine"
	"github.com/book-expert/voice-gateway/internal/ttsutils"
)

// Defaults for the HTTP surface.
const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 5000
	defaultMaxUploadSizeMB = 50
	shutdownTimeout        = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

const megabyte = 1 << 20

// Server wires the gin router to the engine registry.
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *engine.Registry
	router   *gin.Engine
	workDir  string
}

// New creates the HTTP server, ensuring the staging work directory exists.
func New(cfg *config.Config, log *logger.Logger, registry *engine.Registry) (*Server, error) {
	workDir := cfg.Paths.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}

	dirErr := ttsutils.EnsureDir(workDir)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to prepare work directory: %w", dirErr)
	}

	srv := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		workDir:  workDir,
	}

	srv.router = srv.buildRouter()

	return srv, nil
}

// Router exposes the gin engine, primarily for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	host := s.cfg.HTTP.Host
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.HTTP.Port
	if port == 0 {
		port = defaultPort
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErrCh := make(chan error, 1)

	go func() {
		serveErr := httpServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}

		close(serveErrCh)
	}()

	s.log.System("Voice gateway listening on %s", httpServer.Addr)

	select {
	case serveErr := <-serveErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("http server shutdown failed: %w", shutdownErr)
	}

	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	maxUploadMB := s.cfg.HTTP.MaxUploadSizeMB
	if maxUploadMB == 0 {
		maxUploadMB = defaultMaxUploadSizeMB
	}

	router.MaxMultipartMemory = int64(maxUploadMB) * megabyte

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/engines", s.handleEngines)
		api.GET("/voices", s.handleVoices)
		api.POST("/convert/text-to-speech", s.handleTextToSpeech)
		api.POST("/validate-audio", s.handleValidateAudio)

		indexAPI := api.Group("/index-tts")
		{
			indexAPI.POST("/clone-voice", s.handleIndexCloneVoice)
			indexAPI.POST("/synthesize-emotion", s.handleIndexSynthesizeEmotion)
			indexAPI.GET("/emotions", s.handleEmotions)
		}

		coquiAPI := api.Group("/coqui")
		{
			coquiAPI.GET("/models", s.handleCoquiModels)
			coquiAPI.GET("/languages", s.handleCoquiLanguages)
			coquiAPI.POST("/synthesize", s.handleCoquiSynthesize)
			coquiAPI.POST("/clone-voice", s.handleCoquiCloneVoice)
			coquiAPI.POST("/convert-voice", s.handleCoquiConvertVoice)
		}
	}

	return router
}
