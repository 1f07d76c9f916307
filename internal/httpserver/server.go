// Package httpserver assembles the HTTP surface: Twilio webhooks, the
// media WebSocket, the published audio directory, and operational
// endpoints.
package httpserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/callbridge/internal/artifact"
	"github.com/chadiek/callbridge/internal/config"
	"github.com/chadiek/callbridge/internal/llm"
	"github.com/chadiek/callbridge/internal/session"
	"github.com/chadiek/callbridge/internal/storage"
	"github.com/chadiek/callbridge/internal/stream"
	"github.com/chadiek/callbridge/internal/transcode"
	"github.com/chadiek/callbridge/internal/transcribe"
	"github.com/chadiek/callbridge/internal/tts"
	"github.com/chadiek/callbridge/internal/twilio"
)

// greetingTimeout bounds greeting synthesis on the inbound webhook; the
// webhook must answer quickly or the call rings dead.
const greetingTimeout = 5 * time.Second

// Server bundles the router and its live dependencies.
type Server struct {
	Echo     *echo.Echo
	Registry *session.Registry

	bridge      *twilio.Bridge
	synthesizer session.Synthesizer
	agentName   string
}

// New wires the full call loop from configuration.
func New(cfg config.Config) (*Server, error) {
	store, err := artifact.NewStore(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	bridge := twilio.NewBridge(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.PublicBaseURL, cfg.AudioDir)

	synth := newSynthesizer(cfg)

	pipeline := &session.Pipeline{
		Store:        store,
		Transcoder:   transcode.NewFFmpeg(cfg.FFmpegPath),
		Transcriber:  transcribe.NewWhisperClient(cfg.OpenAIKey, cfg.Language),
		Generator:    llm.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.AgentName),
		Synthesizer:  synth,
		Updater:      bridge,
		StageTimeout: cfg.StageTimeout,
	}

	archiveCfg := storage.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.SupabaseBucket,
	}
	if archiveCfg.Enabled() {
		archive, aerr := storage.New(archiveCfg)
		if aerr != nil {
			log.Printf("archival disabled: %v", aerr)
		} else {
			pipeline.Archiver = archive
		}
	}

	registry := session.NewRegistry(
		session.Config{FlushBytes: cfg.FlushBytes, MinFrameBytes: cfg.MinFrameBytes},
		pipeline,
	)

	srv := &Server{
		Echo:        echo.New(),
		Registry:    registry,
		bridge:      bridge,
		synthesizer: synth,
		agentName:   cfg.AgentName,
	}
	srv.routes(cfg)
	return srv, nil
}

func newSynthesizer(cfg config.Config) session.Synthesizer {
	if cfg.TTSProvider == "elevenlabs" {
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	}
	return tts.NewOpenAIClient(cfg.OpenAIKey, cfg.TTSVoice)
}

func (s *Server) routes(cfg config.Config) {
	e := s.Echo
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	auth := twilio.AuthMiddleware(cfg.TwilioAuthToken)
	e.POST("/twilio/voice", s.handleVoice, auth)
	e.POST("/twilio/wait", s.handleWait, auth)

	e.GET("/media", echo.WrapHandler(stream.NewHandler(s.Registry)))
	e.Static("/audio", cfg.AudioDir)

	e.GET("/calls", s.handleCalls)
	e.GET("/tts", s.handleTTS)
}

// handleVoice answers a new inbound call: start the media fork, greet the
// caller, enter the listening loop. The greeting is synthesized live;
// when that fails or times out the response degrades to a spoken line so
// the webhook never errors.
func (s *Server) handleVoice(c echo.Context) error {
	params := twilio.Params(c)
	callSID := params["CallSid"]
	log.Printf("[%s] inbound call from %s", callSID, params["From"])

	// https -> wss, http -> ws
	mediaURL := strings.Replace(twilio.BuildAbsoluteURL(c.Request(), "/media"), "http", "ws", 1)

	greetingURL := ""
	ctx, cancel := context.WithTimeout(c.Request().Context(), greetingTimeout)
	defer cancel()
	audio, err := s.synthesizer.Synthesize(ctx, s.greetingText())
	if err == nil {
		if url, perr := s.bridge.PublishClip(audio, ".mp3"); perr == nil {
			greetingURL = url
		} else {
			log.Printf("[%s] greeting publish failed: %v", callSID, perr)
		}
	} else {
		log.Printf("[%s] greeting synthesis failed, using spoken fallback: %v", callSID, err)
	}

	doc, err := twilio.InboundResponse(mediaURL, greetingURL, s.greetingText(), "/twilio/wait")
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	return xmlString(c, doc)
}

// handleWait emits one slice of the self-extending listening loop.
func (s *Server) handleWait(c echo.Context) error {
	doc, err := twilio.WaitResponse("/twilio/wait")
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	return xmlString(c, doc)
}

// handleCalls lists active sessions for debugging.
func (s *Server) handleCalls(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Registry.Snapshot())
}

// handleTTS synthesizes arbitrary text and returns the audio, for voice
// checks without placing a call.
func (s *Server) handleTTS(c echo.Context) error {
	text := c.QueryParam("text")
	if strings.TrimSpace(text) == "" {
		return c.String(http.StatusBadRequest, "missing text parameter")
	}
	audio, err := s.synthesizer.Synthesize(c.Request().Context(), text)
	if err != nil {
		log.Printf("tts check failed: %v", err)
		return c.String(http.StatusBadGateway, "synthesis failed")
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) greetingText() string {
	return fmt.Sprintf("Hello, this is %s. How can I help you today?", s.agentName)
}

func xmlString(c echo.Context, doc string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, doc)
}
