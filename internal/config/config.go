package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	TwilioAccountSID string
	TwilioAuthToken  string

	OpenAIKey   string
	OpenAIModel string
	Language    string
	AgentName   string

	TTSProvider       string // "openai" or "elevenlabs"
	TTSVoice          string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// Streaming session tuning. FlushBytes is how much buffered call audio
	// triggers a pipeline run; frames below MinFrameBytes carry no usable
	// signal and are discarded.
	FlushBytes    int
	MinFrameBytes int
	StageTimeout  time.Duration

	FFmpegPath string
	TempDir    string
	AudioDir   string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL == "" {
		log.Println("Warning: PUBLIC_BASE_URL not set - published audio URLs will not be reachable from Twilio")
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - transcription, replies and TTS will not work")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	twilioSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioToken := os.Getenv("TWILIO_AUTH_TOKEN")
	if twilioSID == "" || twilioToken == "" {
		log.Println("Warning: TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN not set - call updates will not work")
	}

	provider := os.Getenv("TTS_PROVIDER")
	if provider == "" {
		provider = "openai"
	}
	voice := os.Getenv("TTS_VOICE")
	if voice == "" {
		voice = "onyx"
	}

	lang := os.Getenv("LANGUAGE")
	if lang == "" {
		lang = "en"
	}
	agent := os.Getenv("AGENT_NAME")
	if agent == "" {
		agent = "Ava"
	}

	ffmpeg := os.Getenv("FFMPEG_PATH")
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	tempDir := os.Getenv("TEMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	audioDir := os.Getenv("AUDIO_DIR")
	if audioDir == "" {
		audioDir = "public/audio"
	}

	cfg := Config{
		HTTPAddress:   addr,
		PublicBaseURL: baseURL,

		TwilioAccountSID: twilioSID,
		TwilioAuthToken:  twilioToken,

		OpenAIKey:   openAIKey,
		OpenAIModel: model,
		Language:    lang,
		AgentName:   agent,

		TTSProvider:       provider,
		TTSVoice:          voice,
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),

		FlushBytes:    getEnvInt("FLUSH_BYTES", 30000),
		MinFrameBytes: getEnvInt("MIN_FRAME_BYTES", 160),
		StageTimeout:  getEnvDuration("STAGE_TIMEOUT", 30*time.Second),

		FFmpegPath: ffmpeg,
		TempDir:    tempDir,
		AudioDir:   audioDir,

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "call-audio"),
	}

	log.Printf("config: HTTP_ADDRESS=%s FLUSH_BYTES=%d MIN_FRAME_BYTES=%d TTS_PROVIDER=%s",
		cfg.HTTPAddress, cfg.FlushBytes, cfg.MinFrameBytes, cfg.TTSProvider)
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
