package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the clinic voice agent service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when behind ngrok).
	// Twilio is told to attach the media stream to wss://<this-host>/voice/stream.
	// Optional; if unset, the incoming-call webhook derives the host from the request.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	// Feature flag: when false the incoming-call webhook plays an apology and hangs up.
	VoiceAgentEnabled bool `envconfig:"VOICE_AGENT_ENABLED" default:"true"`

	// Deepgram STT API configuration
	DeepgramAPIKey       string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel        string `envconfig:"DEEPGRAM_MODEL" default:"nova-2-phonecall"`
	DeepgramLanguage     string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	DeepgramUtteranceEnd string `envconfig:"DEEPGRAM_UTTERANCE_END_MS" default:"1200"` // silence before UtteranceEnd fires

	// ElevenLabs TTS configuration (primary synthesis provider)
	ElevenLabsAPIKey  string `envconfig:"ELEVENLABS_API_KEY" required:"true"`
	ElevenLabsVoiceID string `envconfig:"ELEVENLABS_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`
	ElevenLabsModelID string `envconfig:"ELEVENLABS_MODEL_ID" default:"eleven_turbo_v2_5"`

	// OpenAI configuration (conversation model + fallback TTS provider)
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAITTSModel string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAIVoice    string `envconfig:"OPENAI_VOICE" default:"alloy"`

	// Redis session store
	RedisAddr         string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB           int    `envconfig:"REDIS_DB" default:"0"`
	CallSessionTTL    int    `envconfig:"CALL_SESSION_TTL" default:"3600"` // seconds
	ScratchDefaultTTL int    `envconfig:"SCRATCH_DEFAULT_TTL" default:"300"`

	// Booking service (clinic backend) REST API
	BookingAPIURL     string `envconfig:"BOOKING_API_URL" default:"http://localhost:8000/api/v1"`
	BookingAPITimeout int    `envconfig:"BOOKING_API_TIMEOUT" default:"10"` // seconds

	// Twilio credentials (SMS confirmations)
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER" default:""`
	SMSConfirmation   bool   `envconfig:"ENABLE_SMS_CONFIRMATION" default:"false"`

	// Clinic identity used in the greeting, system prompt and SMS templates
	ClinicName    string `envconfig:"CLINIC_NAME" default:"HealthCare Clinic"`
	ClinicAddress string `envconfig:"CLINIC_ADDRESS" default:"123 Health Street"`

	// Call handshake: how long to wait for the protocol start event per attempt,
	// and how many attempts before the connection is closed with a policy error.
	StartEventTimeout  int `envconfig:"START_EVENT_TIMEOUT" default:"10"` // seconds
	StartEventAttempts int `envconfig:"START_EVENT_ATTEMPTS" default:"3"`

	// Outbound audio pacing
	FrameSize          int `envconfig:"FRAME_SIZE" default:"160"`           // bytes per frame, 20ms of 8kHz PCMU
	FrameIntervalMs    int `envconfig:"FRAME_INTERVAL_MS" default:"20"`     // real-time quantum per frame
	LivenessCheckEvery int `envconfig:"LIVENESS_CHECK_EVERY" default:"100"` // frames between transport liveness checks

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load from a .env file if it exists, then from environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.ElevenLabsAPIKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.SMSConfirmation && (cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioPhoneNumber == "") {
		return nil, fmt.Errorf("ENABLE_SMS_CONFIRMATION requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
