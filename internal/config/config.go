// Package config provides environment-driven configuration for haven.
// All runtime knobs live here so the service context is constructed
// explicitly and passed in, never located via ambient lookup.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Defaults for the haven server.
const (
	DefaultPort            = "5000"
	DefaultDatabasePath    = "haven.db"
	DefaultMediaDir        = "static/voice_messages"
	DefaultMediaPrefix     = "/voice_messages"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultChatModel       = "gpt-3.5-turbo"
	DefaultTranscribeModel = "whisper-1"
	DefaultSpeechModel     = "tts-1"
	DefaultSpeechVoice     = "alloy"
	DefaultCallTimeout     = 30 * time.Second
	DefaultSpeakAttempts   = 3
	DefaultMinAudioBytes   = 1024
	DefaultTokenTTL        = 30 * time.Minute
	DefaultLockoutLimit    = 3
)

// Config holds the full service configuration.
type Config struct {
	// Server
	Port          string
	PublicBaseURL string
	LogLevel      string

	// Storage
	DatabasePath string
	MediaDir     string
	MediaPrefix  string

	// AI providers
	OpenAIKey       string
	OpenAIBaseURL   string
	ChatModel       string
	TranscribeModel string
	SpeechModel     string
	SpeechVoice     string
	CallTimeout     time.Duration

	// Voice pipeline
	SpeakAttempts int
	MinAudioBytes int

	// Auth
	JWTSecret    string
	TokenTTL     time.Duration
	LockoutLimit int

	// Mail
	MailAPIKey  string
	MailBaseURL string
	MailFrom    string
}

// FromEnv builds a Config from environment variables, applying defaults
// for anything unset.
func FromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", DefaultPort),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:"+getEnv("PORT", DefaultPort)),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabasePath: getEnv("DATABASE_PATH", DefaultDatabasePath),
		MediaDir:     getEnv("MEDIA_DIR", DefaultMediaDir),
		MediaPrefix:  getEnv("MEDIA_PREFIX", DefaultMediaPrefix),

		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		ChatModel:       getEnv("CHAT_MODEL", DefaultChatModel),
		TranscribeModel: getEnv("TRANSCRIBE_MODEL", DefaultTranscribeModel),
		SpeechModel:     getEnv("SPEECH_MODEL", DefaultSpeechModel),
		SpeechVoice:     getEnv("SPEECH_VOICE", DefaultSpeechVoice),
		CallTimeout:     getDuration("AI_CALL_TIMEOUT", DefaultCallTimeout),

		SpeakAttempts: getInt("SPEAK_ATTEMPTS", DefaultSpeakAttempts),
		MinAudioBytes: getInt("MIN_AUDIO_BYTES", DefaultMinAudioBytes),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		TokenTTL:     getDuration("TOKEN_TTL", DefaultTokenTTL),
		LockoutLimit: getInt("LOCKOUT_LIMIT", DefaultLockoutLimit),

		MailAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		MailBaseURL: getEnv("MAIL_BASE_URL", "https://api.sendgrid.com"),
		MailFrom:    getEnv("MAIL_FROM", "noreply@havenmind.app"),
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return errors.New("config: OPENAI_API_KEY is required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
