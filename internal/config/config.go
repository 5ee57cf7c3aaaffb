package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the exhibit guide service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	// TelemetryExporter is "stdout" or "none".
	TelemetryExporter string

	AllowAnyOrigin bool

	DefaultLanguage     string
	LanguageCatalogFile string
	TurnTimeout         time.Duration
	InitTimeout         time.Duration

	RecordingDir         string
	RecordingMaxDuration time.Duration
	RecordingSampleRate  int

	TranscriptionProvider string
	TranscriptionURL      string
	TranscriptionAPIKey   string

	TranslationProvider string
	TranslationURL      string
	TranslationAPIKey   string

	DialogueAdapterMode      string
	DialogueHTTPURL          string
	DialogueHTTPStreamStrict bool

	VoiceProvider string

	ElevenLabsAPIKey          string
	ElevenLabsWSBaseURL       string
	ElevenLabsTTSVoice        string
	ElevenLabsTTSModel        string
	ElevenLabsTTSOutputFormat string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "docent"),
		TelemetryExporter:   strings.ToLower(envOrDefault("TELEMETRY_EXPORTER", "stdout")),
		AllowAnyOrigin:      false,
		DefaultLanguage:     envOrDefault("APP_DEFAULT_LANGUAGE", "en"),
		LanguageCatalogFile: stringsTrimSpace("LANGUAGE_CATALOG_FILE"),
		RecordingDir:        envOrDefault("RECORDING_DIR", filepath.Join(os.TempDir(), "docent-recordings")),
		RecordingSampleRate: 16000,

		TranscriptionProvider: strings.ToLower(envOrDefault("TRANSCRIPTION_PROVIDER", "auto")),
		TranscriptionURL:      stringsTrimSpace("TRANSCRIPTION_URL"),
		TranscriptionAPIKey:   stringsTrimSpace("TRANSCRIPTION_API_KEY"),
		TranslationProvider:   strings.ToLower(envOrDefault("TRANSLATION_PROVIDER", "auto")),
		TranslationURL:        stringsTrimSpace("TRANSLATION_URL"),
		TranslationAPIKey:     stringsTrimSpace("TRANSLATION_API_KEY"),
		DialogueAdapterMode:   envOrDefault("DIALOGUE_ADAPTER_MODE", "auto"),
		DialogueHTTPURL:       stringsTrimSpace("DIALOGUE_HTTP_URL"),

		VoiceProvider:       strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		// Browsers decode mp3 chunks directly.
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),

		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:      15 * time.Second,
		TurnTimeout:          45 * time.Second,
		InitTimeout:          20 * time.Second,
		RecordingMaxDuration: 30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TurnTimeout, err = durationFromEnv("APP_TURN_TIMEOUT", cfg.TurnTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InitTimeout, err = durationFromEnv("APP_INIT_TIMEOUT", cfg.InitTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordingMaxDuration, err = durationFromEnv("RECORDING_MAX_DURATION", cfg.RecordingMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordingSampleRate, err = intFromEnv("RECORDING_SAMPLE_RATE", cfg.RecordingSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DialogueHTTPStreamStrict, err = boolFromEnv("DIALOGUE_HTTP_STREAM_STRICT", cfg.DialogueHTTPStreamStrict)
	if err != nil {
		return Config{}, err
	}

	if cfg.TurnTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_TURN_TIMEOUT must be at least 1s")
	}
	if cfg.InitTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_INIT_TIMEOUT must be at least 1s")
	}
	if cfg.RecordingMaxDuration <= 0 {
		return Config{}, fmt.Errorf("RECORDING_MAX_DURATION must be positive")
	}
	if cfg.RecordingSampleRate < 8000 || cfg.RecordingSampleRate > 48000 {
		return Config{}, fmt.Errorf("RECORDING_SAMPLE_RATE must be between 8000 and 48000")
	}
	for key, v := range map[string]string{
		"TRANSCRIPTION_PROVIDER": cfg.TranscriptionProvider,
		"TRANSLATION_PROVIDER":   cfg.TranslationProvider,
	} {
		switch v {
		case "auto", "http", "mock":
		default:
			return Config{}, fmt.Errorf("%s must be auto, http or mock", key)
		}
	}
	switch cfg.TelemetryExporter {
	case "stdout", "none":
	default:
		return Config{}, fmt.Errorf("TELEMETRY_EXPORTER must be stdout or none")
	}
	switch cfg.VoiceProvider {
	case "auto", "elevenlabs", "mock":
	default:
		return Config{}, fmt.Errorf("VOICE_PROVIDER must be auto, elevenlabs or mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
