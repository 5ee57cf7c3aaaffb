package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/docent/internal/config"
	"github.com/ent0n29/docent/internal/translation"
	"github.com/ent0n29/docent/internal/voice"
)

// providerSetup holds the external collaborators picked for this process.
type providerSetup struct {
	transcriber voice.Transcriber
	translator  translation.Translator
	synthesizer voice.Synthesizer

	resolvedTranscription string
	resolvedTranslation   string
	resolvedVoice         string
}

func (p providerSetup) detail() string {
	return fmt.Sprintf("transcription=%s translation=%s voice=%s", p.resolvedTranscription, p.resolvedTranslation, p.resolvedVoice)
}

func resolveProviders(cfg config.Config) (providerSetup, error) {
	var out providerSetup

	switch mode(cfg.TranscriptionProvider) {
	case "http":
		if strings.TrimSpace(cfg.TranscriptionURL) == "" {
			return providerSetup{}, fmt.Errorf("TRANSCRIPTION_PROVIDER=http but TRANSCRIPTION_URL is not set")
		}
		out.transcriber, out.resolvedTranscription = newHTTPTranscriber(cfg), "http"
	case "mock":
		out.transcriber, out.resolvedTranscription = voice.NewMockTranscriber(), "mock"
	case "auto":
		if strings.TrimSpace(cfg.TranscriptionURL) != "" {
			out.transcriber, out.resolvedTranscription = newHTTPTranscriber(cfg), "http"
		} else {
			out.transcriber, out.resolvedTranscription = voice.NewMockTranscriber(), "mock"
		}
	default:
		return providerSetup{}, fmt.Errorf("invalid TRANSCRIPTION_PROVIDER: %q (expected auto|http|mock)", cfg.TranscriptionProvider)
	}

	switch mode(cfg.TranslationProvider) {
	case "http":
		if strings.TrimSpace(cfg.TranslationURL) == "" {
			return providerSetup{}, fmt.Errorf("TRANSLATION_PROVIDER=http but TRANSLATION_URL is not set")
		}
		out.translator, out.resolvedTranslation = translation.NewHTTPTranslator(cfg.TranslationURL, cfg.TranslationAPIKey), "http"
	case "mock":
		out.translator, out.resolvedTranslation = translation.NewDictionaryTranslator(nil), "dictionary"
	case "auto":
		if strings.TrimSpace(cfg.TranslationURL) != "" {
			out.translator, out.resolvedTranslation = translation.NewHTTPTranslator(cfg.TranslationURL, cfg.TranslationAPIKey), "http"
		} else {
			out.translator, out.resolvedTranslation = translation.NewDictionaryTranslator(nil), "dictionary"
		}
	default:
		return providerSetup{}, fmt.Errorf("invalid TRANSLATION_PROVIDER: %q (expected auto|http|mock)", cfg.TranslationProvider)
	}

	tryElevenLabs := func() bool {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return false
		}
		out.synthesizer = voice.NewElevenLabsSynthesizer(voice.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			WSBaseURL:    cfg.ElevenLabsWSBaseURL,
			VoiceID:      cfg.ElevenLabsTTSVoice,
			ModelID:      cfg.ElevenLabsTTSModel,
			OutputFormat: cfg.ElevenLabsTTSOutputFormat,
		})
		out.resolvedVoice = "elevenlabs"
		return true
	}

	switch mode(cfg.VoiceProvider) {
	case "elevenlabs":
		if !tryElevenLabs() {
			return providerSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
	case "mock":
		out.synthesizer, out.resolvedVoice = voice.NewMockSynthesizer(), "mock"
	case "auto":
		if !tryElevenLabs() {
			out.synthesizer, out.resolvedVoice = voice.NewMockSynthesizer(), "mock"
		}
	default:
		return providerSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.VoiceProvider)
	}

	return out, nil
}

func newHTTPTranscriber(cfg config.Config) *voice.HTTPTranscriber {
	return voice.NewHTTPTranscriber(voice.HTTPTranscriberConfig{
		BaseURL: cfg.TranscriptionURL,
		APIKey:  cfg.TranscriptionAPIKey,
		Timeout: cfg.TurnTimeout,
	})
}

func mode(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "auto"
	}
	return v
}
