package language

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

type fileProfile struct {
	Code               string       `mapstructure:"code"`
	DisplayName        string       `mapstructure:"display_name"`
	TranscriptionModel string       `mapstructure:"transcription_model"`
	Locale             language.Tag `mapstructure:"locale"`
	TranslatorCode     string       `mapstructure:"translator_code"`
}

// LoadCatalog reads a catalog file (yaml, json or toml) with a top-level
// "languages" list. An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read language catalog: %w", err)
	}

	var entries []fileProfile
	if err := v.UnmarshalKey("languages", &entries, viper.DecodeHook(localeHook())); err != nil {
		return nil, fmt.Errorf("decode language catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("language catalog %s has no languages", path)
	}

	profiles := make([]Profile, 0, len(entries))
	for _, e := range entries {
		translator := e.TranslatorCode
		if translator == "" {
			translator = e.Code
		}
		profiles = append(profiles, Profile{
			Code:               e.Code,
			DisplayName:        e.DisplayName,
			TranscriptionModel: e.TranscriptionModel,
			Locale:             e.Locale,
			TranslatorCode:     translator,
		})
	}
	return NewCatalog(profiles...)
}

func localeHook() mapstructure.DecodeHookFuncType {
	tagType := reflect.TypeOf(language.Tag{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != tagType || from.Kind() != reflect.String {
			return data, nil
		}
		raw := reflect.ValueOf(data).String()
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", raw, err)
		}
		return tag, nil
	}
}
