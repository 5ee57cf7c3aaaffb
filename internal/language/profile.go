package language

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// PivotCode is the language every non-native turn is routed through.
const PivotCode = "en"

var ErrUnknownLanguage = errors.New("unknown language")

// Profile ties together the identifiers each collaborator needs for one
// conversation language.
type Profile struct {
	Code               string       `json:"code"`
	DisplayName        string       `json:"display_name"`
	TranscriptionModel string       `json:"transcription_model"`
	Locale             language.Tag `json:"locale"`
	TranslatorCode     string       `json:"translator_code"`
}

// IsPivot reports whether turns in this language skip translation.
func (p Profile) IsPivot() bool {
	return p.Code == PivotCode
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("language code is required")
	}
	if strings.TrimSpace(p.TranscriptionModel) == "" {
		return fmt.Errorf("language %q: transcription model is required", p.Code)
	}
	if p.Locale == language.Und {
		return fmt.Errorf("language %q: locale is required", p.Code)
	}
	if strings.TrimSpace(p.TranslatorCode) == "" {
		return fmt.Errorf("language %q: translator code is required", p.Code)
	}
	return nil
}

// Catalog is the set of languages a session may switch between.
type Catalog struct {
	profiles map[string]Profile
}

func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		p.Code = strings.ToLower(strings.TrimSpace(p.Code))
		if err := p.validate(); err != nil {
			return nil, err
		}
		c.profiles[p.Code] = p
	}
	if _, ok := c.profiles[PivotCode]; !ok {
		return nil, fmt.Errorf("catalog must include the pivot language %q", PivotCode)
	}
	return c, nil
}

// Lookup resolves a code ("fr"), a locale ("fr-FR") or a display name.
func (c *Catalog) Lookup(key string) (Profile, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if p, ok := c.profiles[k]; ok {
		return p, nil
	}
	for _, p := range c.profiles {
		if strings.EqualFold(p.DisplayName, key) {
			return p, nil
		}
	}
	if tag, err := language.Parse(key); err == nil {
		base, _ := tag.Base()
		if p, ok := c.profiles[base.String()]; ok {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, key)
}

// Pivot returns the pivot-language profile.
func (c *Catalog) Pivot() Profile {
	return c.profiles[PivotCode]
}

// Profiles lists every profile ordered by code.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

var builtin = []Profile{
	{Code: "ar", DisplayName: "Arabic", TranscriptionModel: "ar-MS_Telephony", Locale: language.Arabic, TranslatorCode: "ar"},
	{Code: "zh", DisplayName: "中文", TranscriptionModel: "zh-CN_Telephony", Locale: language.MustParse("zh-CN"), TranslatorCode: "zh"},
	{Code: "en", DisplayName: "English", TranscriptionModel: "en-GB_Multimedia", Locale: language.BritishEnglish, TranslatorCode: "en"},
	{Code: "fr", DisplayName: "Français", TranscriptionModel: "fr-FR_Telephony", Locale: language.MustParse("fr-FR"), TranslatorCode: "fr"},
	{Code: "de", DisplayName: "Deutsch", TranscriptionModel: "de-DE_Telephony", Locale: language.MustParse("de-DE"), TranslatorCode: "de"},
	{Code: "hi", DisplayName: "हिंदी", TranscriptionModel: "hi-IN_Telephony", Locale: language.Hindi, TranslatorCode: "hi"},
	{Code: "pt", DisplayName: "Português", TranscriptionModel: "pt-BR_Multimedia", Locale: language.Portuguese, TranslatorCode: "pt"},
	{Code: "es", DisplayName: "Español", TranscriptionModel: "es-ES_Multimedia", Locale: language.Spanish, TranslatorCode: "es"},
}
