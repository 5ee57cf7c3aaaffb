package language

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/text/language"
)

func TestDefaultCatalogLookup(t *testing.T) {
	c := Default()

	cases := map[string]string{
		"fr":      "fr",
		"FR":      "fr",
		"fr-CA":   "fr",
		"Deutsch": "de",
		"en-GB":   "en",
	}
	for key, want := range cases {
		p, err := c.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", key, err)
		}
		if p.Code != want {
			t.Fatalf("Lookup(%q).Code = %q, want %q", key, p.Code, want)
		}
	}

	if _, err := c.Lookup("klingon"); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("Lookup(klingon) error = %v, want ErrUnknownLanguage", err)
	}
}

func TestPivotProfile(t *testing.T) {
	c := Default()
	if !c.Pivot().IsPivot() {
		t.Fatalf("Pivot().IsPivot() = false")
	}
	es, _ := c.Lookup("es")
	if es.IsPivot() {
		t.Fatalf("Spanish reported as pivot")
	}
	if len(c.Profiles()) != 8 {
		t.Fatalf("len(Profiles()) = %d, want 8", len(c.Profiles()))
	}
}

func TestNewCatalogRequiresPivot(t *testing.T) {
	es, _ := Default().Lookup("es")
	if _, err := NewCatalog(es); err == nil {
		t.Fatalf("NewCatalog() without english should fail")
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	body := `languages:
  - code: en
    display_name: English
    transcription_model: en-US_Multimedia
    locale: en-US
  - code: it
    display_name: Italiano
    transcription_model: it-IT_Telephony
    locale: it-IT
    translator_code: it
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	it, err := c.Lookup("it")
	if err != nil {
		t.Fatalf("Lookup(it) error = %v", err)
	}
	if it.Locale.String() != "it-IT" {
		t.Fatalf("Locale = %q, want it-IT", it.Locale.String())
	}
	en, _ := c.Lookup("en")
	if en.TranslatorCode != "en" {
		t.Fatalf("TranslatorCode default = %q, want en", en.TranslatorCode)
	}
}

func TestLoadCatalogEmptyPathUsesDefault(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog(\"\") error = %v", err)
	}
	if _, err := c.Lookup("hi"); err != nil {
		t.Fatalf("Lookup(hi) error = %v", err)
	}
}

type localeName string

func TestLocaleHookAcceptsNamedStringTypes(t *testing.T) {
	hook := localeHook()
	tagType := reflect.TypeOf(language.Tag{})

	got, err := hook(reflect.TypeOf(localeName("")), tagType, localeName("pt-BR"))
	if err != nil {
		t.Fatalf("hook(localeName) error = %v", err)
	}
	if tag, ok := got.(language.Tag); !ok || tag != language.BrazilianPortuguese {
		t.Fatalf("hook(localeName) = %v, want pt-BR tag", got)
	}

	if _, err := hook(reflect.TypeOf(localeName("")), tagType, localeName("not a locale!")); err == nil {
		t.Fatalf("hook(invalid) error = nil, want parse failure")
	}

	passthrough, err := hook(reflect.TypeOf(""), reflect.TypeOf(""), "fr")
	if err != nil || passthrough != "fr" {
		t.Fatalf("hook(string->string) = %v, %v, want fr unchanged", passthrough, err)
	}
}
