package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/docent/internal/language"
)

// DictionaryTranslator returns deterministic translations for local runs and
// tests. Unknown phrases are tagged with the target language code.
type DictionaryTranslator struct {
	// entries[code][native] = english
	entries map[string]map[string]string

	mu     sync.RWMutex
	source string
}

func NewDictionaryTranslator(entries map[string]map[string]string) *DictionaryTranslator {
	if entries == nil {
		entries = defaultDictionary()
	}
	return &DictionaryTranslator{entries: entries}
}

func defaultDictionary() map[string]map[string]string {
	return map[string]map[string]string{
		"es": {"Hola": "Hello", "Gracias": "Thank you", "¿Dónde está la salida?": "Where is the exit?"},
		"fr": {"Bonjour": "Hello", "Merci": "Thank you", "Où est la sortie ?": "Where is the exit?"},
		"de": {"Hallo": "Hello", "Danke": "Thank you", "Wo ist der Ausgang?": "Where is the exit?"},
	}
}

func (d *DictionaryTranslator) Initialize(ctx context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = ""
	if err := ctx.Err(); err != nil {
		return err
	}
	d.source = strings.ToLower(strings.TrimSpace(code))
	return nil
}

func (d *DictionaryTranslator) ToPivot(_ context.Context, text string) (string, error) {
	src, err := d.sourceCode()
	if err != nil {
		return "", err
	}
	if out, ok := d.entries[src][text]; ok {
		return out, nil
	}
	return fmt.Sprintf("[%s] %s", language.PivotCode, text), nil
}

func (d *DictionaryTranslator) FromPivot(_ context.Context, text string) (string, error) {
	src, err := d.sourceCode()
	if err != nil {
		return "", err
	}
	for native, english := range d.entries[src] {
		if english == text {
			return native, nil
		}
	}
	return fmt.Sprintf("[%s] %s", src, text), nil
}

func (d *DictionaryTranslator) Close() error { return nil }

func (d *DictionaryTranslator) sourceCode() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.source == "" {
		return "", ErrNotInitialized
	}
	return d.source, nil
}
