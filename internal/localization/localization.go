// Package localization provides the texts of server generated notices: room
// join and leave messages and session termination reasons. Translations are
// JSON files named by language code (e.g. "en.json"); English and Ukrainian
// are built in and a directory can add or override languages.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

const DefaultLanguage = "en"

// Notice keys.
const (
	KeyRoomJoined         = "room.joined"
	KeyRoomLeft           = "room.left"
	KeySessionIdleTimeout = "session.idle_timeout"
)

//go:embed locales/*.json
var builtin embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// Default returns a Localizer with the built-in translations.
func Default() *Localizer {
	l := &Localizer{translations: make(map[string]map[string]string)}
	sub, err := fs.Sub(builtin, "locales")
	if err == nil {
		err = l.load(sub)
	}
	if err != nil {
		// вбудовані файли перевіряються тестами
		panic(fmt.Sprintf("localization: broken built-in translations: %v", err))
	}
	return l
}

// NewLocalizer loads the built-in translations, then every JSON file found in
// path. Keys from path override the built-in ones.
func NewLocalizer(path string) (*Localizer, error) {
	l := Default()
	if path == "" {
		return l, nil
	}
	if err := l.load(os.DirFS(path)); err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}
	return l, nil
}

func (l *Localizer) load(fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}
		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		if l.translations[lang] == nil {
			l.translations[lang] = make(map[string]string, len(translations))
		}
		for k, v := range translations {
			l.translations[lang][k] = v
		}
	}
	return nil
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	// Fallback to a default language if the key is not found in the specified language
	if lang != DefaultLanguage {
		if enTranslations, ok := l.translations[DefaultLanguage]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format looks up key and applies fmt.Sprintf with args.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		out = append(out, lang)
	}
	return out
}
