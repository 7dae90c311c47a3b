// Package i18n provides user-visible strings with per-language catalogs,
// default-language fallback and a visible placeholder for missing keys.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed locales/*.json
var localesFS embed.FS

// SupportedLangs lists the language codes a catalog is shipped for.
var SupportedLangs = []string{"en", "it"}

const (
	placeholderStart = "<%"
	placeholderEnd   = "%>"
	notFoundKey      = "i18n.string_not_found"
)

// Catalog holds every loaded language catalog.
type Catalog struct {
	strings     map[string]map[string]string
	defaultLang string
}

// Load parses the embedded locale files. Long strings may be written as
// JSON arrays of lines; they are joined on load. defaultLang must be one
// of SupportedLangs.
func Load(defaultLang string) (*Catalog, error) {
	if !supported(defaultLang) {
		return nil, fmt.Errorf("unsupported default language %q", defaultLang)
	}

	c := &Catalog{
		strings:     make(map[string]map[string]string),
		defaultLang: defaultLang,
	}

	for _, lang := range SupportedLangs {
		data, err := localesFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", lang, err)
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", lang, err)
		}

		table := make(map[string]string, len(raw))
		for key, value := range raw {
			switch v := value.(type) {
			case string:
				table[key] = v
			case []any:
				var b strings.Builder
				for _, line := range v {
					s, ok := line.(string)
					if !ok {
						return nil, fmt.Errorf("locale %s key %s: non-string array entry", lang, key)
					}
					b.WriteString(s)
				}
				table[key] = b.String()
			default:
				return nil, fmt.Errorf("locale %s key %s: unsupported value type", lang, key)
			}
		}
		c.strings[lang] = table
	}

	return c, nil
}

// DefaultLang returns the configured fallback language code.
func (c *Catalog) DefaultLang() string { return c.defaultLang }

// Locale returns the view of the catalog for the given language,
// falling back to the default language for unknown codes.
func (c *Catalog) Locale(langCode string) *Locale {
	if !supported(langCode) {
		langCode = c.defaultLang
	}
	return &Locale{cat: c, lang: langCode}
}

func supported(langCode string) bool {
	for _, l := range SupportedLangs {
		if l == langCode {
			return true
		}
	}
	return false
}

// Locale resolves strings for one language.
type Locale struct {
	cat  *Catalog
	lang string
}

// Lang returns the locale's language code.
func (l *Locale) Lang() string { return l.lang }

// GetString returns the string for key in this locale, falling back to
// the default language, then to a visible "string not found" marker.
// Nested <%key%> placeholders are expanded recursively.
func (l *Locale) GetString(key string) string {
	if s, ok := l.cat.strings[l.lang][key]; ok {
		return l.expand(s)
	}
	if l.lang != l.cat.defaultLang {
		if s, ok := l.cat.strings[l.cat.defaultLang][key]; ok {
			return l.expand(s)
		}
	}

	notFound := l.cat.strings[l.cat.defaultLang][notFoundKey]
	return strings.ReplaceAll(notFound, "[key]", key)
}

// expand substitutes <%key%> references with the referenced strings.
func (l *Locale) expand(s string) string {
	for {
		start := strings.Index(s, placeholderStart)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], placeholderEnd)
		if end == -1 {
			return s
		}
		end += start

		key := strings.TrimSpace(s[start+len(placeholderStart) : end])
		s = s[:start] + l.GetString(key) + s[end+len(placeholderEnd):]
	}
}
