// Package i18n loads JSON message bundles and picks a locale for each request.
package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Bundle holds one flat key/message dictionary per supported locale.
type Bundle struct {
	dict      map[string]map[string]string
	fallback  string
	supported []string
	matcher   language.Matcher
}

// Load reads <dir>/<locale>.json for every supported locale. Only the fallback locale must
// exist.
func Load(dir string, fallback string, supported []string) (*Bundle, error) {
	if len(supported) == 0 {
		supported = []string{"ja", "en"}
	}
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	b := &Bundle{dict: map[string]map[string]string{}, fallback: fallback}

	// The fallback goes first so the matcher returns it when nothing else fits.
	tags := []language.Tag{}
	locales := append([]string{fallback}, supported...)
	for _, l := range locales {
		l = strings.ToLower(strings.TrimSpace(l))
		if _, seen := b.dict[l]; seen || l == "" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, l+".json"))
		if err != nil {
			if l == fallback {
				return nil, fmt.Errorf("load locale %s: %w", l, err)
			}
			continue
		}
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", l, err)
		}
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", l, err)
		}
		b.dict[l] = m
		b.supported = append(b.supported, l)
		tags = append(tags, tag)
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

// Supported returns the loaded locales in sorted order.
func (b *Bundle) Supported() []string {
	out := append([]string(nil), b.supported...)
	sort.Strings(out)
	return out
}

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() string { return b.fallback }

// Normalize returns lang when it is loaded, otherwise "".
func (b *Bundle) Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if base, _, ok := strings.Cut(lang, "-"); ok {
		lang = base
	}
	if _, ok := b.dict[lang]; ok {
		return lang
	}
	return ""
}

// T returns the message for key in lang, falling back to the default locale and finally to
// the key itself.
func (b *Bundle) T(lang, key string) string {
	if m, ok := b.dict[lang]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := b.dict[b.fallback][key]; ok {
		return v
	}
	return key
}

// Format translates key and substitutes {name} placeholders from args.
func (b *Bundle) Format(lang, key string, args map[string]string) string {
	msg := b.T(lang, key)
	if len(args) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

// Has reports whether key is defined for lang or the fallback.
func (b *Bundle) Has(lang, key string) bool {
	if _, ok := b.dict[lang][key]; ok {
		return true
	}
	_, ok := b.dict[b.fallback][key]
	return ok
}

// Resolve picks the best loaded locale for an Accept-Language header.
func (b *Bundle) Resolve(acceptLang string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	_, idx, conf := b.matcher.Match(prefs...)
	if conf == language.No || idx < 0 || idx >= len(b.supported) {
		return b.fallback
	}
	return b.supported[idx]
}
