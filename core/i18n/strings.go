// Package i18n holds the process-wide message and keyboard-label catalog.
// It is loaded once at startup and shared read-only by the conversation
// engine and the markup catalog.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale must always be present; other locales fall back to it per key.
const BaseLocale = "en"

//go:embed locales/*.yaml
var embeddedFS embed.FS

// Strings is an immutable, resolved catalog for one locale.
type Strings struct {
	tag     language.Tag
	entries map[string]string
	printer *message.Printer
}

// Load resolves locale against the embedded catalogs and merges the optional
// override file on top. An empty override path is ignored.
func Load(locale, overridePath string) (*Strings, error) {
	return load(embeddedFS, locale, overridePath)
}

// Default returns the base locale without overrides and panics if the
// embedded catalog is broken.
func Default() *Strings {
	s, err := Load(BaseLocale, "")
	if err != nil {
		panic(fmt.Sprintf("i18n: embedded catalog: %v", err))
	}
	return s
}

func load(fsys fs.FS, locale, overridePath string) (*Strings, error) {
	files, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	sort.Strings(files)

	tags := make([]language.Tag, 0, len(files))
	byTag := make(map[string]string, len(files))
	base := -1
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".yaml")
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("locale file %s: %w", f, err)
		}
		if name == BaseLocale {
			base = len(tags)
		}
		tags = append(tags, tag)
		byTag[tag.String()] = f
	}
	if base < 0 {
		return nil, fmt.Errorf("base locale %s is not defined", BaseLocale)
	}
	// The matcher falls back to its first tag, so the base locale leads.
	tags[0], tags[base] = tags[base], tags[0]

	entries, err := readCatalog(fsys, byTag[tags[0].String()])
	if err != nil {
		return nil, err
	}

	chosen := tags[0]
	if want := strings.TrimSpace(locale); want != "" {
		desired, err := language.Parse(want)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", want, err)
		}
		_, idx, conf := language.NewMatcher(tags).Match(desired)
		if conf != language.No {
			chosen = tags[idx]
		}
	}
	if chosen != tags[0] {
		localized, err := readCatalog(fsys, byTag[chosen.String()])
		if err != nil {
			return nil, err
		}
		for k, v := range localized {
			entries[k] = v
		}
	}

	if overridePath = strings.TrimSpace(overridePath); overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read strings override: %w", err)
		}
		overrides, err := parseCatalog(data)
		if err != nil {
			return nil, fmt.Errorf("parse strings override %s: %w", overridePath, err)
		}
		for k, v := range overrides {
			entries[k] = v
		}
	}

	builder := catalog.NewBuilder(catalog.Fallback(chosen))
	for k, v := range entries {
		if err := builder.SetString(chosen, k, v); err != nil {
			return nil, fmt.Errorf("register %q: %w", k, err)
		}
	}

	return &Strings{
		tag:     chosen,
		entries: entries,
		printer: message.NewPrinter(chosen, message.Catalog(builder)),
	}, nil
}

func readCatalog(fsys fs.FS, file string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", file, err)
	}
	entries, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", file, err)
	}
	return entries, nil
}

func parseCatalog(data []byte) (map[string]string, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, fmt.Errorf("blank message key")
		}
		out[key] = v
	}
	return out, nil
}

// Tag reports the resolved locale.
func (s *Strings) Tag() language.Tag {
	return s.tag
}

// Has reports whether key is defined.
func (s *Strings) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Text renders key with args. Unknown keys render as the key itself so a
// missing translation is visible instead of silent.
func (s *Strings) Text(key string, args ...any) string {
	raw, ok := s.entries[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return raw
	}
	return s.printer.Sprintf(key, args...)
}

// Pattern returns the unrendered value of key, for callers that format
// numbers themselves and must not pick up locale digit grouping.
func (s *Strings) Pattern(key string) string {
	if raw, ok := s.entries[key]; ok {
		return raw
	}
	return key
}
