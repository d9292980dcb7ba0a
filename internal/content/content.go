// Package content serves the short markdown notices shown around the registration form.
package content

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	gocache "github.com/patrickmn/go-cache"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Notice slugs used by the registration page.
const (
	SlugSupport     = "support"
	SlugOldNameHint = "old-name-hint"
)

// ErrNotFound is returned when no locale has the requested notice.
var ErrNotFound = errors.New("content: notice not found")

const (
	defaultDir      = "content"
	defaultCacheTTL = 5 * time.Minute
)

// Notice is a rendered markdown snippet.
type Notice struct {
	Slug    string
	Lang    string
	Title   string
	Variant string
	HTML    template.HTML
	Text    string
}

type frontMatter struct {
	Title   string `yaml:"title"`
	Variant string `yaml:"variant"`
}

// Library loads notices from <dir>/<lang>/<slug>.md.
type Library struct {
	dir      string
	fallback string
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	cache    *gocache.Cache
}

// Option customises a Library.
type Option func(*Library)

// WithoutCache re-reads files on every call, for template development.
func WithoutCache() Option {
	return func(l *Library) { l.cache = nil }
}

// NewLibrary builds a library rooted at dir. fallback is the locale tried when the requested
// one has no file.
func NewLibrary(dir, fallback string, opts ...Option) *Library {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultDir
	}
	l := &Library{
		dir:      dir,
		fallback: fallback,
		md:       goldmark.New(goldmark.WithExtensions(extension.Linkify)),
		policy:   bluemonday.UGCPolicy(),
		cache:    gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the notice for slug in lang, falling back to the default locale.
func (l *Library) Get(slug, lang string) (Notice, error) {
	slug = sanitizeSlug(slug)
	if slug == "" {
		return Notice{}, ErrNotFound
	}
	key := lang + "|" + slug
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			return v.(Notice), nil
		}
	}

	candidates := []string{lang}
	if lang != l.fallback {
		candidates = append(candidates, l.fallback)
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		notice, err := l.read(slug, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Notice{}, err
		}
		if l.cache != nil {
			l.cache.SetDefault(key, notice)
		}
		return notice, nil
	}
	return Notice{}, ErrNotFound
}

// Lookup is Get for templates: a missing or broken notice renders as nothing.
func (l *Library) Lookup(slug, lang string) Notice {
	notice, err := l.Get(slug, lang)
	if err != nil {
		return Notice{}
	}
	return notice
}

func (l *Library) read(slug, lang string) (Notice, error) {
	file := filepath.Join(l.dir, lang, slug+".md")
	data, err := os.ReadFile(file)
	if err != nil {
		return Notice{}, err
	}

	fm, body := splitFrontMatter(string(data))
	var front frontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Notice{}, fmt.Errorf("content: parse front matter %s: %w", file, err)
		}
	}

	var buf bytes.Buffer
	if err := l.md.Convert([]byte(body), &buf); err != nil {
		return Notice{}, fmt.Errorf("content: render %s: %w", file, err)
	}
	safe := l.policy.SanitizeBytes(buf.Bytes())

	return Notice{
		Slug:    slug,
		Lang:    lang,
		Title:   strings.TrimSpace(front.Title),
		Variant: firstNonEmpty(strings.TrimSpace(front.Variant), "info"),
		HTML:    template.HTML(safe),
		Text:    PlainText(string(safe)),
	}, nil
}

// PlainText flattens an HTML fragment to its text, collapsing whitespace.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way the text so far is the result.
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte(' ')
			}
		}
	}
}

var blockTags = map[string]bool{
	"p": true, "br": true, "li": true, "ul": true, "ol": true, "div": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n\r")
		}
	}
	return "", input
}

func sanitizeSlug(slug string) string {
	slug = strings.Trim(strings.TrimSpace(strings.ToLower(slug)), "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	return slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
