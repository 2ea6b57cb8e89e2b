// Package prompt turns a catalog item into the system and user prompts sent
// to a text-generation provider.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"metamender/internal/config"
	"metamender/internal/media"
)

const (
	unknownTitle   = "Untitled"
	unknownYear    = "Unknown"
	unknownGenres  = "Various genres"
	unknownArtist  = "Various Artists"
	missingCurrent = "(none)"
	ellipsis       = "…"
)

// Prompt is a rendered prompt pair.
type Prompt struct {
	System string
	User   string
}

// Data is the template context for a single item.
type Data struct {
	Title   string
	Year    string
	Artist  string
	Genres  string
	Kind    string
	Current string
}

// Composer renders prompts per item kind.
type Composer struct {
	system          string
	album           *template.Template
	artist          *template.Template
	fallback        *template.Template
	maxContextChars int
	lower           cases.Caser
}

// NewComposer parses the configured templates, falling back to the built-in
// defaults for any left empty.
func NewComposer(cfg config.Prompt) (*Composer, error) {
	c := &Composer{
		system:          firstNonEmpty(cfg.System, DefaultSystem),
		maxContextChars: cfg.MaxContextChars,
		lower:           cases.Lower(language.English),
	}
	var err error
	if c.album, err = parse("album", firstNonEmpty(cfg.Album, DefaultAlbum)); err != nil {
		return nil, err
	}
	if c.artist, err = parse("artist", firstNonEmpty(cfg.Artist, DefaultArtist)); err != nil {
		return nil, err
	}
	if c.fallback, err = parse("fallback", firstNonEmpty(cfg.Fallback, DefaultFallback)); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a composer using the built-in templates.
func Default() *Composer {
	c, err := NewComposer(config.Prompt{})
	if err != nil {
		panic(fmt.Sprintf("prompt: built-in templates: %v", err))
	}
	return c
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("prompt.%s: %w", name, err)
	}
	return tmpl, nil
}

// Compose renders the prompts for item.
func (c *Composer) Compose(item media.Item) (Prompt, error) {
	tmpl := c.fallback
	switch item.Kind {
	case media.KindAlbum:
		tmpl = c.album
	case media.KindArtist:
		tmpl = c.artist
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, c.data(item)); err != nil {
		return Prompt{}, fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return Prompt{System: c.system, User: strings.TrimSpace(b.String())}, nil
}

func (c *Composer) data(item media.Item) Data {
	year := unknownYear
	if item.ProductionYear > 0 {
		year = strconv.Itoa(item.ProductionYear)
	}
	current := Truncate(strings.TrimSpace(item.Overview), c.maxContextChars)
	return Data{
		Title:   firstNonEmpty(item.Title(), unknownTitle),
		Year:    year,
		Artist:  firstNonEmpty(item.PrimaryArtist(), unknownArtist),
		Genres:  firstNonEmpty(item.GenreList(), unknownGenres),
		Kind:    c.kindLabel(item.Kind),
		Current: firstNonEmpty(current, missingCurrent),
	}
}

// kindLabel turns "MusicVideo" into "music video".
func (c *Composer) kindLabel(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "item"
	}
	var b strings.Builder
	for i, r := range kind {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return c.lower.String(b.String())
}

// Truncate shortens s to at most limit runes, cutting at the last word
// boundary and appending an ellipsis. A limit of zero or less disables
// truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := runes[:limit]
	if !unicode.IsSpace(runes[limit]) {
		if idx := lastSpace(cut); idx > 0 {
			cut = cut[:idx]
		}
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
