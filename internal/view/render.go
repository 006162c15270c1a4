package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/world-gallery/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData is the input of the full gallery page
type PageData struct {
	Grid          template.HTML
	Authenticated bool
	User          *domain.User
	LoginPath     string
}

// Renderer turns cards into markup
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustRenderer is NewRenderer for package initialisation and tests
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Grid renders the content of the worlds grid; no cards yields the empty state
func (r *Renderer) Grid(cards []Card) (template.HTML, error) {
	return r.execute("grid", cards)
}

// Card renders a single card
func (r *Renderer) Card(card Card) (template.HTML, error) {
	return r.execute("card", card)
}

// LoadError renders the message shown when worlds could not be loaded
func (r *Renderer) LoadError() template.HTML {
	out, err := r.execute("load-error", nil)
	if err != nil {
		return template.HTML("Error loading worlds. Please refresh the page.")
	}
	return out
}

// Page writes the full gallery page
func (r *Renderer) Page(w io.Writer, data PageData) error {
	if err := r.tmpl.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return nil
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
