package view

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/world-gallery/internal/domain"
)

// Fallback copy for optional world fields
const (
	DefaultSeed        = "Random"
	DefaultDescription = "No description provided."
	DefaultProgress    = "No progress details."
	DefaultStructures  = "None specified"

	uploadDateLayout = "Jan 2, 2006"
)

// Slide is one carousel image
type Slide struct {
	URL string
	Alt string
}

// Card is the render-ready form of one world.
// Free-text fields hold already escaped markup.
type Card struct {
	WorldID      string
	Title        template.HTML
	Seed         template.HTML
	Description  template.HTML
	Progress     template.HTML
	Structures   template.HTML
	UploadedBy   template.HTML
	UploadedOn   string
	DaysPlayed   int
	LikeCount    int64
	DownloadHref string
	Slides       []Slide
	Placeholder  bool
	Active       int
}

// Options controls the parts of a card that depend on deployment
type Options struct {
	PlaceholderImage string
}

// BuildCards turns worlds into cards, keeping their order
func BuildCards(worlds []domain.World, opts Options) []Card {
	cards := make([]Card, 0, len(worlds))
	for _, w := range worlds {
		cards = append(cards, BuildCard(w, opts))
	}
	return cards
}

// BuildCard turns a single world into a card showing its first image
func BuildCard(w domain.World, opts Options) Card {
	card := Card{
		WorldID:      w.ID,
		Title:        escaped(w.Title, ""),
		Seed:         escaped(w.Seed, DefaultSeed),
		Description:  escaped(w.Description, DefaultDescription),
		Progress:     escaped(w.ProgressDescription, DefaultProgress),
		Structures:   escaped(w.Structures, DefaultStructures),
		UploadedBy:   escaped(w.UploadedByName, ""),
		UploadedOn:   w.UploadedAt.UTC().Format(uploadDateLayout),
		DaysPlayed:   w.DaysPlayed,
		LikeCount:    w.LikeCount,
		DownloadHref: DownloadHref(w),
	}

	if len(w.Images) == 0 {
		card.Placeholder = true
		card.Slides = []Slide{{URL: opts.PlaceholderImage, Alt: "No image"}}
		return card
	}

	card.Slides = make([]Slide, len(w.Images))
	for i, img := range w.Images {
		card.Slides[i] = Slide{URL: img.ImageURL, Alt: "World image " + strconv.Itoa(i+1)}
	}
	return card
}

// HasDots reports whether the card shows carousel navigation
func (c Card) HasDots() bool {
	return !c.Placeholder && len(c.Slides) > 1
}

// Offset is the strip transform for the active slide
func (c Card) Offset() template.CSS {
	return SlideOffset(c.Active)
}

// DownloadHref returns the link for a world file. Object-store URLs go through
// the presigning download route; anything else is linked directly.
func DownloadHref(w domain.World) string {
	if strings.HasPrefix(w.WorldFileURL, "s3://") {
		return "/worlds/" + url.PathEscape(w.ID) + "/download"
	}
	return w.WorldFileURL
}

func escaped(text, fallback string) template.HTML {
	if text == "" {
		text = fallback
	}
	return template.HTML(EscapeHTML(text))
}
