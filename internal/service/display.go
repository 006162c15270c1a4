package service

import (
	"html/template"

	"github.com/world-gallery/internal/view"
)

// Display is the surface a view writes to
type Display interface {
	ReplaceGrid(html template.HTML)
	PatchCard(worldID string, html template.HTML)
	SetSlide(state view.SlideState)
	SetAuthVisibility(authenticated bool)
	Alert(message string)
	Navigate(path string)
}

// CardPatch is a single re-rendered card
type CardPatch struct {
	WorldID string
	HTML    template.HTML
}

// Recorder is a Display that keeps what was written to it, for plain HTTP responses
type Recorder struct {
	Grid          template.HTML
	GridSet       bool
	Patches       []CardPatch
	Slides        []view.SlideState
	Authenticated *bool
	Alerts        []string
	NavigateTo    string
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ReplaceGrid stores the grid and clears earlier card patches
func (r *Recorder) ReplaceGrid(html template.HTML) {
	r.Grid = html
	r.GridSet = true
	r.Patches = nil
}

// PatchCard records a single card update
func (r *Recorder) PatchCard(worldID string, html template.HTML) {
	r.Patches = append(r.Patches, CardPatch{WorldID: worldID, HTML: html})
}

// SetSlide records a slideshow position
func (r *Recorder) SetSlide(state view.SlideState) {
	r.Slides = append(r.Slides, state)
}

// SetAuthVisibility records whether authenticated controls are shown
func (r *Recorder) SetAuthVisibility(authenticated bool) {
	r.Authenticated = &authenticated
}

// Alert records a user-facing message
func (r *Recorder) Alert(message string) {
	r.Alerts = append(r.Alerts, message)
}

// Navigate records the last navigation target
func (r *Recorder) Navigate(path string) {
	r.NavigateTo = path
}

// IsAuthenticated reports the last visibility written, false when none was
func (r *Recorder) IsAuthenticated() bool {
	return r.Authenticated != nil && *r.Authenticated
}
