package view

import (
	"fmt"
	"html/template"

	"github.com/world-gallery/internal/domain"
)

// SlideState is the carousel position of one card
type SlideState struct {
	WorldID string       `json:"world_id"`
	Index   int          `json:"index"`
	Offset  template.CSS `json:"offset"`
}

// SlideOffset returns the transform that shows slide index
func SlideOffset(index int) template.CSS {
	return template.CSS(fmt.Sprintf("translateX(-%d%%)", index*100))
}

// SelectSlide moves the card's carousel to index.
// Cards without dot navigation and out-of-range indices are rejected.
func SelectSlide(card *Card, index int) (SlideState, error) {
	if !card.HasDots() || index < 0 || index >= len(card.Slides) {
		return SlideState{}, domain.ErrInvalidSlide
	}
	card.Active = index
	return SlideState{
		WorldID: card.WorldID,
		Index:   index,
		Offset:  SlideOffset(index),
	}, nil
}
