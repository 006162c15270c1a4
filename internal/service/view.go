package service

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/view"
)

// View is the server-held state of one rendered gallery page.
//
// Loads are numbered; a load that finishes after a newer one has been applied
// is dropped. Reloads of an unchanged world order patch only the cards that
// changed, and carousel positions survive reloads.
type View struct {
	gallery *Gallery
	display Display
	logger  *slog.Logger

	mu        sync.Mutex
	token     string
	requested uint64
	applied   uint64
	rendered  []view.Card
	slides    map[string]int
}

// Display returns the surface this view writes to
func (v *View) Display() Display {
	return v.display
}

// Token returns the access token the view acts with
func (v *View) Token() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

// SetToken changes the access token the view acts with
func (v *View) SetToken(token string) {
	v.mu.Lock()
	v.token = token
	v.mu.Unlock()
}

// LoadWorlds fetches every world and displays it.
// A failed fetch replaces the grid with the load error message.
func (v *View) LoadWorlds(ctx context.Context) error {
	v.mu.Lock()
	v.requested++
	generation := v.requested
	v.mu.Unlock()

	worlds, err := v.gallery.ListWorlds(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	if generation < v.applied {
		v.logger.Debug("dropping stale world load", "generation", generation, "applied", v.applied)
		return nil
	}
	v.applied = generation

	if err != nil {
		v.logger.Error("error loading worlds", "error", err)
		v.rendered = nil
		v.display.ReplaceGrid(v.gallery.renderer.LoadError())
		return err
	}

	return v.displayWorlds(worlds)
}

// DisplayWorlds renders worlds in the order given
func (v *View) DisplayWorlds(worlds []domain.World) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.displayWorlds(worlds)
}

func (v *View) displayWorlds(worlds []domain.World) error {
	cards := v.gallery.BuildCards(worlds)
	for i := range cards {
		v.restoreSlide(&cards[i])
	}

	if v.rendered != nil && sameOrder(v.rendered, cards) {
		for i, card := range cards {
			if reflect.DeepEqual(card, v.rendered[i]) {
				continue
			}
			html, err := v.gallery.renderer.Card(card)
			if err != nil {
				return fmt.Errorf("rendering card %s: %w", card.WorldID, err)
			}
			v.display.PatchCard(card.WorldID, html)
		}
		v.rendered = cards
		return nil
	}

	html, err := v.gallery.renderer.Grid(cards)
	if err != nil {
		return fmt.Errorf("rendering grid: %w", err)
	}
	v.display.ReplaceGrid(html)
	v.rendered = cards
	return nil
}

// restoreSlide re-applies a remembered carousel position while the world still has that slide
func (v *View) restoreSlide(card *view.Card) {
	index, ok := v.slides[card.WorldID]
	if !ok {
		return
	}
	if _, err := view.SelectSlide(card, index); err != nil {
		delete(v.slides, card.WorldID)
	}
}

// SelectSlide moves a card's carousel to index
func (v *View) SelectSlide(worldID string, index int) (view.SlideState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.rendered {
		if v.rendered[i].WorldID != worldID {
			continue
		}
		state, err := view.SelectSlide(&v.rendered[i], index)
		if err != nil {
			return view.SlideState{}, err
		}
		v.slides[worldID] = index
		v.display.SetSlide(state)
		return state, nil
	}
	return view.SlideState{}, domain.ErrWorldNotFound
}

// ToggleLike flips the current user's like on worldID and reloads the grid.
// Without a signed-in user it alerts and navigates to the login page instead.
func (v *View) ToggleLike(ctx context.Context, worldID string) error {
	user := v.gallery.CurrentUser(ctx, v.Token())
	if user == nil {
		v.display.Alert(LoginRequiredMessage)
		v.display.Navigate(v.gallery.config.LoginPath)
		return nil
	}

	_, err := v.gallery.ToggleLike(ctx, user.ID, worldID)
	if err != nil {
		v.logger.Error("error toggling like", "world_id", worldID, "user_id", user.ID, "error", err)
	}

	if loadErr := v.LoadWorlds(ctx); err == nil {
		err = loadErr
	}
	return err
}

// Cards returns a copy of what the view last rendered
func (v *View) Cards() []view.Card {
	v.mu.Lock()
	defer v.mu.Unlock()
	cards := make([]view.Card, len(v.rendered))
	copy(cards, v.rendered)
	return cards
}

func sameOrder(a, b []view.Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].WorldID != b[i].WorldID {
			return false
		}
	}
	return true
}
