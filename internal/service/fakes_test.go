package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/view"
)

type likeKey struct{ worldID, userID string }

// fakeStore is an in-memory WorldStore
type fakeStore struct {
	mu      sync.Mutex
	worlds  []domain.World
	likes   map[likeKey]bool
	listErr error
	listFn  func(ctx context.Context) ([]domain.World, error)

	toggleErr   error
	toggleCalls int
	insertCalls int
	deleteCalls int
}

func newFakeStore(worlds ...domain.World) *fakeStore {
	return &fakeStore{worlds: worlds, likes: make(map[likeKey]bool)}
}

func (s *fakeStore) ListWorlds(ctx context.Context) ([]domain.World, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.World, len(s.worlds))
	copy(out, s.worlds)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	for i := range out {
		out[i].LikeCount = s.countLocked(out[i].ID)
	}
	return out, nil
}

func (s *fakeStore) InsertLike(_ context.Context, like domain.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if !s.hasWorldLocked(like.WorldID) {
		return domain.ErrWorldNotFound
	}
	s.likes[likeKey{like.WorldID, like.UserID}] = true
	return nil
}

func (s *fakeStore) DeleteLike(_ context.Context, worldID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if !s.hasWorldLocked(worldID) {
		return domain.ErrWorldNotFound
	}
	delete(s.likes, likeKey{worldID, userID})
	return nil
}

func (s *fakeStore) ToggleLike(_ context.Context, worldID, userID string) (*domain.ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggleCalls++
	if s.toggleErr != nil {
		return nil, s.toggleErr
	}
	key := likeKey{worldID, userID}
	liked := !s.likes[key]
	if liked {
		s.likes[key] = true
	} else {
		delete(s.likes, key)
	}
	return &domain.ToggleResult{WorldID: worldID, Liked: liked, LikeCount: s.countLocked(worldID)}, nil
}

func (s *fakeStore) CountLikes(_ context.Context, worldID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasWorldLocked(worldID) {
		return 0, domain.ErrWorldNotFound
	}
	return s.countLocked(worldID), nil
}

func (s *fakeStore) hasWorldLocked(worldID string) bool {
	for _, w := range s.worlds {
		if w.ID == worldID {
			return true
		}
	}
	return false
}

func (s *fakeStore) countLocked(worldID string) int64 {
	var n int64
	for k := range s.likes {
		if k.worldID == worldID {
			n++
		}
	}
	return n
}

func (s *fakeStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggleCalls + s.insertCalls + s.deleteCalls
}

// fakeAuth maps tokens to users
type fakeAuth struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	getErr     error
	signOutErr error
	listeners  []func(domain.AuthEvent)
	unsubbed   int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: make(map[string]*domain.User)}
}

func (a *fakeAuth) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		a.unsubbed++
		a.mu.Unlock()
	}
}

func (a *fakeAuth) GetUser(_ context.Context, token string) (*domain.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.getErr != nil {
		return nil, a.getErr
	}
	if u, ok := a.users[token]; ok {
		return u, nil
	}
	return nil, domain.ErrNotAuthenticated
}

func (a *fakeAuth) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	u, err := a.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &domain.Session{ID: "session-" + u.ID, AccessToken: token, User: u}, nil
}

func (a *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (*domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for token, u := range a.users {
		if u.Email == email && password == "secret" {
			return &domain.Session{ID: "session-" + u.ID, AccessToken: token, User: u}, nil
		}
	}
	return nil, domain.ErrInvalidCredentials
}

func (a *fakeAuth) SignOut(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signOutErr != nil {
		return a.signOutErr
	}
	delete(a.users, token)
	return nil
}

// fakeCache is an in-memory LikeCache
type fakeCache struct {
	mu     sync.Mutex
	counts map[string]int64
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: make(map[string]int64)}
}

func (c *fakeCache) SetLikeCount(_ context.Context, worldID string, count int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.counts[worldID] = count
	return nil
}

func (c *fakeCache) GetLikeCount(_ context.Context, worldID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[worldID]
	if !ok {
		return 0, domain.ErrWorldNotFound
	}
	return n, nil
}

func (c *fakeCache) TopLiked(_ context.Context, n int) ([]domain.LikeCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.LikeCount, 0, len(c.counts))
	for id, count := range c.counts {
		out = append(out, domain.LikeCount{WorldID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// fakePublisher records published events
type fakePublisher struct {
	mu     sync.Mutex
	events []domain.LikeEvent
	err    error
}

func (p *fakePublisher) PublishLikeEvent(_ context.Context, event domain.LikeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// fakeBroadcaster runs jobs synchronously on subscribed views
type fakeBroadcaster struct {
	mu     sync.Mutex
	views  map[string][]*View
	topics []string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{views: make(map[string][]*View)}
}

func (b *fakeBroadcaster) subscribe(topic string, v *View) {
	b.mu.Lock()
	b.views[topic] = append(b.views[topic], v)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) Dispatch(topic string, job Job) {
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	views := append([]*View(nil), b.views[topic]...)
	b.mu.Unlock()
	for _, v := range views {
		job(context.Background(), v)
	}
}

func (b *fakeBroadcaster) dispatched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

var errStoreDown = errors.New("store down")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGalleryConfig() *config.GalleryConfig {
	return &config.GalleryConfig{
		LandingPath:      "/",
		LoginPath:        "/login",
		PlaceholderImage: "https://via.placeholder.com/400x200/667eea/ffffff?text=No+Image",
	}
}

func newTestGallery(store *fakeStore, auth *fakeAuth) *Gallery {
	return NewGallery(store, auth, view.MustRenderer(), testGalleryConfig(), nil, testLogger())
}

func testWorld(id string, day int, images ...string) domain.World {
	w := domain.World{
		ID:             id,
		Title:          "World " + id,
		UploadedByName: "alice",
		UploadedAt:     time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		WorldFileURL:   "https://files.example.com/" + id + ".zip",
	}
	for i, url := range images {
		w.Images = append(w.Images, domain.WorldImage{WorldID: id, ImageURL: url, Position: i})
	}
	return w
}
