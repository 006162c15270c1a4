package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/world-gallery/internal/metrics"
	"github.com/world-gallery/internal/service"
)

// Message types
const (
	MessageTypeLoadWorlds  = "load_worlds"
	MessageTypeToggleLike  = "toggle_like"
	MessageTypeSelectSlide = "select_slide"
	MessageTypeAuth        = "auth"
	MessageTypePing        = "ping"

	MessageTypeGrid       = "grid"
	MessageTypeCard       = "card"
	MessageTypeSlide      = "slide"
	MessageTypeVisibility = "visibility"
	MessageTypeAlert      = "alert"
	MessageTypeNavigate   = "navigate"
	MessageTypePong       = "pong"
	MessageTypeError      = "error"
)

// Message represents an outbound WebSocket message
type Message struct {
	Type      string      `json:"type"`
	WorldID   string      `json:"world_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks live views and hands them jobs by topic
type Hub struct {
	// Clients by topic
	topics map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Jobs to fan out
	dispatch chan *dispatchRequest

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	gallery   *service.Gallery
	reflector *service.AuthReflector
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Context for shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

type dispatchRequest struct {
	topic string
	job   service.Job
}

// NewHub creates a new Hub
func NewHub(gallery *service.Gallery, reflector *service.AuthReflector, m *metrics.Metrics, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		topics:      make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		dispatch:    make(chan *dispatchRequest, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		gallery:     gallery,
		reflector:   reflector,
		metrics:     m,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.stopped)
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.metrics.ViewOpened()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all topic subscriptions
				for topic, clients := range h.topics {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				client.close()
				h.metrics.ViewClosed()
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.topics[req.topic]; !ok {
					h.topics[req.topic] = make(map[*Client]bool)
				}
				h.topics[req.topic][req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.topics[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.topics, req.topic)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.dispatch:
			h.dispatchJob(req)
		}
	}
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.cancel()
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.allClients {
		client.close()
		h.metrics.ViewClosed()
	}
	h.allClients = make(map[*Client]bool)
	h.topics = make(map[string]map[*Client]bool)
}

// dispatchJob queues a job on every client subscribed to the topic
func (h *Hub) dispatchJob(req *dispatchRequest) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[req.topic] {
		select {
		case client.jobs <- req.job:
		default:
			// Client's job queue is full, skip
			h.logger.Warn("client job queue full, skipping", "client_id", client.id, "topic", req.topic)
		}
	}
}

// Dispatch queues job for every view subscribed to topic
func (h *Hub) Dispatch(topic string, job service.Job) {
	select {
	case h.dispatch <- &dispatchRequest{topic: topic, job: job}:
	default:
		h.logger.Warn("dispatch channel full, dropping job", "topic", topic)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Stats reports connection counts per topic
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := 0
	for topic := range h.topics {
		if topic != service.TopicGallery {
			sessions++
		}
	}
	return map[string]interface{}{
		"total_connections": len(h.allClients),
		"gallery_viewers":   len(h.topics[service.TopicGallery]),
		"signed_in_topics":  sessions,
	}
}
