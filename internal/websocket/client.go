package websocket

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/world-gallery/internal/service"
	"github.com/world-gallery/internal/view"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Jobs a view may have queued before fan-out starts dropping
	jobQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client is one live gallery page. It owns a view and runs that view's
// operations one at a time on its job loop.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	jobs chan service.Job
	view *service.View

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// touched only from the job loop
	sessionTopic string
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type    string `json:"type"`
	WorldID string `json:"world_id,omitempty"`
	Index   int    `json:"index,omitempty"`
	Token   string `json:"token,omitempty"`
}

// NewClient creates a new WebSocket client acting for the holder of token
func NewClient(hub *Hub, conn *websocket.Conn, token string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		jobs:   make(chan service.Job, jobQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.view = hub.gallery.NewView(c, token)
	return c
}

// ID returns the client's identifier
func (c *Client) ID() string {
	return c.id
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// submit queues a job from the client itself; it waits for room instead of dropping
func (c *Client) submit(job service.Job) {
	select {
	case c.jobs <- job:
	case <-c.done:
	}
}

// runJobs executes the view's jobs in order until the client closes
func (c *Client) runJobs() {
	for {
		select {
		case job := <-c.jobs:
			job(c.ctx, c.view)
		case <-c.done:
			return
		}
	}
}

// readPump pumps messages from the WebSocket connection to the job loop
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}

		// Parse client message
		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.hub.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeLoadWorlds:
		c.submit(func(ctx context.Context, v *service.View) {
			_ = v.LoadWorlds(ctx)
		})

	case MessageTypeToggleLike:
		if msg.WorldID == "" {
			c.sendError("world_id required for toggle_like")
			return
		}
		worldID := msg.WorldID
		c.submit(func(ctx context.Context, v *service.View) {
			_ = v.ToggleLike(ctx, worldID)
		})

	case MessageTypeSelectSlide:
		if msg.WorldID == "" {
			c.sendError("world_id required for select_slide")
			return
		}
		worldID, index := msg.WorldID, msg.Index
		c.submit(func(_ context.Context, v *service.View) {
			if _, err := v.SelectSlide(worldID, index); err != nil {
				c.sendError(err.Error())
			}
		})

	case MessageTypeAuth:
		token := msg.Token
		c.submit(func(ctx context.Context, _ *service.View) {
			c.authenticate(ctx, token)
		})

	case MessageTypePing:
		c.sendPong()

	default:
		c.hub.logger.Debug("unknown message type", "type", msg.Type)
		c.sendError("unknown message type")
	}
}

// authenticate binds the view to token and moves the client to that session's topic
func (c *Client) authenticate(ctx context.Context, token string) {
	topic := ""
	if token != "" {
		session, err := c.hub.gallery.Session(ctx, token)
		if err != nil {
			token = ""
		} else {
			topic = service.SessionTopic(session.ID)
		}
	}
	c.view.SetToken(token)

	if topic != c.sessionTopic {
		if c.sessionTopic != "" {
			c.hub.Unsubscribe(c, c.sessionTopic)
		}
		if topic != "" {
			c.hub.Subscribe(c, topic)
		}
		c.sessionTopic = topic
	}

	c.hub.reflector.UpdateAuthUI(ctx, token, c)
}

// writePump pumps messages from the view to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// The hub closed the client
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) enqueue(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.hub.logger.Warn("client buffer full, skipping", "client_id", c.id, "type", msg.Type)
	}
}

// ReplaceGrid implements service.Display
func (c *Client) ReplaceGrid(html template.HTML) {
	c.enqueue(Message{Type: MessageTypeGrid, Data: map[string]string{"html": string(html)}})
}

// PatchCard implements service.Display
func (c *Client) PatchCard(worldID string, html template.HTML) {
	c.enqueue(Message{Type: MessageTypeCard, WorldID: worldID, Data: map[string]string{"html": string(html)}})
}

// SetSlide implements service.Display
func (c *Client) SetSlide(state view.SlideState) {
	c.enqueue(Message{Type: MessageTypeSlide, WorldID: state.WorldID, Data: state})
}

// SetAuthVisibility implements service.Display
func (c *Client) SetAuthVisibility(authenticated bool) {
	c.enqueue(Message{Type: MessageTypeVisibility, Data: map[string]bool{"authenticated": authenticated}})
}

// Alert implements service.Display
func (c *Client) Alert(message string) {
	c.enqueue(Message{Type: MessageTypeAlert, Data: map[string]string{"message": message}})
}

// Navigate implements service.Display
func (c *Client) Navigate(path string) {
	c.enqueue(Message{Type: MessageTypeNavigate, Data: map[string]string{"path": path}})
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.enqueue(Message{Type: MessageTypeError, Data: map[string]string{"error": errMsg}})
}

// sendPong sends a pong response
func (c *Client) sendPong() {
	c.enqueue(Message{Type: MessageTypePong})
}

// ServeWs upgrades the request and starts a live view for the holder of token
func ServeWs(hub *Hub, token string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, "")
	hub.Register(client)
	hub.Subscribe(client, service.TopicGallery)

	// Start client goroutines
	go client.writePump()
	go client.runJobs()
	go client.readPump()

	client.submit(func(ctx context.Context, _ *service.View) {
		client.authenticate(ctx, token)
	})

	hub.logger.Debug("new websocket connection", "client_id", client.id)
}
