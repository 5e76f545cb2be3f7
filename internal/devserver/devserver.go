// Package devserver is a self-contained notification service for local
// development: it speaks the channel wire protocol, emits synthetic
// notifications on an interval, answers pings with pongs, and can drop
// connections on purpose to exercise client reconnect handling.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/latticenet/livewire/internal/wire"
)

// Config controls the synthetic traffic.
type Config struct {
	// Interval between generated notifications per client. Zero disables
	// generation; clients still get pong replies and injected sends.
	Interval time.Duration

	// DropAfter abruptly closes a client's connection after that many
	// generated notifications. Zero keeps connections open.
	DropAfter int
}

type client struct {
	conn        *websocket.Conn
	userID      string
	send        chan []byte
	done        chan struct{}
	downOnce    sync.Once
	connectedAt time.Time
	generated   int
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown closes the socket without a close handshake and releases the
// write pump. Safe to call from any goroutine, any number of times.
func (c *client) shutdown() {
	c.downOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Server is the dev notification service.
type Server struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	seq     int64

	done     chan struct{}
	stopOnce sync.Once
}

// New starts the generator goroutine immediately; Close stops it.
func New(cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
	if cfg.Interval > 0 {
		go s.generate()
	}
	return s
}

// Handler returns the HTTP surface: the channel endpoint at /ws, manual
// injection at /notify, and a client listing at /clients.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/notify", s.handleNotify)
	mux.HandleFunc("/clients", s.handleClients)
	return mux
}

// Close disconnects every client and stops the generator.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		s.remove(c)
	}
}

// ClientCount reports currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId query parameter required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		// Dev tool, local traffic only.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := &client{
		conn:        conn,
		userID:      userID,
		send:        make(chan []byte, 16),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	go c.writePump()

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info().Str("user", userID).Str("remote", r.RemoteAddr).Msg("client connected")

	go s.readLoop(c)
}

// readLoop answers pings and tears the client down when the peer goes away.
func (s *Server) readLoop(c *client) {
	defer func() {
		s.remove(c)
		s.log.Info().Str("user", c.userID).Msg("client disconnected")
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ping wire.Ping
		if err := json.Unmarshal(raw, &ping); err != nil || ping.Action != wire.ActionPing {
			s.log.Debug().Str("user", c.userID).Str("frame", string(raw)).Msg("ignoring frame")
			continue
		}
		pong, _ := json.Marshal(wire.Frame{Type: wire.TypePong})
		s.offer(c, pong)
	}
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var n wire.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid notification body", http.StatusBadRequest)
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}

	userID := r.URL.Query().Get("userId")
	delivered := s.push(userID, n)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": n.ID, "delivered": delivered})
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		UserID      string    `json:"user_id"`
		ConnectedAt time.Time `json:"connected_at"`
		Generated   int       `json:"generated"`
	}

	s.mu.Lock()
	out := make([]entry, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, entry{UserID: c.userID, ConnectedAt: c.connectedAt, Generated: c.generated})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// push delivers n to every client of userID, or to everyone when userID is
// empty. Returns how many clients got it.
func (s *Server) push(userID string, n wire.Notification) int {
	frame, err := encode(n)
	if err != nil {
		s.log.Error().Err(err).Msg("encode notification")
		return 0
	}

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if userID == "" || c.userID == userID {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.offer(c, frame)
	}
	return len(targets)
}

// generate emits one synthetic notification per client per interval and
// applies the drop-after fault.
func (s *Server) generate() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.done:
			return
		}
	}
}

func (s *Server) tick() {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	targets := make([]*client, 0, len(s.clients))
	var drops []*client
	for c := range s.clients {
		c.generated++
		if s.cfg.DropAfter > 0 && c.generated > s.cfg.DropAfter {
			drops = append(drops, c)
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		n := wire.Notification{
			ID:        uuid.NewString(),
			Title:     fmt.Sprintf("Dev notification #%d", seq),
			Message:   fmt.Sprintf("synthetic event %d for %s", seq, c.userID),
			Category:  "dev",
			ActorID:   "devserver",
			Timestamp: time.Now().UnixMilli(),
		}
		frame, err := encode(n)
		if err != nil {
			continue
		}
		s.offer(c, frame)
	}

	// No close handshake: the point is to look like a crashed server so
	// clients exercise their retry path.
	for _, c := range drops {
		s.log.Info().Str("user", c.userID).Msg("dropping client abruptly")
		s.remove(c)
	}
}

// offer enqueues without blocking; a client that cannot drain its queue is
// disconnected, matching how a real broker sheds slow consumers.
func (s *Server) offer(c *client, msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		s.log.Warn().Str("user", c.userID).Msg("client too slow, disconnecting")
		s.remove(c)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.shutdown()
}

func encode(n wire.Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire.Frame{Type: wire.TypeNotification, Data: data})
}
