package jobengine

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/gorilla/websocket"
)

const (
	eventQueueSize   = 256
	subscriberBuffer = 64

	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 90 * time.Second
	wsPingInterval = 45 * time.Second
	wsReadLimit    = 256
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventHub fans job lifecycle events out to WebSocket subscribers. Producers
// never block: the hub queue drops on overflow, and a subscriber that cannot
// drain its buffer is closed rather than stalling the rest.
type EventHub struct {
	logger *common.Logger
	queue  chan models.JobEvent
	done   chan struct{}

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewEventHub(logger *common.Logger) *EventHub {
	return &EventHub{
		logger: logger,
		queue:  make(chan models.JobEvent, eventQueueSize),
		done:   make(chan struct{}),
		subs:   make(map[chan []byte]struct{}),
	}
}

// Run drains the event queue, encoding each event once and handing the bytes
// to every subscriber. Blocks until Stop.
func (h *EventHub) Run() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.queue:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn().Err(err).Msg("Failed to encode job event")
				continue
			}
			h.fanOut(data)
		}
	}
}

func (h *EventHub) fanOut(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			// Full buffer means the write loop stopped draining.
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Stop signals Run to exit. Idempotent.
func (h *EventHub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast queues an event for delivery. Never blocks.
func (h *EventHub) Broadcast(event models.JobEvent) {
	select {
	case h.queue <- event:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("Job event queue full, event dropped")
	}
}

func (h *EventHub) subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug().Int("subscribers", count).Msg("Job event subscriber attached")
	return ch
}

// unsubscribe detaches and closes a subscriber channel. Safe to call after
// the hub already evicted it.
func (h *EventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	count := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug().Int("subscribers", count).Msg("Job event subscriber detached")
}

// SubscriberCount reports the number of attached subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeWS upgrades the connection and streams events until the client goes
// away. The read side exists only to observe close and pong frames.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := h.subscribe()
	gone := make(chan struct{})

	go func() {
		defer close(gone)
		conn.SetReadLimit(wsReadLimit)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go h.writeLoop(conn, sub, gone)
}

// writeLoop owns the connection's write side: subscribed events, keepalive
// pings, and the close frame on shutdown.
func (h *EventHub) writeLoop(conn *websocket.Conn, sub chan []byte, gone chan struct{}) {
	ping := time.NewTicker(wsPingInterval)
	defer func() {
		ping.Stop()
		h.unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case <-h.done:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-gone:
			return
		case data, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
