package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gateport/internal/broker"
	"gateport/internal/constants"
	"gateport/internal/session"
	"gateport/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans session transitions out to websocket subscribers. The feed is
// advisory: a slow subscriber is dropped rather than allowed to stall a
// transition.
type Hub struct {
	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	events    chan types.WSMessage
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	snapshot func() []session.Snapshot
}

func NewHub(snapshot func() []session.Snapshot) *Hub {
	h := &Hub{
		clients:  make(map[*websocket.Conn]bool),
		events:   make(chan types.WSMessage, 64),
		done:     make(chan struct{}),
		snapshot: snapshot,
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Publish queues a transition for broadcast. Never blocks; it runs on the
// broker's goroutines.
func (h *Hub) Publish(ev broker.Event) {
	snap := ev.Session
	msg := types.WSMessage{Type: string(ev.Type), Session: &snap}
	select {
	case h.events <- msg:
	case <-h.done:
	default:
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case msg := <-h.events:
			h.broadcast(msg)
		}
	}
}

func (h *Hub) broadcast(msg types.WSMessage) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(constants.EventWriteTimeout))
		if err := client.WriteJSON(msg); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

// HandleWS upgrades the request, sends the current session list as the first
// frame and then streams transitions until the subscriber hangs up.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Snapshot, send and register under one lock hold so a transition
	// broadcast either lands in the snapshot or reaches the subscriber as a
	// frame, never neither.
	h.clientsMu.Lock()
	initial := types.WSMessage{Type: "session_list", Sessions: h.snapshot()}
	conn.SetWriteDeadline(time.Now().Add(constants.EventWriteTimeout))
	if err := conn.WriteJSON(initial); err != nil {
		h.clientsMu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = true
	h.clientsMu.Unlock()

	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
		conn.Close()
	}()

	// Subscribers have nothing to say; the read loop exists to notice the
	// close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.clientsMu.Unlock()
	})
}
