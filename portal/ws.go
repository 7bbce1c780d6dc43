package portal

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/internet-of-plants/libiop/internal/logging"
)

// writeWait bounds a single status push so a dead client cannot stall the
// tick loop.
const writeWait = time.Second

// statusMessage is what portal clients receive over the websocket and from
// the /status endpoint.
type statusMessage struct {
	Status  string `json:"status"`
	Network string `json:"network,omitempty"`
	Address string `json:"address,omitempty"`
}

// statusHub pushes connection status changes to browsers sitting on the
// configuration page, so a phone shows "connecting… connected" live
// instead of the user refreshing blindly.
type statusHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{
		upgrader: websocket.Upgrader{
			// every origin is foreign inside a captive portal
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// handleUpgrade turns the request into a websocket client.
func (h *statusHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	logging.Debug("Portal status client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	// discard inbound frames; the stream is one-way
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// broadcast pushes a status message to every client, dropping the ones
// that cannot keep up.
func (h *statusHub) broadcast(msg statusMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logging.Debug("Dropping portal status client", zap.Error(err))
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *statusHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// closeAll disconnects every client, used at portal teardown.
func (h *statusHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}
