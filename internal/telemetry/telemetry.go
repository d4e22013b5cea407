// Package telemetry is an optional, genuinely off-by-default side channel:
// a same-process WebSocket server that pushes periodic RunState snapshots
// to any connected operator tool. It never writes to the ring and never
// touches the codec or the real-time engine: it only reads the ring's
// counters through AtomicReadSpace/AtomicWriteSpace and polls the same
// run-state atomics the underrun/overrun reporters poll.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pcmbridge/internal/ring"
	"pcmbridge/internal/runstate"
)

// Snapshot is one JSON message pushed to every connected client.
type Snapshot struct {
	ReadSpace  int    `json:"read_space"`
	WriteSpace int    `json:"write_space"`
	Underruns  int64  `json:"underruns"`
	Overruns   int64  `json:"overruns"`
	Prebuffer  float32 `json:"prebuffer_percent"`
	Running    bool   `json:"running"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Broadcaster serves a WebSocket endpoint at "/" and pushes a Snapshot to
// every connected client once per interval.
type Broadcaster struct {
	state    *runstate.State
	ring     *ring.Ring
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	server *http.Server
}

// New builds a Broadcaster; it does nothing until Start is called.
func New(state *runstate.State, r *ring.Ring, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		state:    state,
		ring:     r,
		interval: interval,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on addr and begins the push loop. It returns once the
// listener is up; serving continues in background goroutines until ctx is
// cancelled.
func (b *Broadcaster) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleConn)
	b.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("telemetry: server error: %v", err)
		}
	}()
	go b.pushLoop(ctx)

	go func() {
		<-ctx.Done()
		b.server.Close()
	}()

	return nil
}

func (b *Broadcaster) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("telemetry: upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Drain and discard anything the client sends; this is a push-only feed.
	go func() {
		defer b.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) removeClient(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
}

func (b *Broadcaster) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcast(b.snapshot())
		}
	}
}

func (b *Broadcaster) snapshot() Snapshot {
	return Snapshot{
		ReadSpace:  b.ring.AtomicReadSpace(),
		WriteSpace: b.ring.AtomicWriteSpace(),
		Underruns:  b.state.Underruns(),
		Overruns:   b.state.Overruns(),
		Prebuffer:  b.state.PrebufferPercent(),
		Running:    b.state.Running(),
	}
}

func (b *Broadcaster) broadcast(s Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(b.clients, conn)
			conn.Close()
		}
	}
}
