package ws

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Peer is one accepted connection.
type Peer struct {
	id     uint64
	remote string
	out    chan []byte

	mu     sync.Mutex
	closed bool
	hangup func()
}

func (p *Peer) ID() uint64     { return p.id }
func (p *Peer) Remote() string { return p.remote }

// Send queues b for the peer without blocking.
func (p *Peer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.out <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Peer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Close drops the connection. The disconnect hook still runs.
func (p *Peer) Close() {
	p.mu.Lock()
	hangup := p.hangup
	p.mu.Unlock()
	if hangup != nil {
		hangup()
	}
}

// Server accepts bridge connections. Hooks must be set before serving.
type Server struct {
	log *log.Logger

	OnConnect    func(p *Peer)
	OnMessage    func(p *Peer, b []byte)
	OnDisconnect func(p *Peer)

	upgrader websocket.Upgrader
	queue    int

	nextID atomic.Uint64
	mu     sync.RWMutex
	peers  map[uint64]*Peer
}

func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Server{
		log:   logger,
		queue: 64,
		peers: map[uint64]*Peer{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		p := &Peer{id: s.nextID.Add(1), remote: r.RemoteAddr, out: make(chan []byte, s.queue)}
		p.hangup = func() {
			cancel()
			_ = conn.Close()
		}
		s.mu.Lock()
		s.peers[p.id] = p
		s.mu.Unlock()
		s.log.Printf("peer %d connected from %s", p.id, p.remote)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-p.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		if s.OnConnect != nil {
			s.OnConnect(p)
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if s.OnMessage != nil {
				s.OnMessage(p, msg)
			}
		}

		// Cleanup.
		cancel()
		p.close()
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		s.log.Printf("peer %d disconnected", p.id)
		if s.OnDisconnect != nil {
			s.OnDisconnect(p)
		}
	}
}

// Broadcast queues b to every peer and returns how many accepted it.
func (s *Server) Broadcast(b []byte) int {
	n := 0
	for _, p := range s.Peers() {
		if p.Send(b) == nil {
			n++
		}
	}
	return n
}

// Peers returns the live peers in connection order.
func (s *Server) Peers() []*Peer {
	s.mu.RLock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
