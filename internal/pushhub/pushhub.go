// Package pushhub implements per-user push-subscriber fan-out over
// Server-Sent Events: a set of open SSE connections per user, admission-capped
// per user and per IP, with best-effort delivery and heartbeats.
//
// The registry-of-connections shape (map keyed by identity, single mutex,
// send-or-drop on a buffered channel) carries over a websocket hub's
// structure, reworked for a set of subscribers per user instead of one
// connection per user, a dedicated writer goroutine per subscriber instead
// of one shared broadcast loop under a read lock, and one-way SSE framing
// ("event:<name>\ndata:<json>\n\n") instead of a bidirectional socket.
package pushhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sendBufferSize bounds how many unsent frames a slow subscriber can
// accumulate before new frames are dropped.
const sendBufferSize = 32

// Subscriber is one open push connection for one user.
type Subscriber struct {
	ID       string
	Username string
	IP       string

	send    chan []byte
	closed  chan struct{}
	closeMu sync.Once
	limiter *rate.Limiter
}

// Hub is the process-wide push registry, its own unit of synchronization
// independent of every other shared map in the service.
type Hub struct {
	mu         sync.Mutex
	byUser     map[string]map[*Subscriber]struct{}
	ipCounts   map[string]int
	maxPerUser int
	maxPerIP   int
	heartbeat  time.Duration
}

// New builds a Hub enforcing maxPerUser/maxPerIP subscriber caps and
// sending a heartbeat frame on the given interval.
func New(maxPerUser, maxPerIP int, heartbeat time.Duration) *Hub {
	return &Hub{
		byUser:     make(map[string]map[*Subscriber]struct{}),
		ipCounts:   make(map[string]int),
		maxPerUser: maxPerUser,
		maxPerIP:   maxPerIP,
		heartbeat:  heartbeat,
	}
}

// CountForUser reports the current subscriber count for username.
func (h *Hub) CountForUser(username string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byUser[username])
}

// CountForIP reports the current subscriber count for ip.
func (h *Hub) CountForIP(ip string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ipCounts[ip]
}

// Register admits a new subscriber for (username, ip) if both caps have
// room, atomically with the capacity check. It returns (nil, false) when
// either cap is already at its limit.
func (h *Hub) Register(id, username, ip string) (*Subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.byUser[username]) >= h.maxPerUser {
		return nil, false
	}
	if h.ipCounts[ip] >= h.maxPerIP {
		return nil, false
	}

	sub := &Subscriber{
		ID:       id,
		Username: username,
		IP:       ip,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
	}

	if h.byUser[username] == nil {
		h.byUser[username] = make(map[*Subscriber]struct{})
	}
	h.byUser[username][sub] = struct{}{}
	h.ipCounts[ip]++

	return sub, true
}

// Unregister releases sub's membership and per-IP count. Safe to call more
// than once; idempotent after the first call.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.byUser[sub.Username]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.byUser, sub.Username)
			}
			if h.ipCounts[sub.IP] > 0 {
				h.ipCounts[sub.IP]--
				if h.ipCounts[sub.IP] == 0 {
					delete(h.ipCounts, sub.IP)
				}
			}
		}
	}
	h.mu.Unlock()

	sub.closeMu.Do(func() { close(sub.closed) })
}

// Publish sends a named event with a JSON-encodable payload to every
// subscriber of username. Sends are best-effort: a full subscriber buffer
// silently drops the frame rather than blocking the publisher, so one slow
// subscriber can't stall delivery to the rest.
func (h *Hub) Publish(username, event string, data any) {
	h.mu.Lock()
	set := h.byUser[username]
	subs := make([]*Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	frame, err := renderFrame(event, data)
	if err != nil {
		return
	}
	for _, s := range subs {
		s.trySend(frame)
	}
}

func (s *Subscriber) trySend(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Run drives sub's outbound frames and heartbeats until the connection
// closes or ctx is cancelled; write is called for each outbound chunk and
// must flush it to the underlying transport. Run returns when the
// subscriber is unregistered or the request context ends, releasing the
// heartbeat ticker and hub membership together with the close.
func (h *Hub) Run(ctx context.Context, sub *Subscriber, write func([]byte) error) {
	defer h.Unregister(sub)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.closed:
			return
		case frame := <-sub.send:
			if sub.limiter != nil {
				_ = sub.limiter.Wait(ctx)
			}
			if write(frame) != nil {
				return
			}
		case <-ticker.C:
			frame, err := renderFrame("ping", map[string]any{"ok": true})
			if err == nil {
				if write(frame) != nil {
					return
				}
			}
		}
	}
}

// SendHello renders the admission-success frame sent before any other
// event on a newly admitted connection.
func SendHello(username string) ([]byte, error) {
	return renderFrame("hello", map[string]any{"ok": true, "username": username})
}

func renderFrame(event string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, body)), nil
}
