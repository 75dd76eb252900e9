// Package relay implements a minimal in-process relay speaking the
// bridge wire protocol: token check, room joins, heartbeat replies,
// and per-topic fan-out. It exists for local development and for
// exercising the client against a real websocket peer in tests — it is
// not the hosted relay.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voicemux/voicemux-go-bridge/wire"
)

// Options configures a relay.
type Options struct {
	// Authorize validates the token presented at connect. Nil accepts
	// every token.
	Authorize func(token string) bool
	Logger    *slog.Logger
}

// Relay brokers topic-scoped frames between connected members.
type Relay struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	rooms    map[string]map[*member]struct{}
	received []wire.Envelope
	joins    int
}

type member struct {
	conn  *websocket.Conn
	token string

	mu    sync.Mutex // serialises writes: replies race fan-out
	topic string
}

// New creates a relay.
func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{
		opts:  opts,
		log:   opts.Logger,
		rooms: make(map[string]map[*member]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the websocket endpoint.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(r.serve)
}

func (r *Relay) serve(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("upgrade failed", "error", err)
		return
	}
	m := &member{conn: conn, token: token}
	defer r.drop(m)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			r.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		r.record(env)

		switch env.Event {
		case wire.EventJoin:
			r.handleJoin(m, env)
		case wire.EventHeartbeat:
			m.write(reply(env, "ok", `{}`))
		default:
			r.fanOut(m, env)
		}
	}
}

func (r *Relay) handleJoin(m *member, env wire.Envelope) {
	if r.opts.Authorize != nil && !r.opts.Authorize(m.token) {
		r.log.Info("join rejected", "topic", env.Topic)
		m.write(reply(env, "error", `{"reason":"unauthorized"}`))
		return
	}
	r.mu.Lock()
	if m.topic != "" {
		delete(r.rooms[m.topic], m)
	}
	m.topic = env.Topic
	if r.rooms[env.Topic] == nil {
		r.rooms[env.Topic] = make(map[*member]struct{})
	}
	r.rooms[env.Topic][m] = struct{}{}
	r.joins++
	r.mu.Unlock()

	r.log.Info("member joined", "topic", env.Topic)
	m.write(reply(env, "ok", `{}`))
}

// fanOut forwards a frame to every other member of its topic.
func (r *Relay) fanOut(from *member, env wire.Envelope) {
	for _, m := range r.members(env.Topic) {
		if m != from {
			m.write(env)
		}
	}
}

// Broadcast injects a frame to every member of its topic. Test hook
// for simulating a sender without a second connection.
func (r *Relay) Broadcast(env wire.Envelope) {
	for _, m := range r.members(env.Topic) {
		m.write(env)
	}
}

func (r *Relay) members(topic string) []*member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*member, 0, len(r.rooms[topic]))
	for m := range r.rooms[topic] {
		out = append(out, m)
	}
	return out
}

func (r *Relay) drop(m *member) {
	r.mu.Lock()
	if m.topic != "" {
		delete(r.rooms[m.topic], m)
	}
	r.mu.Unlock()
	m.conn.Close()
}

func (r *Relay) record(env wire.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, env)
}

// Received returns a snapshot of every frame the relay has read.
func (r *Relay) Received() []wire.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.Envelope, len(r.received))
	copy(out, r.received)
	return out
}

// JoinCount returns the number of successful joins.
func (r *Relay) JoinCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joins
}

// RoomSize returns the number of members currently in a topic.
func (r *Relay) RoomSize(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[topic])
}

func (m *member) write(env wire.Envelope) {
	data, err := wire.Encode(env)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn.WriteMessage(websocket.TextMessage, data)
}

func reply(to wire.Envelope, status, response string) wire.Envelope {
	return wire.Envelope{
		JoinRef: to.JoinRef,
		Ref:     to.Ref,
		Topic:   to.Topic,
		Event:   wire.EventReply,
		Payload: wire.Payload{Status: status, Response: json.RawMessage(response)},
	}
}
