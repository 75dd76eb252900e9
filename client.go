// Package voicemux implements the receiver side of the VoiceMux bridge:
// a durable client for the topic-based relay that authenticates with a
// rotating token, joins a room channel, heartbeats, reconnects with
// exponential backoff, decrypts dictation payloads, and dispatches
// typed domain events to a pluggable sink.
package voicemux

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/voicemux/voicemux-go-bridge/credstore"
	"github.com/voicemux/voicemux-go-bridge/wire"
)

// ProtocolVersion is the relay serializer version sent on the
// connection URL.
const ProtocolVersion = "2.0.0"

// DefaultSenderID identifies this device in presence announcements.
// The value is shared with the original receiver implementation so
// paired senders recognise it.
const DefaultSenderID = "extension"

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultBackoffBase       = time.Second
	defaultBackoffCap        = 30 * time.Second
	defaultDialTimeout       = 10 * time.Second
)

var errNotConnected = errors.New("voicemux: not connected")

// Config holds bridge parameters. Zero values take defaults.
type Config struct {
	Endpoint          string // relay websocket URL (e.g. "wss://v.example.com/socket/websocket")
	SenderID          string // presence identity, DefaultSenderID if empty
	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	DialTimeout       time.Duration
	Logger            *slog.Logger
	Metrics           *Metrics
}

func (c Config) withDefaults() Config {
	if c.SenderID == "" {
		c.SenderID = DefaultSenderID
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = defaultBackoffCap
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// state is the transport-level connection state.
type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// joinState is the channel-level join state, reset whenever the
// transport closes.
type joinState int

const (
	unjoined joinState = iota
	joining
	joined
)

// transport abstracts the websocket connection so the state machine is
// testable without a network.
type transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
}

type dialFunc func(ctx context.Context, endpoint string) (transport, error)

// gobwasTransport is the production transport. The relay speaks text
// frames.
type gobwasTransport struct {
	conn net.Conn
}

func dialWS(ctx context.Context, endpoint string) (transport, error) {
	conn, _, _, err := ws.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &gobwasTransport{conn: conn}, nil
}

func (t *gobwasTransport) ReadMessage() ([]byte, error) {
	return wsutil.ReadServerText(t.conn)
}

func (t *gobwasTransport) WriteMessage(data []byte) error {
	return wsutil.WriteClientText(t.conn, data)
}

func (t *gobwasTransport) Close() error {
	return t.conn.Close()
}

// Snapshot is a point-in-time view of the bridge for status surfaces.
type Snapshot struct {
	State  string
	Joined bool
	Topic  string
}

// Bridge is the connection/session core. One goroutine owns all
// mutable state; every external trigger — Connect, the keepalive
// Check, credential-store notifications, inbound frames, timer fires —
// is a command into its mailbox, so ordering is enforced rather than
// incidental and a timer firing against a torn-down transport is a
// guaranteed no-op.
type Bridge struct {
	cfg   Config
	store credstore.Store
	sink  Dispatcher
	log   *slog.Logger
	dial  dialFunc

	cmds     chan func()
	closing  chan struct{}
	finished chan struct{}
	once     sync.Once

	unsubscribe func()

	// Owned by the run goroutine.
	st         state
	js         joinState
	epoch      int // increments on every dial and forced close; stale callbacks check it and bail
	conn       transport
	topic      string
	refCounter int
	backoff    backoff
	hbTimer    *time.Timer
	retryTimer *time.Timer
}

// New creates a bridge and starts its command loop. Call Connect to
// begin; Close to tear down.
func New(cfg Config, store credstore.Store, sink Dispatcher) *Bridge {
	cfg = cfg.withDefaults()
	b := &Bridge{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		log:      cfg.Logger,
		dial:     dialWS,
		cmds:     make(chan func(), 64),
		closing:  make(chan struct{}),
		finished: make(chan struct{}),
		backoff:  newBackoff(cfg.BackoffBase, cfg.BackoffCap),
	}
	b.unsubscribe = store.Subscribe(func(credstore.Credentials) {
		b.do(b.credentialsChanged)
	})
	go b.run()
	return b
}

// Connect asks the bridge to establish a session. Idempotent: a no-op
// while already connecting or open. Missing credentials are the
// expected "awaiting pairing" steady state, not an error.
func (b *Bridge) Connect() {
	b.do(b.connect)
}

// Check reconnects if the session is not open. Wire it to a periodic
// external signal to compensate for host-suspended timers.
func (b *Bridge) Check() {
	b.do(func() {
		if b.st != stateOpen {
			b.connect()
		}
	})
}

// Close tears the bridge down and waits for the command loop to exit.
func (b *Bridge) Close() error {
	b.once.Do(func() {
		b.unsubscribe()
		close(b.closing)
	})
	<-b.finished
	return nil
}

// Snapshot reports the current state. Blocks until the command loop
// serves it, or returns the zero value after Close.
func (b *Bridge) Snapshot() Snapshot {
	ch := make(chan Snapshot, 1)
	b.do(func() {
		ch <- Snapshot{State: b.st.String(), Joined: b.js == joined, Topic: b.topic}
	})
	select {
	case s := <-ch:
		return s
	case <-b.finished:
		return Snapshot{}
	}
}

// do enqueues fn onto the command loop. Dropped once the bridge is
// closing.
func (b *Bridge) do(fn func()) {
	select {
	case b.cmds <- fn:
	case <-b.closing:
	}
}

func (b *Bridge) run() {
	defer close(b.finished)
	for {
		select {
		case fn := <-b.cmds:
			fn()
		case <-b.closing:
			b.teardown()
			return
		}
	}
}

func (b *Bridge) teardown() {
	b.epoch++
	b.stopHeartbeat()
	b.stopRetry()
	b.closeConn()
	b.setState(stateIdle)
	b.js = unjoined
}

func (b *Bridge) setState(s state) {
	b.st = s
	b.cfg.Metrics.stateChanged(s)
}

// connect runs on the command loop.
func (b *Bridge) connect() {
	if b.st == stateConnecting || b.st == stateOpen {
		return
	}
	creds, err := b.store.Get()
	if err != nil {
		b.log.Error("credential read failed", "error", err)
		return
	}
	if !creds.Complete() {
		// Awaiting pairing. Silent steady state.
		b.log.Debug("credentials incomplete, awaiting pairing")
		b.setState(stateIdle)
		return
	}

	b.topic = creds.Topic()
	b.setState(stateConnecting)
	b.epoch++
	epoch := b.epoch
	b.cfg.Metrics.connectAttempt()

	endpoint := b.cfg.Endpoint + "?vsn=" + ProtocolVersion + "&token=" + url.QueryEscape(creds.Token)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.DialTimeout)
		defer cancel()
		conn, err := b.dial(ctx, endpoint)
		b.do(func() { b.dialDone(epoch, conn, err) })
	}()
}

func (b *Bridge) dialDone(epoch int, conn transport, err error) {
	if epoch != b.epoch {
		// Superseded while dialing (credential swap or teardown).
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		b.log.Warn("dial failed", "error", err)
		b.setState(stateClosed)
		b.scheduleReconnect()
		return
	}

	b.conn = conn
	b.setState(stateOpen)
	b.js = unjoined
	b.refCounter = 1

	if err := b.send(wire.Join(b.topic)); err != nil {
		b.log.Warn("join send failed", "error", err)
		b.transportClosed(epoch, err)
		return
	}
	b.js = joining
	b.log.Info("socket established, joining room", "topic", b.topic)

	b.armHeartbeat(epoch)
	go b.readLoop(epoch, conn)
}

// readLoop feeds inbound frames into the command loop, preserving
// per-topic processing order: each frame is decrypted and dispatched
// before the next is interpreted.
func (b *Bridge) readLoop(epoch int, conn transport) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			b.do(func() { b.transportClosed(epoch, err) })
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			// One bad frame must not take down the session.
			b.log.Debug("dropping malformed frame", "error", err)
			continue
		}
		b.do(func() { b.handleEnvelope(epoch, env) })
	}
}

func (b *Bridge) transportClosed(epoch int, err error) {
	if epoch != b.epoch {
		return // a superseded socket; already handled
	}
	b.log.Info("transport closed", "error", err)
	b.epoch++
	b.closeConn()
	b.stopHeartbeat()
	b.setState(stateClosed)
	b.js = unjoined
	b.scheduleReconnect()
}

// forceClose supersedes the live socket without letting its own close
// path schedule a competing reconnect.
func (b *Bridge) forceClose() {
	b.epoch++
	b.stopHeartbeat()
	b.stopRetry()
	b.closeConn()
	b.js = unjoined
}

func (b *Bridge) credentialsChanged() {
	b.forceClose()
	b.setState(stateIdle)
	b.connect()
}

func (b *Bridge) scheduleReconnect() {
	b.stopRetry()
	delay := b.backoff.Next()
	b.cfg.Metrics.reconnectScheduled()
	b.log.Info("reconnect scheduled", "delay", delay)
	b.retryTimer = time.AfterFunc(delay, func() {
		b.do(func() {
			if b.st == stateClosed {
				b.setState(stateIdle)
			}
			b.connect()
		})
	})
}

func (b *Bridge) stopRetry() {
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
}

func (b *Bridge) armHeartbeat(epoch int) {
	b.hbTimer = time.AfterFunc(b.cfg.HeartbeatInterval, func() {
		b.do(func() { b.heartbeat(epoch) })
	})
}

func (b *Bridge) heartbeat(epoch int) {
	if epoch != b.epoch || b.st != stateOpen {
		return
	}
	if err := b.send(wire.Heartbeat()); err != nil {
		b.log.Warn("heartbeat send failed", "error", err)
		b.transportClosed(epoch, err)
		return
	}
	b.armHeartbeat(epoch)
}

func (b *Bridge) stopHeartbeat() {
	if b.hbTimer != nil {
		b.hbTimer.Stop()
		b.hbTimer = nil
	}
}

func (b *Bridge) closeConn() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

func (b *Bridge) send(env wire.Envelope) error {
	if b.conn == nil {
		return errNotConnected
	}
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	b.cfg.Metrics.frameSent(env.Event)
	return b.conn.WriteMessage(data)
}

func (b *Bridge) dispatch(ev Event) {
	b.cfg.Metrics.dispatched(ev.Kind)
	if b.sink != nil {
		b.sink.Dispatch(ev)
	}
}
