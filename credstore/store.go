// Package credstore persists the bridge's pairing state: the relay
// token, the room id, and the symmetric key. The store is the single
// shared mutable resource between the bridge and its collaborators
// (pairing UI, sync messages), so writes are atomic, durable before
// Set returns, and announced to subscribers.
package credstore

import (
	"errors"
	"sync"

	"github.com/voicemux/voicemux-go-bridge/codec"
)

// ErrPartial is returned when exactly one of token and room id is set.
// They are issued together by the hub and must stay that way; the key
// may exist independently (generated client-side before pairing).
var ErrPartial = errors.New("credstore: token and room id must be set together")

// Credentials is the pairing record. Key is the Base64-encoded
// AES-256 symmetric key.
type Credentials struct {
	Token  string `json:"token"`
	RoomID string `json:"room_id"`
	Key    string `json:"key"`
}

// Complete reports whether the record is sufficient to connect.
func (c Credentials) Complete() bool {
	return c.Token != "" && c.RoomID != ""
}

// Topic is the relay channel the record scopes to.
func (c Credentials) Topic() string {
	return "room:" + c.RoomID
}

// KeyHint derives the short key prefix senders attach to ciphertext.
func (c Credentials) KeyHint() string {
	return codec.KeyHint(c.Key)
}

// normalized returns a copy with the key repaired (space-for-plus and
// alphabet variants) so storage and comparison always see one form.
func (c Credentials) normalized() Credentials {
	if c.Key != "" {
		c.Key = codec.Normalize(c.Key)
	}
	return c
}

func (c Credentials) validate() error {
	if (c.Token == "") != (c.RoomID == "") {
		return ErrPartial
	}
	return nil
}

// Store holds the current credentials. Set must be durable before it
// returns: a connect() issued immediately after a successful Set sees
// the new record, never a stale one.
type Store interface {
	Get() (Credentials, error)
	Set(Credentials) error
	Clear() error
	// Subscribe registers fn to run after every successful Set or
	// Clear, with the record as it now stands. The returned func
	// cancels the subscription.
	Subscribe(fn func(Credentials)) (cancel func())
}

// subscribers is the notification fan-out shared by implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Credentials)
}

func (s *subscribers) add(fn func(Credentials)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(Credentials))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) notify(c Credentials) {
	s.mu.Lock()
	fns := make([]func(Credentials), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu    sync.RWMutex
	creds Credentials
	subscribers
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Get() (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, nil
}

func (m *MemStore) Set(c Credentials) error {
	if err := c.validate(); err != nil {
		return err
	}
	c = c.normalized()
	m.mu.Lock()
	m.creds = c
	m.mu.Unlock()
	m.notify(c)
	return nil
}

func (m *MemStore) Clear() error {
	m.mu.Lock()
	m.creds = Credentials{}
	m.mu.Unlock()
	m.notify(Credentials{})
	return nil
}

func (m *MemStore) Subscribe(fn func(Credentials)) func() {
	return m.add(fn)
}
