package voicemux

import "github.com/voicemux/voicemux-go-bridge/codec"

// Kind tags a domain event delivered to the sink.
type Kind string

const (
	KindTextUpdate     Kind = "text_update"
	KindConfirmSend    Kind = "confirm_send"
	KindRemoteCommand  Kind = "remote_command"
	KindPresenceOnline Kind = "presence_online"
	KindJoinOK         Kind = "join_ok"
	KindJoinError      Kind = "join_error"
	KindLog            Kind = "log"
)

// Event is a decoded, decrypted domain event. Ciphertext never reaches
// this type: Text is either plaintext or the placeholder for a failed
// decryption, with Decrypt telling the two apart.
type Event struct {
	Kind     Kind
	Text     string
	Action   string // remote command action, KindRemoteCommand only
	SenderID string // originating device, presence and commands
	Reason   string // join failure reason, KindJoinError only
	Decrypt  codec.Status
}

// Dispatcher is the narrow interface the bridge core exposes to the
// sink layer (the text-injection adapter, a logger, a test recorder).
type Dispatcher interface {
	Dispatch(Event)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(Event)

func (f DispatcherFunc) Dispatch(ev Event) { f(ev) }
