package voicemux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voicemux/voicemux-go-bridge/codec"
	"github.com/voicemux/voicemux-go-bridge/wire"
)

// handleEnvelope interprets one inbound frame against the live session.
// Runs on the command loop.
func (b *Bridge) handleEnvelope(epoch int, env wire.Envelope) {
	if epoch != b.epoch {
		return // frame from a superseded socket
	}
	if env.Topic != b.topic {
		// Stale messages from a superseded room after a fast credential
		// swap, and heartbeat replies on the reserved topic.
		return
	}
	b.cfg.Metrics.frameReceived(env.Event)

	// Logging mirror: every room frame is surfaced to the sink so the
	// receiver side can be debugged from its own console.
	sender := env.Payload.SenderID
	if sender == "" {
		sender = "system"
	}
	b.dispatch(Event{Kind: KindLog, Text: fmt.Sprintf("[%s] sender=%s", env.Event, sender)})

	switch env.Event {
	case wire.EventReply:
		b.handleReply(env.Payload)
	case wire.EventUpdateText:
		b.handleText(KindTextUpdate, env.Payload)
	case wire.EventConfirmSend:
		b.handleText(KindConfirmSend, env.Payload)
	case wire.EventDeviceOnline:
		b.handlePresence(env.Payload)
	case wire.EventRemoteCommand:
		b.handleCommand(env.Payload)
	case wire.EventError, wire.EventClose:
		b.log.Warn("channel errored", "event", env.Event)
	}
}

func (b *Bridge) handleReply(p wire.Payload) {
	switch p.Status {
	case "ok":
		b.js = joined
		b.backoff.Reset()
		b.log.Info("channel joined", "topic", b.topic)
		b.sendPresence()
		b.dispatch(Event{Kind: KindJoinOK})
	case "error":
		reason := p.ReplyReason()
		b.dispatch(Event{Kind: KindJoinError, Reason: reason})
		if isAuthFailure(reason) {
			// Stale credentials must not loop: clear them and stop.
			// Recovery requires a fresh external sync.
			b.log.Warn("join rejected, clearing credentials", "reason", reason)
			b.forceClose()
			b.setState(stateIdle)
			if err := b.store.Clear(); err != nil {
				b.log.Error("credential clear failed", "error", err)
			}
		} else {
			b.log.Warn("join failed", "reason", reason)
			b.forceClose()
			b.setState(stateClosed)
			b.scheduleReconnect()
		}
	}
}

func isAuthFailure(reason string) bool {
	switch strings.ToLower(reason) {
	case "unauthorized", "invalid token", "invalid_token":
		return true
	}
	return false
}

func (b *Bridge) handleText(kind Kind, p wire.Payload) {
	text, status := b.resolveText(p)
	b.dispatch(Event{Kind: kind, Text: text, Decrypt: status})
}

func (b *Bridge) handlePresence(p wire.Payload) {
	if p.SenderID == b.cfg.SenderID || b.js != joined {
		return
	}
	b.dispatch(Event{Kind: KindPresenceOnline, SenderID: p.SenderID})
	// Bidirectional handshake: reply so the sender learns we are live.
	b.sendPresence()
}

func (b *Bridge) handleCommand(p wire.Payload) {
	text, status := b.resolveText(p)
	b.dispatch(Event{
		Kind:     KindRemoteCommand,
		Action:   p.Action,
		Text:     text,
		SenderID: p.SenderID,
		Decrypt:  status,
	})
	// Any inbound command proves the link is active; re-announce so a
	// long-idle pairing never looks stale. Pure logging traffic is
	// exempt.
	if b.js == joined && p.Action != wire.ActionLog {
		b.sendPresence()
	}
}

// resolveText returns the payload's plaintext. Control payloads pass
// through unchanged; encrypted payloads go through the codec with the
// key read fresh from the store — credentials can change at any time,
// so nothing is cached for the session's lifetime.
func (b *Bridge) resolveText(p wire.Payload) (string, codec.Status) {
	if !p.HasCipher() {
		return p.Text, codec.StatusOK
	}
	creds, err := b.store.Get()
	if err != nil {
		b.log.Error("credential read failed", "error", err)
		b.cfg.Metrics.decryptFailure()
		return codec.Result{Status: codec.StatusFailed}.Text(), codec.StatusFailed
	}
	res := codec.Decrypt(p.Ciphertext, p.IV, p.KeyHint, creds.Key)
	if res.Status != codec.StatusOK {
		b.cfg.Metrics.decryptFailure()
		b.log.Warn("decrypt failed", "status", res.Status.String(), "key_hint", p.KeyHint)
	}
	return res.Text(), res.Status
}

func (b *Bridge) sendPresence() {
	b.refCounter++
	env := wire.Presence(b.topic, strconv.Itoa(b.refCounter), b.cfg.SenderID)
	if err := b.send(env); err != nil {
		b.log.Warn("presence send failed", "error", err)
	}
}
