package voicemux

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/voicemux/voicemux-go-bridge/codec"
	"github.com/voicemux/voicemux-go-bridge/credstore"
)

// SyncRequest is the external credential-sync message. Callers spell
// the fields differently (the hub, the pairing page, legacy senders),
// so every known variant is accepted here and normalized before
// anything else sees it.
type SyncRequest struct {
	Token          string `json:"token,omitempty"`
	VoicemuxToken  string `json:"voicemux_token,omitempty"`
	RoomID         string `json:"roomId,omitempty"`
	UUID           string `json:"uuid,omitempty"`
	VoicemuxRoomID string `json:"voicemux_room_id,omitempty"`
	Key            string `json:"key,omitempty"`
	VoicemuxKey    string `json:"voicemux_key,omitempty"`
}

// SyncResult reports the outcome back to the external caller.
type SyncResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// credentials normalizes the variant field names into the canonical
// record and validates it.
func (r SyncRequest) credentials() (credstore.Credentials, error) {
	c := credstore.Credentials{
		Token:  firstNonEmpty(r.Token, r.VoicemuxToken),
		RoomID: firstNonEmpty(r.RoomID, r.UUID, r.VoicemuxRoomID),
		Key:    codec.Normalize(firstNonEmpty(r.Key, r.VoicemuxKey)),
	}
	if c.Token == "" || c.RoomID == "" {
		return credstore.Credentials{}, fmt.Errorf("token and room id are required")
	}
	if _, err := uuid.Parse(c.RoomID); err != nil {
		return credstore.Credentials{}, fmt.Errorf("invalid room id %q: %w", c.RoomID, err)
	}
	return c, nil
}

// SyncCredentials persists a fresh credential set and triggers
// reconnection. Persistence completes before this returns, so a
// connect issued immediately after sees the new record. The store
// notification drives the reconnect: the live transport is superseded
// and a new session is dialed with the fresh token.
func (b *Bridge) SyncCredentials(req SyncRequest) SyncResult {
	creds, err := req.credentials()
	if err != nil {
		return SyncResult{Error: err.Error()}
	}
	if err := b.store.Set(creds); err != nil {
		return SyncResult{Error: err.Error()}
	}
	b.log.Info("credentials synced", "room", creds.RoomID, "key_hint", creds.KeyHint())
	return SyncResult{Success: true}
}

// PairingURL reconstructs the hub pairing link for the stored
// credentials. The key travels in the fragment so it never reaches the
// hub's server logs.
func PairingURL(hubBase string, c credstore.Credentials) string {
	return fmt.Sprintf("%s/%s/zen?token=%s&uuid=%s#key=%s",
		hubBase, c.RoomID, url.QueryEscape(c.Token), c.RoomID, url.QueryEscape(c.Key))
}
