package voicemux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voicemux/voicemux-go-bridge/credstore"
	"github.com/voicemux/voicemux-go-bridge/wire"
)

const roomUUID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

func TestSyncRequestVariants(t *testing.T) {
	tests := []struct {
		name string
		req  SyncRequest
	}{
		{"canonical", SyncRequest{Token: "t", RoomID: roomUUID, Key: "AbCdEf"}},
		{"uuid alias", SyncRequest{Token: "t", UUID: roomUUID, Key: "AbCdEf"}},
		{"legacy prefixed", SyncRequest{VoicemuxToken: "t", VoicemuxRoomID: roomUUID, VoicemuxKey: "AbCdEf"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			creds, err := tc.req.credentials()
			require.NoError(t, err)
			require.Equal(t, "t", creds.Token)
			require.Equal(t, roomUUID, creds.RoomID)
			require.Equal(t, "AbCdEf", creds.Key)
		})
	}
}

func TestSyncRequestCanonicalWins(t *testing.T) {
	req := SyncRequest{Token: "new", VoicemuxToken: "old", RoomID: roomUUID, UUID: "ignored"}
	creds, err := req.credentials()
	require.NoError(t, err)
	require.Equal(t, "new", creds.Token)
	require.Equal(t, roomUUID, creds.RoomID)
}

func TestSyncRequestKeyRepaired(t *testing.T) {
	req := SyncRequest{Token: "t", RoomID: roomUUID, Key: "Ab dEf-_x"}
	creds, err := req.credentials()
	require.NoError(t, err)
	require.Equal(t, "Ab+dEf+/x", creds.Key)
}

func TestSyncRequestValidation(t *testing.T) {
	_, err := SyncRequest{Token: "t"}.credentials()
	require.Error(t, err)

	_, err = SyncRequest{RoomID: roomUUID}.credentials()
	require.Error(t, err)

	_, err = SyncRequest{Token: "t", RoomID: "not-a-uuid"}.credentials()
	require.Error(t, err)
}

func TestSyncCredentialsPersistsAndReconnects(t *testing.T) {
	store := credstore.NewMemStore()
	b, dialer, _ := newTestBridge(t, store)

	res := b.SyncCredentials(SyncRequest{Token: "t9", UUID: roomUUID, Key: "AbCdEf"})
	require.True(t, res.Success)
	require.Empty(t, res.Error)

	// Persistence completed before SyncCredentials returned.
	creds, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "t9", creds.Token)

	conn := dialer.waitDial(t)
	jf := conn.expectFrame(t, wire.EventJoin)
	require.Equal(t, "room:"+roomUUID, jf.Topic)
}

func TestSyncCredentialsRejectsBadRequest(t *testing.T) {
	store := credstore.NewMemStore()
	b, dialer, _ := newTestBridge(t, store)

	res := b.SyncCredentials(SyncRequest{Token: "only-token"})
	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
	dialer.expectNoDial(t, 80*time.Millisecond)

	creds, err := store.Get()
	require.NoError(t, err)
	require.False(t, creds.Complete())
}
