package credstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := OpenBolt(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{
		"mem":  NewMemStore(),
		"bolt": bs,
	}
}

func TestSetGetClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get()
			require.NoError(t, err)
			require.False(t, got.Complete())

			want := Credentials{Token: "t1", RoomID: "r1", Key: "AbCdEf"}
			require.NoError(t, s.Set(want))

			got, err = s.Get()
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.True(t, got.Complete())
			require.Equal(t, "room:r1", got.Topic())
			require.Equal(t, "AbCd", got.KeyHint())

			require.NoError(t, s.Clear())
			got, err = s.Get()
			require.NoError(t, err)
			require.Equal(t, Credentials{}, got)
		})
	}
}

func TestPartialRejected(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, s.Set(Credentials{Token: "t1"}), ErrPartial)
			require.ErrorIs(t, s.Set(Credentials{RoomID: "r1"}), ErrPartial)
			// Key alone is fine: it can pre-exist a room/token pair.
			require.NoError(t, s.Set(Credentials{Key: "AbCdEf"}))
		})
	}
}

func TestKeyNormalizedOnSet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(Credentials{Token: "t", RoomID: "r", Key: "Ab dEf-_x=="}))
			got, err := s.Get()
			require.NoError(t, err)
			require.Equal(t, "Ab+dEf+/x", got.Key)
		})
	}
}

func TestSubscribe(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var seen []Credentials
			cancel := s.Subscribe(func(c Credentials) { seen = append(seen, c) })

			require.NoError(t, s.Set(Credentials{Token: "t", RoomID: "r"}))
			require.NoError(t, s.Clear())
			require.Len(t, seen, 2)
			require.Equal(t, "t", seen[0].Token)
			require.Equal(t, Credentials{}, seen[1])

			cancel()
			require.NoError(t, s.Set(Credentials{Token: "t2", RoomID: "r2"}))
			require.Len(t, seen, 2)
		})
	}
}

func TestBoltPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")
	bs, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, bs.Set(Credentials{Token: "t1", RoomID: "r1", Key: "k"}))
	require.NoError(t, bs.Close())

	bs, err = OpenBolt(path)
	require.NoError(t, err)
	defer bs.Close()
	got, err := bs.Get()
	require.NoError(t, err)
	require.Equal(t, "t1", got.Token)
	require.Equal(t, "r1", got.RoomID)
}
