package voicemux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesToCap(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		require.Equal(t, w, b.Next(), "delay %d", i)
	}
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Next()
	b.Reset()
	require.Equal(t, time.Second, b.Next())
	require.Equal(t, 2*time.Second, b.Next())
}
