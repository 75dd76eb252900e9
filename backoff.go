package voicemux

import "time"

// backoff produces reconnect delays: base, 2×base, 4×base, ... capped
// at max. Reset only on a confirmed successful join — transport-open
// without join success is not yet a usable session.
type backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func newBackoff(base, max time.Duration) backoff {
	return backoff{base: base, max: max, next: base}
}

// Next returns the delay to use now and doubles the following one.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

func (b *backoff) Reset() {
	b.next = b.base
}
