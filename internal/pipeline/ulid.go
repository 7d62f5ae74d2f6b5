package pipeline

import (
	"crypto/rand"
	"sync"
	"time"
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ulidSource issues monotonic ULIDs: a 48-bit millisecond timestamp followed
// by 80 bits of entropy. Within one millisecond the entropy is incremented
// instead of redrawn, so job IDs sort in submission order.
type ulidSource struct {
	mu      sync.Mutex
	ms      int64
	entropy [10]byte
}

var jobIDs ulidSource

func generateULID() string {
	return jobIDs.next(time.Now())
}

func (s *ulidSource) next(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := now.UnixMilli()
	if ms > s.ms || !increment(s.entropy[:]) {
		s.ms = max(ms, s.ms)
		rand.Read(s.entropy[:])
	}

	var id [16]byte
	for i := range 6 {
		id[i] = byte(s.ms >> (40 - 8*i))
	}
	copy(id[6:], s.entropy[:])
	return encodeULID(id)
}

// increment adds one to b as a big-endian integer. It reports false on
// overflow.
func increment(b []byte) bool {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return true
		}
	}
	return false
}

// encodeULID renders 128 bits as 26 Crockford base32 digits. The first digit
// carries only the top 3 bits.
func encodeULID(id [16]byte) string {
	var out [26]byte
	for i := range out {
		// Digit i covers bits [5i-2, 5i+3) of the 130-bit padded value.
		var v byte
		for bit := 5*i - 2; bit < 5*i+3; bit++ {
			v <<= 1
			if bit >= 0 && id[bit/8]&(0x80>>(bit%8)) != 0 {
				v |= 1
			}
		}
		out[i] = crockford[v]
	}
	return string(out[:])
}
