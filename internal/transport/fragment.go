package transport

// Split cuts a serialized message into the datagrams that carry it.
// Every datagram but the last is exactly limit bytes long and the last one is
// strictly shorter. When len(b) is a multiple of limit (including zero) an
// empty datagram is appended, so a receiver can always tell where a message
// ends without a length field.
//
// The returned chunks alias b.
func Split(b []byte, limit int) [][]byte {
	chunks := make([][]byte, 0, len(b)/limit+1)
	for len(b) >= limit {
		chunks = append(chunks, b[:limit])
		b = b[limit:]
	}
	return append(chunks, b)
}

// Reassembler rebuilds one multi-datagram message from consecutive datagrams.
// It is goroutine-local (owned by a Conn) and needs no locking.
type Reassembler struct {
	limit int
	buf   []byte
}

// NewReassembler creates a reassembler for datagrams of at most limit bytes.
func NewReassembler(limit int) *Reassembler {
	return &Reassembler{limit: limit}
}

// Feed appends exactly the bytes of one received datagram. It returns the
// complete message and true once a datagram shorter than the limit arrives.
func (r *Reassembler) Feed(datagram []byte) ([]byte, bool) {
	r.buf = append(r.buf, datagram...)
	if len(datagram) >= r.limit {
		return nil, false
	}

	msg := r.buf
	r.buf = nil
	return msg, true
}

// Pending returns the number of bytes buffered for an unfinished message.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}
