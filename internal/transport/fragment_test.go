package transport

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/1ureka/quickscreen/internal/protocol"
)

// makeTestData generates deterministic test data of the given size.
func makeTestData(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) ^ seed
	}
	return data
}

// TestSplitReassembleRoundTrip splits frames of boundary sizes and feeds the
// datagrams back one by one, each carrying only its real byte count.
func TestSplitReassembleRoundTrip(t *testing.T) {
	const L = MaxDatagramSize

	sizes := []int{0, 1, L - 1, L, L + 1, 10 * L}

	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d bytes", n), func(t *testing.T) {
			payload := makeTestData(n, 0x5A)
			encoded := protocol.EncodeHost(protocol.Frame{Payload: payload})

			chunks := Split(encoded, L)
			if want := len(encoded)/L + 1; len(chunks) != want {
				t.Fatalf("datagram count: got %d, want %d", len(chunks), want)
			}

			r := NewReassembler(L)
			var (
				msg  []byte
				done bool
			)
			for i, chunk := range chunks {
				if len(chunk) > L {
					t.Fatalf("chunk %d exceeds the limit: %d bytes", i, len(chunk))
				}
				if done {
					t.Fatalf("reassembler completed early at chunk %d of %d", i, len(chunks))
				}
				// Copy into a fresh slice so nothing relies on aliasing.
				msg, done = r.Feed(append([]byte(nil), chunk...))
			}
			if !done {
				t.Fatal("reassembler did not complete")
			}

			if !bytes.Equal(msg, encoded) {
				t.Fatalf("reassembled %d bytes, want %d", len(msg), len(encoded))
			}

			decoded, err := protocol.DecodeHost(msg)
			if err != nil {
				t.Fatalf("DecodeHost failed: %v", err)
			}
			if got := decoded.(protocol.Frame).Payload; !bytes.Equal(got, payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), n)
			}
		})
	}
}

// TestSplitRawSizes covers Split on buffers that are not protocol messages.
func TestSplitRawSizes(t *testing.T) {
	testCases := []struct {
		size, limit int
		want        []int
	}{
		{0, 4, []int{0}},
		{3, 4, []int{3}},
		{4, 4, []int{4, 0}},
		{5, 4, []int{4, 1}},
		{12, 4, []int{4, 4, 4, 0}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d/%d", tc.size, tc.limit), func(t *testing.T) {
			chunks := Split(make([]byte, tc.size), tc.limit)
			if len(chunks) != len(tc.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tc.want))
			}
			for i, c := range chunks {
				if len(c) != tc.want[i] {
					t.Errorf("chunk %d: got %d bytes, want %d", i, len(c), tc.want[i])
				}
			}
		})
	}
}

// TestReassemblerIgnoresPadding makes sure short datagrams are not padded to
// the limit, which would corrupt the payload with trailing zeros.
func TestReassemblerIgnoresPadding(t *testing.T) {
	r := NewReassembler(4)

	if _, done := r.Feed([]byte{1, 2, 3, 4}); done {
		t.Fatal("full datagram must not complete the message")
	}
	if r.Pending() != 4 {
		t.Fatalf("Pending: got %d, want 4", r.Pending())
	}

	msg, done := r.Feed([]byte{5})
	if !done {
		t.Fatal("short datagram must complete the message")
	}
	if !bytes.Equal(msg, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("got % x", msg)
	}
	if r.Pending() != 0 {
		t.Errorf("reassembler not reset after completion: %d bytes pending", r.Pending())
	}
}

// TestReassemblerLostFragment: a lost middle datagram yields a shorter,
// corrupted buffer rather than a crash.
func TestReassemblerLostFragment(t *testing.T) {
	const L = 8
	encoded := protocol.EncodeHost(protocol.Frame{Payload: makeTestData(20, 1)})
	chunks := Split(encoded, L)

	r := NewReassembler(L)
	var msg []byte
	for i, c := range chunks {
		if i == 1 {
			continue // dropped on the wire
		}
		msg, _ = r.Feed(c)
	}

	if len(msg) != len(encoded)-L {
		t.Errorf("got %d bytes, want %d", len(msg), len(encoded)-L)
	}
}
