package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide frame/traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent    atomic.Int64 // frames handed to the transport, counted once per recipient
	FramesRecv    atomic.Int64 // frames reassembled and decoded
	FramesDropped atomic.Int64 // frames lost to reassembly errors or a slow UI
	BytesSent     atomic.Int64 // datagram bytes written to the socket
	BytesRecv     atomic.Int64 // datagram bytes read from the socket
	Joins         atomic.Int64 // join requests observed (host) or sent (peer)
	Leaves        atomic.Int64 // leave notices observed (host) or sent (peer)
}

func (s *stats) AddFrameSent()    { s.FramesSent.Add(1) }
func (s *stats) AddFrameRecv()    { s.FramesRecv.Add(1) }
func (s *stats) AddFrameDropped() { s.FramesDropped.Add(1) }
func (s *stats) AddSent(n int)    { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)    { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddJoin()         { s.Joins.Add(1) }
func (s *stats) AddLeave()        { s.Leaves.Add(1) }

// snapshot is a point-in-time copy of the counters.
type snapshot struct {
	framesSent, framesRecv, framesDropped int64
	bytesSent, bytesRecv                  int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		framesSent:    s.FramesSent.Load(),
		framesRecv:    s.FramesRecv.Load(),
		framesDropped: s.FramesDropped.Load(),
		bytesSent:     s.BytesSent.Load(),
		bytesRecv:     s.BytesRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs throughput every interval
// while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		prev := Stats.snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()

				outS := float64(cur.bytesSent-prev.bytesSent) / secs
				inS := float64(cur.bytesRecv-prev.bytesRecv) / secs
				fpsOut := float64(cur.framesSent-prev.framesSent) / secs
				fpsIn := float64(cur.framesRecv-prev.framesRecv) / secs
				dropped := cur.framesDropped - prev.framesDropped

				if inS > 10 || outS > 10 || dropped > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, fpsIn, fpsOut, dropped))
				}

				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS, fpsIn, fpsOut float64, dropped int64) string {
	return fmt.Sprintf("In: %s/s %5.1f fps | Out: %s/s %5.1f fps | Dropped: %d",
		formatBytes(inS),
		fpsIn,
		formatBytes(outS),
		fpsOut,
		dropped,
	)
}
