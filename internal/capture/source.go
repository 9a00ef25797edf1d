// Package capture defines the frame producer consumed by the host loop and
// two implementations: a synthetic test pattern and an in-memory queue.
// Frames are opaque byte buffers; nothing here encodes video.
package capture

import (
	"sync/atomic"
	"time"
)

// Source produces encoded frame payloads for the host loop.
// Next must not block: it returns false when no frame is ready.
// Ownership of a returned buffer passes to the caller.
type Source interface {
	Start() error
	Stop() error
	Next() ([]byte, bool)
}

// ---------------------------------------------------------------------------
// Pattern
// ---------------------------------------------------------------------------

// Pattern emits raw RGB24 frames of a moving gradient at a fixed rate.
type Pattern struct {
	width, height int
	interval      time.Duration

	running atomic.Bool
	index   uint32
	last    time.Time
}

// NewPattern creates a width×height test pattern producing fps frames per second.
func NewPattern(width, height, fps int) *Pattern {
	if fps <= 0 {
		fps = 1
	}
	return &Pattern{
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
	}
}

// FrameSize returns the size in bytes of every frame.
func (p *Pattern) FrameSize() int {
	return p.width * p.height * 3
}

func (p *Pattern) Start() error {
	p.running.Store(true)
	return nil
}

func (p *Pattern) Stop() error {
	p.running.Store(false)
	return nil
}

// Next returns a new frame once per interval while the pattern is running.
func (p *Pattern) Next() ([]byte, bool) {
	if !p.running.Load() {
		return nil, false
	}

	now := time.Now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return nil, false
	}
	p.last = now

	frame := make([]byte, p.FrameSize())
	shift := int(p.index)
	for y := 0; y < p.height; y++ {
		row := frame[y*p.width*3 : (y+1)*p.width*3]
		for x := 0; x < p.width; x++ {
			row[x*3] = byte(x + shift)
			row[x*3+1] = byte(y + shift)
			row[x*3+2] = byte(x ^ y)
		}
	}
	p.index++
	return frame, true
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

// Queue is a Source fed by the embedder through Push. When full, the oldest
// frame is discarded so the host always sends the freshest one.
type Queue struct {
	frames  chan []byte
	running atomic.Bool
}

// NewQueue creates a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{frames: make(chan []byte, capacity)}
}

func (q *Queue) Start() error {
	q.running.Store(true)
	return nil
}

func (q *Queue) Stop() error {
	q.running.Store(false)
	return nil
}

// Push enqueues a frame. It is safe to call from any goroutine.
func (q *Queue) Push(frame []byte) {
	for {
		select {
		case q.frames <- frame:
			return
		default:
		}

		select {
		case <-q.frames:
		default:
		}
	}
}

// Next returns the oldest queued frame while the queue is running.
func (q *Queue) Next() ([]byte, bool) {
	if !q.running.Load() {
		return nil, false
	}
	select {
	case f := <-q.frames:
		return f, true
	default:
		return nil, false
	}
}
