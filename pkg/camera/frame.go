// Package camera owns the capture device, the background acquisition loop
// and the live preview renderer.
package camera

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image plus its timestamp. A Frame owns its pixel
// buffer; whoever holds the Frame is responsible for calling Close.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Timestamp time.Time
}

// NewFrame wraps a Mat that the Frame takes ownership of.
func NewFrame(mat gocv.Mat, ts time.Time) *Frame {
	return &Frame{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: ts,
	}
}

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Mat:       f.Mat.Clone(),
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
	}
}

// Close releases the underlying pixel buffer.
func (f *Frame) Close() {
	f.Mat.Close()
}

// RingBufferSize is the number of recent frames kept for the preview.
const RingBufferSize = 3

// RingBuffer is a fixed-capacity most-recent-N frame cache. The single
// acquisition goroutine writes, the renderer reads; the lock is held only
// for the brief push/latest operation, never across a capture or encode.
type RingBuffer struct {
	mu     sync.Mutex
	frames [RingBufferSize]*Frame
	head   int // index of the most recent frame
	count  int
}

// NewRingBuffer returns an empty buffer.
func NewRingBuffer() *RingBuffer {
	return &RingBuffer{head: -1}
}

// Push stores a frame, taking ownership. The oldest frame is evicted and
// released when the buffer is full.
func (b *RingBuffer) Push(f *Frame) {
	b.mu.Lock()
	b.head = (b.head + 1) % RingBufferSize
	if evicted := b.frames[b.head]; evicted != nil {
		evicted.Close()
	}
	b.frames[b.head] = f
	if b.count < RingBufferSize {
		b.count++
	}
	b.mu.Unlock()
}

// Latest returns a copy of the most recent frame, or nil when the buffer
// is empty. The caller owns the returned copy and must Close it.
func (b *RingBuffer) Latest() *Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	return b.frames[b.head].Clone()
}

// Len returns the number of buffered frames.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Timestamps returns the capture timestamps of the buffered frames,
// most recent first.
func (b *RingBuffer) Timestamps() []time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]time.Time, 0, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head - i + RingBufferSize*2) % RingBufferSize
		out = append(out, b.frames[idx].Timestamp)
	}
	return out
}

// Drain releases every buffered frame. Called when the device is about to
// be reconfigured, since buffered frames no longer match the new mode.
func (b *RingBuffer) Drain() {
	b.mu.Lock()
	for i := range b.frames {
		if b.frames[i] != nil {
			b.frames[i].Close()
			b.frames[i] = nil
		}
	}
	b.head = -1
	b.count = 0
	b.mu.Unlock()
}
