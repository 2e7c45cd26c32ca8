package encoding

import (
	"github.com/edaniels/gosnap/gl"
)

// A Frame is the per-frame payload handed from the rendering goroutine to
// the engine worker: timestamps plus the transforms to sample the camera and
// overlay textures with. The texture contents themselves are not carried;
// the encoder samples them through the shared context when it processes the
// frame.
//
// Frames are pooled. Acquire one immediately before dispatch, never retain
// it past the Notify call; the engine releases it after encoding.
type Frame struct {
	// Timestamp is the monotonic capture timestamp in nanoseconds, from
	// the producing surface.
	Timestamp int64
	// TimestampMillis is the wall-clock time of dispatch. An
	// approximation, but a workable one.
	TimestampMillis int64

	Transform        gl.Mat4
	OverlayTransform gl.Mat4
}

func (f *Frame) reset() {
	*f = Frame{}
}

// A FramePool is a fixed-size pool of frames. It is safe only for the single
// producer (rendering goroutine) / single consumer (engine worker) pattern
// the pipeline uses; it is not a general purpose concurrent pool.
type FramePool struct {
	free chan *Frame
}

// NewFramePool creates a pool holding up to size frames.
func NewFramePool(size int) *FramePool {
	return &FramePool{free: make(chan *Frame, size)}
}

// Acquire returns a zeroed frame, allocating if the pool is empty.
func (p *FramePool) Acquire() *Frame {
	select {
	case f := <-p.free:
		return f
	default:
		return &Frame{}
	}
}

// Release zeroes the frame and returns it to the pool, dropping it if the
// pool is full.
func (p *FramePool) Release(f *Frame) {
	f.reset()
	select {
	case p.free <- f:
	default:
	}
}
