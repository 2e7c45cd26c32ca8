package encoding

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// StopReason is the terminal cause of an encoding session.
type StopReason int

const (
	// StopByUser means Stop was called.
	StopByUser StopReason = iota
	// StopByMaxDuration means the duration limit tripped.
	StopByMaxDuration
	// StopByMaxSize means the size limit tripped.
	StopByMaxSize
)

// String implements fmt.Stringer.
func (r StopReason) String() string {
	switch r {
	case StopByUser:
		return "user_requested"
	case StopByMaxDuration:
		return "max_duration"
	case StopByMaxSize:
		return "max_size"
	}
	return "unknown"
}

// EventKind identifies the kind of event passed to Notify.
type EventKind int

// EventFrame carries one frame to encode.
const EventFrame EventKind = iota

// A Listener receives engine lifecycle callbacks. They arrive on the engine
// worker goroutine, never on the rendering goroutine. Start is followed
// eventually by exactly one OnEncodingStart or one OnEncodingEnd with an
// error; every session ends with exactly one OnEncodingEnd.
type Listener interface {
	OnEncodingStart()
	OnEncodingStop()
	OnEncodingEnd(reason StopReason, err error)
}

// An Engine owns a video codec session, its drawing surface, its frame pool,
// and the worker goroutine that feeds them. The pipeline that starts an
// engine is the sole caller of Start/Notify/Stop and the sole recipient of
// its callbacks.
type Engine struct {
	name        string
	sink        io.WriteCloser
	video       *TextureEncoder
	audio       *AudioEncoder
	maxDuration time.Duration
	maxSize     int64
	listener    Listener
	logger      golog.Logger

	frames   chan *Frame
	stopCh   chan struct{}
	stopOnce sync.Once
	torndown atomic.Bool
	dropped  atomic.Int64

	activeBackgroundWorkers sync.WaitGroup
}

// NewEngine creates an engine writing to the given sink. audio may be nil.
// Zero limits disable the corresponding self-stop.
func NewEngine(
	sink io.WriteCloser,
	video *TextureEncoder,
	audio *AudioEncoder,
	maxDuration time.Duration,
	maxSize int64,
	listener Listener,
	logger golog.Logger,
) *Engine {
	name := uuid.NewString()
	return &Engine{
		name:        name,
		sink:        sink,
		video:       video,
		audio:       audio,
		maxDuration: maxDuration,
		maxSize:     maxSize,
		listener:    listener,
		logger:      logger.Named(name),
		frames:      make(chan *Frame, framePoolSize),
		stopCh:      make(chan struct{}),
	}
}

// VideoEncoder returns the engine's texture encoder.
func (e *Engine) VideoEncoder() *TextureEncoder {
	return e.video
}

// AudioEncoder returns the engine's audio encoder, or nil when the session
// has no audio.
func (e *Engine) AudioEncoder() *AudioEncoder {
	return e.audio
}

// Start begins encoding on a worker goroutine.
func (e *Engine) Start() {
	e.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(e.encodeLoop, e.activeBackgroundWorkers.Done)
}

// Notify enqueues one frame for encoding without blocking; the rendering
// goroutine calls this once per frame and must never wait on the encoder.
// Frames arriving mid-teardown, or faster than the worker can drain them,
// are dropped.
func (e *Engine) Notify(kind EventKind, f *Frame) {
	if kind != EventFrame || f == nil {
		return
	}
	if e.torndown.Load() {
		e.video.pool.Release(f)
		return
	}
	select {
	case e.frames <- f:
		// teardown may have swept the queue between the check above and
		// this send; sweep again so the frame still reaches the pool
		if e.torndown.Load() {
			e.drainFrames()
		}
	default:
		e.dropped.Add(1)
		e.video.pool.Release(f)
	}
}

// Stop requests graceful termination. It does not block; completion arrives
// via OnEncodingStop and OnEncodingEnd.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *Engine) encodeLoop() {
	if err := e.video.prepare(); err != nil {
		e.teardown()
		err = multierr.Combine(err, e.video.release(), e.sink.Close())
		e.listener.OnEncodingEnd(StopByUser, err)
		return
	}
	if e.audio != nil {
		e.logger.Debugw("audio session configured",
			"channels", e.audio.Config().Channels, "bit_rate", e.audio.Config().BitRate)
	}
	e.listener.OnEncodingStart()

	reason := StopByUser
	var encErr error
	var firstTimestamp int64 = -1
	var written int64
loop:
	for {
		select {
		case <-e.stopCh:
			break loop
		case f := <-e.frames:
			if firstTimestamp < 0 {
				firstTimestamp = f.Timestamp
			}
			elapsed := time.Duration(f.Timestamp - firstTimestamp)
			data, err := e.video.encode(f)
			e.video.pool.Release(f)
			if err != nil {
				encErr = errors.Wrap(err, "error encoding frame")
				break loop
			}
			n, err := e.sink.Write(data)
			written += int64(n)
			if err != nil {
				encErr = errors.Wrap(err, "error writing to sink")
				break loop
			}
			if e.maxDuration > 0 && elapsed >= e.maxDuration {
				e.logger.Infow("max duration reached, stopping", "elapsed", elapsed)
				reason = StopByMaxDuration
				break loop
			}
			if e.maxSize > 0 && written >= e.maxSize {
				e.logger.Infow("max size reached, stopping", "written", written)
				reason = StopByMaxSize
				break loop
			}
		}
	}

	e.teardown()
	err := multierr.Combine(
		encErr,
		e.video.release(),
		e.sink.Close(),
	)
	if dropped := e.dropped.Load(); dropped != 0 {
		e.logger.Debugw("dropped frames while encoding", "count", dropped)
	}
	if err == nil {
		e.listener.OnEncodingStop()
	}
	e.listener.OnEncodingEnd(reason, err)
}

// teardown marks the engine dead for Notify and drains queued frames back to
// the pool.
func (e *Engine) teardown() {
	e.torndown.Store(true)
	e.drainFrames()
}

func (e *Engine) drainFrames() {
	for {
		select {
		case f := <-e.frames:
			e.video.pool.Release(f)
		default:
			return
		}
	}
}
