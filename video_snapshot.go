package gosnap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"

	"github.com/edaniels/gosnap/encoding"
	"github.com/edaniels/gosnap/gl"
	"github.com/edaniels/gosnap/overlay"
	"github.com/edaniels/gosnap/preview"
)

const (
	stateNotRecording int32 = iota
	stateRecording
)

const (
	defaultVideoFrameRate = 30
	defaultAudioBitRate   = 64000
)

// estimateVideoBitRate assumes low motion; advanced users are free to set
// the bit rate themselves for each video.
func estimateVideoBitRate(size Size, frameRate int) int {
	return int(0.07 * 1.0 * float32(size.Width) * float32(size.Height) * float32(frameRate))
}

// A SnapshotVideoRecorder records video by intercepting frames rendered onto
// the live preview and feeding them to an encoder engine.
//
// Start and Stop only express desire; the actual transitions happen on the
// rendering goroutine at frame boundaries, so a stop may be observed one
// frame late. The current state flag changes only inside OnFrame, in
// response to a desired mismatch observed at that instant; no lock protects
// the pair.
type SnapshotVideoRecorder struct {
	result   *VideoResult
	listener VideoResultListener
	preview  *preview.Preview
	builder  encoding.VideoCodecBuilder
	logger   golog.Logger

	ovl             overlay.Overlay
	hasOverlay      bool
	overlayRotation int
	comp            atomic.Pointer[overlay.Compositor]

	engine  atomic.Pointer[encoding.Engine]
	desired atomic.Int32
	current atomic.Int32

	textureID    int
	dispatchOnce sync.Once
}

// NewSnapshotVideoRecorder creates a recorder for the given request. The
// builder constructs the codec session once recording starts; ovl may be
// nil. overlayRotation is the rotation to bake into the overlay texture.
func NewSnapshotVideoRecorder(
	result *VideoResult,
	listener VideoResultListener,
	prev *preview.Preview,
	builder encoding.VideoCodecBuilder,
	ovl overlay.Overlay,
	overlayRotation int,
	logger golog.Logger,
) *SnapshotVideoRecorder {
	if logger == nil {
		logger = Logger
	}
	return &SnapshotVideoRecorder{
		result:          result,
		listener:        listener,
		preview:         prev,
		builder:         builder,
		logger:          logger,
		ovl:             ovl,
		hasOverlay:      ovl != nil && ovl.DrawsOn(overlay.VideoSnapshot),
		overlayRotation: overlayRotation,
	}
}

// Start arms the recorder. Recording actually begins when the rendering
// goroutine observes the request at the next frame.
func (r *SnapshotVideoRecorder) Start() {
	r.preview.AddFrameObserver(r)
	r.desired.Store(stateRecording)
}

// Stop disarms the recorder without blocking. Teardown happens
// asynchronously once the rendering goroutine observes the mismatch; the
// final result arrives via the listener.
func (r *SnapshotVideoRecorder) Stop() {
	r.desired.Store(stateNotRecording)
}

// OnTextureCreated implements preview.FrameObserver. Runs on the rendering
// goroutine.
func (r *SnapshotVideoRecorder) OnTextureCreated(textureID int) {
	r.textureID = textureID
	if r.hasOverlay {
		r.comp.Store(overlay.NewCompositor(
			r.ovl, overlay.VideoSnapshot, r.preview.GLContext(),
			r.result.Size.Width, r.result.Size.Height, r.logger))
	}
}

// OnFrame implements preview.FrameObserver. Runs on the rendering goroutine
// and evaluates the recording state machine once per produced frame.
func (r *SnapshotVideoRecorder) OnFrame(tex *gl.SurfaceTexture, scaleX, scaleY float32) {
	if r.current.Load() == stateNotRecording && r.desired.Load() == stateRecording {
		r.startEngine(scaleX, scaleY)
		r.current.Store(stateRecording)
	}

	if r.current.Load() == stateRecording {
		if engine := r.engine.Load(); engine == nil {
			// Can happen on teardown; late frames after stop are expected.
			r.logger.Debugw("frame after engine teardown, dropping")
		} else {
			if Debug {
				r.logger.Debugw("dispatching frame")
			}
			frame := engine.VideoEncoder().AcquireFrame()
			frame.Timestamp = tex.Timestamp()
			frame.TimestampMillis = time.Now().UnixMilli()
			frame.Transform = tex.TransformMatrix()
			// The engine worker releases the compositor when a limit trips;
			// a frame that loses that race is dropped by Notify anyway.
			if comp := r.comp.Load(); comp != nil {
				comp.Draw()
				frame.OverlayTransform = comp.Transform()
			}
			engine.Notify(encoding.EventFrame, frame)
		}
	}

	if r.current.Load() == stateRecording && r.desired.Load() == stateNotRecording {
		r.logger.Infow("stopping the encoder engine")
		r.current.Store(stateNotRecording)
		if engine := r.engine.Load(); engine != nil {
			engine.Stop()
		}
	}
}

// startEngine resolves defaults, captures the rendering context, and starts
// the encoder engine. Runs on the rendering goroutine: this is the only
// point at which the context handle can be captured, because only the
// rendering goroutine owns it at this instant.
func (r *SnapshotVideoRecorder) startEngine(scaleX, scaleY float32) {
	r.logger.Infow("starting the encoder engine")
	if r.result.VideoFrameRate <= 0 {
		r.result.VideoFrameRate = defaultVideoFrameRate
	}
	if r.result.VideoBitRate <= 0 {
		r.result.VideoBitRate = estimateVideoBitRate(r.result.Size, r.result.VideoFrameRate)
	}
	if r.result.AudioBitRate <= 0 {
		r.result.AudioBitRate = defaultAudioBitRate
	}

	// Ensure width and height are divisible by 2.
	width := r.result.Size.Width
	height := r.result.Size.Height
	width += width % 2
	height += height % 2
	var mimeType string
	switch r.result.Codec {
	case CodecH263:
		mimeType = encoding.MimeTypeH263
	case CodecH264, CodecDeviceDefault:
		mimeType = encoding.MimeTypeH264
	}

	r.logger.Infow("creating frame encoder", "rotation", r.result.Rotation)
	videoConfig := encoding.TextureConfig{
		Width:     width,
		Height:    height,
		BitRate:   r.result.VideoBitRate,
		FrameRate: r.result.VideoFrameRate,
		Rotation:  r.result.Rotation,
		MimeType:  mimeType,
		TextureID: r.textureID,
		ScaleX:    scaleX,
		ScaleY:    scaleY,
		Mirror:    r.result.Facing == FacingFront,
		Context:   r.preview.GLContext().Handle(),
	}
	if comp := r.comp.Load(); comp != nil {
		videoConfig.OverlayTextureID = comp.TextureID()
		videoConfig.OverlayRotation = r.overlayRotation
	}
	videoEncoder := encoding.NewTextureEncoder(videoConfig, r.builder, r.logger)

	var audioEncoder *encoding.AudioEncoder
	if r.result.Audio != AudioOff {
		audioConfig := encoding.NewAudioConfig()
		audioConfig.BitRate = r.result.AudioBitRate
		switch r.result.Audio {
		case AudioMono:
			audioConfig.Channels = 1
		case AudioStereo:
			audioConfig.Channels = 2
		}
		audioEncoder = encoding.NewAudioEncoder(audioConfig)
	}

	engine := encoding.NewEngine(
		r.result.Sink, videoEncoder, audioEncoder,
		r.result.MaxDuration, r.result.MaxSize, r, r.logger)
	r.engine.Store(engine)
	engine.Start()
	// The rotation is baked into the texture transform now; zero it so
	// downstream consumers do not rotate the result again.
	r.result.Rotation = 0
}

// OnEncodingStart implements encoding.Listener.
func (r *SnapshotVideoRecorder) OnEncodingStart() {
	r.listener.OnVideoRecordingStart()
}

// OnEncodingStop implements encoding.Listener.
func (r *SnapshotVideoRecorder) OnEncodingStop() {
	r.listener.OnVideoRecordingEnd()
}

// OnEncodingEnd implements encoding.Listener. Arrives on the engine worker
// goroutine; this is the sole channel for reporting encoder failure upward.
func (r *SnapshotVideoRecorder) OnEncodingEnd(stopReason encoding.StopReason, err error) {
	result := r.result
	if err != nil {
		r.logger.Errorw("error while encoding", "error", err)
		result = nil
	} else {
		switch stopReason {
		case encoding.StopByMaxDuration:
			r.logger.Infow("encoding ended by max duration")
			result.EndReason = EndReasonMaxDurationReached
		case encoding.StopByMaxSize:
			r.logger.Infow("encoding ended by max size")
			result.EndReason = EndReasonMaxSizeReached
		default:
			r.logger.Infow("encoding ended by user")
		}
	}
	r.current.Store(stateNotRecording)
	r.desired.Store(stateNotRecording)
	r.preview.RemoveFrameObserver(r)
	if comp := r.comp.Swap(nil); comp != nil {
		comp.Release()
	}
	r.engine.Store(nil)
	r.dispatchOnce.Do(func() {
		r.listener.OnVideoResult(result, err)
	})
}
