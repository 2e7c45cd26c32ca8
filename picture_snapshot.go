package gosnap

import (
	"sync"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/edaniels/gosnap/gl"
	"github.com/edaniels/gosnap/overlay"
	"github.com/edaniels/gosnap/preview"
)

// A SnapshotPictureRecorder captures a still image from the live preview.
// It works as follows:
//
//   - Take registers a one time frame observer on the preview.
//   - The observer learns the camera texture id on the rendering goroutine
//     and deregisters itself on its very first frame.
//   - The rendering context handle is captured on that goroutine, then all
//     remaining work moves to a worker goroutine.
//   - The worker creates a new off-screen surface sharing the captured
//     context, redraws the camera texture on it, composites the overlay on
//     top, reads the result back as JPEG, and tears everything down.
//
// The frame is redrawn on a new surface rather than read off the live
// preview for two reasons: the rendering goroutine is freed immediately
// instead of blocking on the read-back, and the overlay never appears on the
// shared preview surface, not even for a frame.
type SnapshotPictureRecorder struct {
	result   *PictureResult
	listener PictureResultListener
	preview  *preview.Preview
	logger   golog.Logger

	outputRatio AspectRatio
	// flip marks the view and sensor axes as swapped, which swaps the
	// crop scales.
	flip bool

	ovl             overlay.Overlay
	hasOverlay      bool
	overlayRotation int
	comp            *overlay.Compositor

	textureID    int
	dispatchOnce sync.Once
}

// NewSnapshotPictureRecorder creates a one-shot picture recorder. The
// result's size is cropped to outputRatio when the capture runs.
// overlayRotation is the view to output rotation offset applied to overlay
// content; ovl may be nil.
func NewSnapshotPictureRecorder(
	result *PictureResult,
	listener PictureResultListener,
	prev *preview.Preview,
	outputRatio AspectRatio,
	ovl overlay.Overlay,
	overlayRotation int,
	flip bool,
	logger golog.Logger,
) *SnapshotPictureRecorder {
	if logger == nil {
		logger = Logger
	}
	return &SnapshotPictureRecorder{
		result:          result,
		listener:        listener,
		preview:         prev,
		logger:          logger,
		outputRatio:     outputRatio,
		flip:            flip,
		ovl:             ovl,
		hasOverlay:      ovl != nil && ovl.DrawsOn(overlay.PictureSnapshot),
		overlayRotation: overlayRotation,
	}
}

// Take captures a single frame. The result (or error) arrives via the
// listener exactly once.
func (r *SnapshotPictureRecorder) Take() {
	r.preview.AddFrameObserver(&pictureFrameObserver{recorder: r})
}

// pictureFrameObserver is the recorder's one time registration on the
// preview; a separate type so deregistering it cannot race with a video
// recorder using the same struct.
type pictureFrameObserver struct {
	recorder *SnapshotPictureRecorder
}

func (o *pictureFrameObserver) OnTextureCreated(textureID int) {
	o.recorder.onTextureCreated(textureID)
}

func (o *pictureFrameObserver) OnFrame(tex *gl.SurfaceTexture, scaleX, scaleY float32) {
	o.recorder.preview.RemoveFrameObserver(o)
	o.recorder.onFrame(tex, scaleX, scaleY)
}

func (r *SnapshotPictureRecorder) onTextureCreated(textureID int) {
	r.textureID = textureID
	// Crop the native size to the requested ratio.
	r.result.Size = CropToRatio(r.result.Size, r.outputRatio)
	if r.hasOverlay {
		r.comp = overlay.NewCompositor(
			r.ovl, overlay.PictureSnapshot, r.preview.GLContext(),
			r.result.Size.Width, r.result.Size.Height, r.logger)
	}
}

// onFrame runs on the rendering goroutine: the context handle must be
// captured here, while that goroutine still owns the context, and is then
// moved into the worker and never touched again on this goroutine.
func (r *SnapshotPictureRecorder) onFrame(tex *gl.SurfaceTexture, scaleX, scaleY float32) {
	handle := r.preview.GLContext().Handle()
	utils.PanicCapturingGo(func() {
		r.process(handle, tex, scaleX, scaleY)
	})
}

// process runs on the worker goroutine. Any failure in here is fatal to this
// single capture; there is no intermediate recovery point, and the error
// still reaches the listener via the completion dispatch.
func (r *SnapshotPictureRecorder) process(handle *gl.Handle, tex *gl.SurfaceTexture, scaleX, scaleY float32) {
	surface, err := gl.NewSurface(handle, r.result.Size.Width, r.result.Size.Height)
	if err != nil {
		r.teardown(nil, handle)
		r.dispatch(nil, err)
		return
	}
	if err := surface.MakeCurrent(); err != nil {
		r.teardown(surface, handle)
		r.dispatch(nil, err)
		return
	}

	// Pull the latest camera image and correct its transform.
	tex.UpdateTexImage()
	transform := gl.CameraSnapshotTransform(
		tex.TransformMatrix(), scaleX, scaleY, r.flip,
		-r.result.Rotation, r.result.Facing == FacingFront)
	r.result.Rotation = 0

	var overlayTransform gl.Mat4
	if r.hasOverlay {
		r.comp.Draw()
		overlayTransform = gl.OverlaySnapshotTransform(r.comp.Transform(), r.overlayRotation)
	}

	// Camera first, overlay always on top.
	surface.Clear()
	err = surface.DrawTexture(r.textureID, transform)
	if err == nil && r.hasOverlay {
		err = surface.DrawTexture(r.comp.TextureID(), overlayTransform)
	}
	var data []byte
	if err == nil {
		r.result.Format = FormatJPEG
		data, err = surface.SaveFrameJPEG()
	}

	err = multierr.Append(err, r.teardown(surface, handle))
	if err != nil {
		r.dispatch(nil, err)
		return
	}
	r.result.Data = data
	r.dispatch(r.result, nil)
}

// teardown releases every resource created for this one-shot operation.
func (r *SnapshotPictureRecorder) teardown(surface *gl.Surface, handle *gl.Handle) error {
	var err error
	if surface != nil {
		err = multierr.Append(err, surface.Release())
	}
	if r.comp != nil {
		r.comp.Release()
		r.comp = nil
	}
	err = multierr.Append(err, handle.Close())
	return err
}

func (r *SnapshotPictureRecorder) dispatch(result *PictureResult, err error) {
	r.dispatchOnce.Do(func() {
		r.listener.OnPictureResult(result, err)
	})
}
