package encoding

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/edaniels/gosnap/gl"
)

// framePoolSize bounds how many in-flight frames a session keeps pooled.
const framePoolSize = 4

// A TextureEncoder encodes frames sampled from GPU textures. The rendering
// goroutine acquires frames from its pool and stamps them; the engine worker
// owns the drawing surface, the codec session, and the captured context
// handle.
type TextureEncoder struct {
	cfg     TextureConfig
	builder VideoCodecBuilder
	pool    *FramePool
	logger  golog.Logger

	// worker goroutine only
	surface *gl.Surface
	codec   VideoCodec
}

// NewTextureEncoder creates a texture encoder for the given configuration.
// The codec session is not built until the engine starts its worker.
func NewTextureEncoder(cfg TextureConfig, builder VideoCodecBuilder, logger golog.Logger) *TextureEncoder {
	return &TextureEncoder{
		cfg:     cfg,
		builder: builder,
		pool:    NewFramePool(framePoolSize),
		logger:  logger,
	}
}

// AcquireFrame returns a pooled frame to stamp and dispatch. Called on the
// rendering goroutine only.
func (t *TextureEncoder) AcquireFrame() *Frame {
	return t.pool.Acquire()
}

// Config returns the session configuration.
func (t *TextureEncoder) Config() TextureConfig {
	return t.cfg
}

// prepare runs on the engine worker: it creates the drawing surface on the
// captured context handle, makes it current, and builds the codec session.
func (t *TextureEncoder) prepare() error {
	if t.cfg.Context == nil {
		return errors.New("texture encoder has no context handle")
	}
	surface, err := gl.NewSurface(t.cfg.Context, t.cfg.Width, t.cfg.Height)
	if err != nil {
		return errors.Wrap(err, "cannot create encoder surface")
	}
	if err := surface.MakeCurrent(); err != nil {
		return errors.Wrap(err, "cannot make encoder surface current")
	}
	codec, err := t.builder(t.cfg, t.logger)
	if err != nil {
		err = multierr.Combine(errors.Wrap(err, "cannot build codec session"), surface.Release())
		return err
	}
	t.surface = surface
	t.codec = codec
	return nil
}

// encode redraws the camera texture (and overlay, if configured) through the
// frame's transforms and feeds the composite to the codec session.
func (t *TextureEncoder) encode(f *Frame) ([]byte, error) {
	transform := gl.CameraSnapshotTransform(
		f.Transform, t.cfg.ScaleX, t.cfg.ScaleY, false, t.cfg.Rotation, t.cfg.Mirror)
	t.surface.Clear()
	if err := t.surface.DrawTexture(t.cfg.TextureID, transform); err != nil {
		return nil, err
	}
	if t.cfg.HasOverlay() {
		overlayTransform := gl.OverlaySnapshotTransform(f.OverlayTransform, t.cfg.OverlayRotation)
		if err := t.surface.DrawTexture(t.cfg.OverlayTextureID, overlayTransform); err != nil {
			return nil, err
		}
	}
	return t.codec.Encode(t.surface.Image())
}

// release tears down the codec session, the surface, and the captured
// context handle.
func (t *TextureEncoder) release() error {
	var err error
	if t.codec != nil {
		err = multierr.Append(err, t.codec.Close())
		t.codec = nil
	}
	if t.surface != nil {
		err = multierr.Append(err, t.surface.Release())
		t.surface = nil
	}
	if t.cfg.Context != nil {
		err = multierr.Append(err, t.cfg.Context.Close())
	}
	return err
}
