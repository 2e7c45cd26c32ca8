package overlay

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gogpu/gg"

	"github.com/edaniels/gosnap/gl"
)

// A Compositor owns the drawing surface and texture for one overlay at one
// composition site. Draw runs one clear/draw/publish cycle; the result is
// then available as a texture with its own transform, to be composited on
// top of the camera texture. Draw and Release may arrive from different
// goroutines; a Draw that loses the race against Release is a no-op.
type Compositor struct {
	overlay Overlay
	target  Target
	ctx     *gl.Context
	texID   int
	logger  golog.Logger

	mu       sync.Mutex
	canvas   *gg.Context
	tex      *gl.SurfaceTexture
	released bool
}

// NewCompositor provisions a texture and a drawing surface of the given size
// for the overlay. The texture lives in the supplied rendering context.
func NewCompositor(
	o Overlay,
	target Target,
	ctx *gl.Context,
	width, height int,
	logger golog.Logger,
) *Compositor {
	tex := ctx.CreateTexture()
	st := gl.NewSurfaceTexture(ctx, tex.ID(), true)
	st.SetDefaultBufferSize(width, height)
	return &Compositor{
		overlay: o,
		target:  target,
		ctx:     ctx,
		canvas:  gg.NewContext(width, height),
		tex:     st,
		texID:   tex.ID(),
		logger:  logger,
	}
}

// Draw clears the drawing surface to fully transparent, invokes the
// overlay's draw capability, and publishes the result to the texture.
// A failing draw is logged and that cycle's overlay content is skipped;
// a dropped overlay frame is acceptable, a dropped camera frame is not,
// so the error never propagates.
func (c *Compositor) Draw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.canvas.Clear()
	if err := c.overlay.DrawOn(c.target, c.canvas); err != nil {
		c.logger.Warnw("error drawing overlay, skipping its frame",
			"target", c.target.String(), "error", err)
	}
	c.tex.Publish(c.canvas.Image(), time.Now().UnixNano())
	c.tex.UpdateTexImage()
}

// TextureID returns the id of the overlay texture.
func (c *Compositor) TextureID() int {
	return c.texID
}

// Transform returns the overlay texture's stream transform as of the last
// Draw.
func (c *Compositor) Transform() gl.Mat4 {
	return c.tex.TransformMatrix()
}

// Release frees the texture and the drawing surface. Idempotent.
func (c *Compositor) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.ctx.DeleteTexture(c.texID)
	if err := c.canvas.Close(); err != nil {
		c.logger.Debugw("error closing overlay canvas", "error", err)
	}
}
