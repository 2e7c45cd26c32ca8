package gl

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// A Texture holds the most recently published image for a texture id.
// The stored image is replaced wholesale on update; readers must treat it
// as immutable.
type Texture struct {
	id  int
	mu  sync.Mutex
	img *image.NRGBA
}

// ID returns the texture's id.
func (t *Texture) ID() int {
	return t.id
}

// Image returns the texture's current image, or nil if nothing has been
// published yet.
func (t *Texture) Image() *image.NRGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img
}

func (t *Texture) setImage(img *image.NRGBA) {
	t.mu.Lock()
	t.img = img
	t.mu.Unlock()
}

// A SurfaceTexture couples a texture with a stream of published buffers.
// A producer publishes images with timestamps; UpdateTexImage pulls the
// latest published buffer into the texture. The two sides may run on
// different goroutines.
type SurfaceTexture struct {
	ctx      *Context
	tex      *Texture
	bottomUp bool

	mu        sync.Mutex
	pending   image.Image
	pendingTS int64
	timestamp int64
	bufWidth  int
	bufHeight int
}

// NewSurfaceTexture attaches a surface texture to the given texture id.
// bottomUp marks canvas backed surfaces whose buffers are published with a
// bottom-left origin; their content is stored flipped and callers are
// expected to compensate in the texture transform.
func NewSurfaceTexture(ctx *Context, textureID int, bottomUp bool) *SurfaceTexture {
	tex, _ := ctx.Texture(textureID)
	return &SurfaceTexture{ctx: ctx, tex: tex, bottomUp: bottomUp}
}

// SetDefaultBufferSize sets the resolution buffers are stored at. Published
// images of a different size are resampled on UpdateTexImage.
func (st *SurfaceTexture) SetDefaultBufferSize(width, height int) {
	st.mu.Lock()
	st.bufWidth, st.bufHeight = width, height
	st.mu.Unlock()
}

// Publish hands a new buffer to the surface texture. The timestamp is
// monotonic, in nanoseconds, from the producing surface. The image must not
// be mutated after publishing.
func (st *SurfaceTexture) Publish(img image.Image, timestamp int64) {
	st.mu.Lock()
	st.pending = img
	st.pendingTS = timestamp
	st.mu.Unlock()
}

// UpdateTexImage pulls the latest published buffer into the texture,
// resampling to the default buffer size when one is set.
func (st *SurfaceTexture) UpdateTexImage() {
	st.mu.Lock()
	pending, ts := st.pending, st.pendingTS
	bufW, bufH := st.bufWidth, st.bufHeight
	st.timestamp = ts
	st.mu.Unlock()
	if pending == nil {
		return
	}
	img := imaging.Clone(pending)
	bounds := img.Bounds()
	if bufW > 0 && bufH > 0 && (bounds.Dx() != bufW || bounds.Dy() != bufH) {
		img = imaging.Resize(img, bufW, bufH, imaging.Linear)
	}
	if st.bottomUp {
		img = imaging.FlipV(img)
	}
	st.tex.setImage(img)
}

// Timestamp returns the timestamp of the most recently pulled buffer.
func (st *SurfaceTexture) Timestamp() int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.timestamp
}

// TextureID returns the id of the backing texture.
func (st *SurfaceTexture) TextureID() int {
	return st.tex.ID()
}

// TransformMatrix returns the stream transform of the backing buffer.
func (st *SurfaceTexture) TransformMatrix() Mat4 {
	return Identity()
}
