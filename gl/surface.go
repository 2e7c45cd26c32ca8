package gl

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// A Surface is an off-screen drawing target sharing a captured context.
// It must be made current before drawing and released when done; the handle
// guarantees only one surface is current at a time.
type Surface struct {
	handle  *Handle
	buf     *image.NRGBA
	width   int
	height  int
	current bool
}

// NewSurface creates an off-screen surface of the given size on the captured
// context handle.
func NewSurface(h *Handle, width, height int) (*Surface, error) {
	if h.closed.Load() {
		return nil, errors.New("context handle is closed")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid surface size %dx%d", width, height)
	}
	return &Surface{
		handle: h,
		buf:    image.NewNRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}, nil
}

// MakeCurrent claims the context for this surface.
func (s *Surface) MakeCurrent() error {
	if s.current {
		return nil
	}
	if err := s.handle.makeCurrent(s); err != nil {
		return err
	}
	s.current = true
	return nil
}

// Clear fills the surface with opaque black.
func (s *Surface) Clear() {
	for i := range s.buf.Pix {
		s.buf.Pix[i] = 0
	}
	// opaque alpha
	for i := 3; i < len(s.buf.Pix); i += 4 {
		s.buf.Pix[i] = 0xFF
	}
}

// DrawTexture samples the given texture through the transform and blends it
// over the surface. The transform maps destination texture coordinates to
// source texture coordinates, both in [0,1].
func (s *Surface) DrawTexture(textureID int, transform Mat4) error {
	if !s.current {
		return errors.New("surface is not current")
	}
	tex, ok := s.handle.Texture(textureID)
	if !ok {
		return errors.Errorf("no texture with id %d", textureID)
	}
	src := tex.Image()
	if src == nil {
		return errors.Errorf("texture %d has no image", textureID)
	}
	srcBounds := src.Bounds()
	sw, sh := float64(srcBounds.Dx()), float64(srcBounds.Dy())
	dw, dh := float64(s.width), float64(s.height)

	// The 2D affine part of the transform, in texture coordinate space.
	a, b, tx := float64(transform[0]), float64(transform[4]), float64(transform[12])
	c, d, ty := float64(transform[1]), float64(transform[5]), float64(transform[13])

	// Destination-pixel to source-pixel affine, then inverted, since
	// x/image's Transform wants the source to destination mapping.
	d2s := f64.Aff3{
		a * sw / dw, b * sw / dh, tx * sw,
		c * sh / dw, d * sh / dh, ty * sh,
	}
	s2d, err := invertAff3(d2s)
	if err != nil {
		return err
	}
	xdraw.BiLinear.Transform(s.buf, s2d, src, srcBounds, xdraw.Over, nil)
	return nil
}

func invertAff3(m f64.Aff3) (f64.Aff3, error) {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 {
		return f64.Aff3{}, errors.New("texture transform is not invertible")
	}
	return f64.Aff3{
		m[4] / det, -m[1] / det, (m[1]*m[5] - m[2]*m[4]) / det,
		-m[3] / det, m[0] / det, (m[2]*m[3] - m[0]*m[5]) / det,
	}, nil
}

// Image returns the surface's backing image. Callers must not mutate it.
func (s *Surface) Image() image.Image {
	return s.buf
}

// At returns the color at the given pixel.
func (s *Surface) At(x, y int) color.Color {
	return s.buf.At(x, y)
}

// SaveFrameJPEG reads the surface back as JPEG compressed bytes.
func (s *Surface) SaveFrameJPEG() ([]byte, error) {
	if !s.current {
		return nil, errors.New("surface is not current")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.buf, imaging.JPEG); err != nil {
		return nil, errors.Wrap(err, "cannot compress surface")
	}
	return buf.Bytes(), nil
}

// Release detaches the surface from the context and drops its buffer.
func (s *Surface) Release() error {
	if s.current {
		s.handle.detach(s)
		s.current = false
	}
	s.buf = nil
	return nil
}
