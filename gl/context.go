// Package gl models the rendering context shared by the live preview and the
// snapshot recorders: textures updated by a frame producer, off-screen
// surfaces to composite onto, and the 4x4 transforms applied while sampling.
//
// A Context is owned by the single rendering goroutine that produces frames.
// Other goroutines gain access by capturing a Handle on the rendering
// goroutine and moving it across; a handle enforces that at most one surface
// is current at a time.
package gl

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// A Context owns the textures bound to a live preview session.
type Context struct {
	mu       sync.Mutex
	textures map[int]*Texture
	nextID   int
}

// NewContext creates an empty rendering context.
func NewContext() *Context {
	return &Context{textures: make(map[int]*Texture), nextID: 1}
}

// CreateTexture allocates a new texture and returns it. Texture ids start
// at 1 so that a zero id always means "no texture".
func (c *Context) CreateTexture() *Texture {
	c.mu.Lock()
	defer c.mu.Unlock()
	tex := &Texture{id: c.nextID}
	c.textures[tex.id] = tex
	c.nextID++
	return tex
}

// Texture looks up a texture by id.
func (c *Context) Texture(id int) (*Texture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tex, ok := c.textures[id]
	return tex, ok
}

// DeleteTexture releases the texture with the given id.
func (c *Context) DeleteTexture(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.textures, id)
}

// Handle captures a thread-transferable handle to this context. It must be
// called on the goroutine that currently owns the context (the rendering
// goroutine); the returned handle may then be moved to another goroutine and
// used to create surfaces sharing the context's textures. The origin
// goroutine must not touch the handle after the move.
func (c *Context) Handle() *Handle {
	return &Handle{ctx: c}
}

// A Handle is a capability to use a Context away from its owning goroutine.
// A handle allows at most one surface to be current at a time; making a
// second surface current before the first detaches is an error.
type Handle struct {
	ctx     *Context
	current atomic.Pointer[Surface]
	closed  atomic.Bool
}

// Texture looks up a texture in the shared context.
func (h *Handle) Texture(id int) (*Texture, bool) {
	return h.ctx.Texture(id)
}

// Close releases the handle. Any surface created from it must be released
// first.
func (h *Handle) Close() error {
	if h.current.Load() != nil {
		return errors.New("cannot close context handle while a surface is current")
	}
	h.closed.Store(true)
	return nil
}

func (h *Handle) makeCurrent(s *Surface) error {
	if h.closed.Load() {
		return errors.New("context handle is closed")
	}
	if !h.current.CompareAndSwap(nil, s) {
		return errors.New("another surface is already current on this context")
	}
	return nil
}

func (h *Handle) detach(s *Surface) {
	h.current.CompareAndSwap(s, nil)
}
