// Package preview runs the rendering loop for a live camera preview: it
// pulls images from a source, publishes them into the camera surface
// texture, and fans each rendered frame out to registered observers.
//
// Observers are invoked strictly on the rendering goroutine, in registration
// order, once per produced frame. That goroutine is the only place the
// rendering context may be captured and the only place snapshot pipelines
// may flip their active state.
package preview

import (
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/edaniels/gosnap/gl"
)

// An ImageSource produces images representing the live camera. The returned
// release function, if any, is called once the image has been published.
type ImageSource interface {
	Read(ctx context.Context) (image.Image, func(), error)
}

// A FrameObserver is notified on the rendering goroutine about the camera
// texture and every rendered frame. OnFrame borrows the surface texture for
// the duration of the call; it must not be retained.
type FrameObserver interface {
	OnTextureCreated(textureID int)
	OnFrame(tex *gl.SurfaceTexture, scaleX, scaleY float32)
}

// Config describes a preview session.
type Config struct {
	Source ImageSource
	// StreamWidth/StreamHeight is the native size of produced frames.
	StreamWidth  int
	StreamHeight int
	// ViewWidth/ViewHeight is the size of the view the preview fills; the
	// mismatch between the two aspect ratios determines the crop scales
	// passed to observers.
	ViewWidth  int
	ViewHeight int
	Logger     golog.Logger
}

type observerEntry struct {
	observer FrameObserver
	notified bool
}

// A Preview owns the rendering goroutine and the rendering context for one
// live preview session.
type Preview struct {
	cfg       Config
	glContext *gl.Context
	camera    *gl.SurfaceTexture
	textureID int
	scaleX    float32
	scaleY    float32
	logger    golog.Logger

	mu        sync.Mutex
	observers []*observerEntry

	startOnce               sync.Once
	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// New creates a preview session and its rendering context, including the
// camera texture frames are rendered into.
func New(cfg Config) (*Preview, error) {
	if cfg.Source == nil {
		return nil, errors.New("a preview needs an image source")
	}
	if cfg.StreamWidth <= 0 || cfg.StreamHeight <= 0 {
		return nil, errors.Errorf("invalid stream size %dx%d", cfg.StreamWidth, cfg.StreamHeight)
	}
	if cfg.ViewWidth <= 0 || cfg.ViewHeight <= 0 {
		cfg.ViewWidth, cfg.ViewHeight = cfg.StreamWidth, cfg.StreamHeight
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.Global().Named("preview")
	}
	glContext := gl.NewContext()
	tex := glContext.CreateTexture()
	camera := gl.NewSurfaceTexture(glContext, tex.ID(), false)
	camera.SetDefaultBufferSize(cfg.StreamWidth, cfg.StreamHeight)

	scaleX, scaleY := cropScales(
		float64(cfg.StreamWidth)/float64(cfg.StreamHeight),
		float64(cfg.ViewWidth)/float64(cfg.ViewHeight),
	)

	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Preview{
		cfg:       cfg,
		glContext: glContext,
		camera:    camera,
		textureID: tex.ID(),
		scaleX:    scaleX,
		scaleY:    scaleY,
		logger:    cfg.Logger,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}, nil
}

// cropScales returns the fraction of the stream visible on each axis when
// the stream is center-cropped to fill the view.
func cropScales(streamRatio, viewRatio float64) (float32, float32) {
	if streamRatio > viewRatio {
		return float32(viewRatio / streamRatio), 1
	}
	return 1, float32(streamRatio / viewRatio)
}

// GLContext returns the rendering context owned by this preview's rendering
// goroutine.
func (p *Preview) GLContext() *gl.Context {
	return p.glContext
}

// CameraTextureID returns the id of the texture live frames render into.
func (p *Preview) CameraTextureID() int {
	return p.textureID
}

// StreamSize returns the native size of produced frames.
func (p *Preview) StreamSize() (int, int) {
	return p.cfg.StreamWidth, p.cfg.StreamHeight
}

// AddFrameObserver registers an observer. Its OnTextureCreated fires on the
// rendering goroutine before its first OnFrame.
func (p *Preview) AddFrameObserver(o FrameObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, &observerEntry{observer: o})
}

// RemoveFrameObserver deregisters an observer. It may be called from any
// goroutine, including from inside the observer's own OnFrame.
func (p *Preview) RemoveFrameObserver(o FrameObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.observers {
		if entry.observer == o {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}

// Start begins the rendering loop.
func (p *Preview) Start() {
	p.startOnce.Do(func() {
		p.activeBackgroundWorkers.Add(1)
		utils.ManagedGo(p.renderLoop, p.activeBackgroundWorkers.Done)
	})
}

// Stop halts the rendering loop and waits for it to exit. A pending stop
// request on an attached recorder that has not yet been observed will never
// be fulfilled once frame production ends.
func (p *Preview) Stop() {
	p.cancel()
	p.activeBackgroundWorkers.Wait()
}

func (p *Preview) renderLoop() {
	errorCount := 0
	for {
		select {
		case <-p.cancelCtx.Done():
			return
		default:
		}
		img, release, err := p.cfg.Source.Read(p.cancelCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Debugw("error reading frame", "error", err)
			errorCount++
			backoff := time.Duration(math.Min(math.Pow(6, float64(errorCount))*1e6, 2e9))
			select {
			case <-p.cancelCtx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		errorCount = 0
		if img == nil {
			continue
		}
		p.camera.Publish(img, time.Now().UnixNano())
		p.camera.UpdateTexImage()
		if release != nil {
			release()
		}
		p.dispatchFrame()
	}
}

// dispatchFrame invokes observers in registration order. The snapshot taken
// under the lock lets an observer deregister itself mid-dispatch.
func (p *Preview) dispatchFrame() {
	p.mu.Lock()
	entries := make([]*observerEntry, len(p.observers))
	copy(entries, p.observers)
	p.mu.Unlock()
	for _, entry := range entries {
		if !entry.notified {
			entry.notified = true
			entry.observer.OnTextureCreated(p.textureID)
		}
		entry.observer.OnFrame(p.camera, p.scaleX, p.scaleY)
	}
}
