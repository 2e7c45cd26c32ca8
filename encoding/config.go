// Package encoding implements the encoder engine driven by the video
// snapshot pipeline: a worker that pulls pooled frames, redraws the camera
// texture (plus overlay) through their transforms onto an engine owned
// surface, and feeds the result into a video codec session until stopped or
// until a duration/size limit trips.
package encoding

import (
	"github.com/edaniels/gosnap/gl"
)

// MIME identifiers for the codec sessions an engine may be asked to run.
const (
	MimeTypeH264 = "video/avc"
	MimeTypeH263 = "video/3gpp"
	MimeTypeAAC  = "audio/mp4a-latm"
)

// A TextureConfig describes a texture encoder session: where to sample
// (texture ids plus the context handle they live in), how to correct the
// samples (scale, rotation, mirroring), and how to encode them.
type TextureConfig struct {
	Width     int
	Height    int
	BitRate   int
	FrameRate int
	// Rotation is baked into the texture transform while encoding;
	// the capture result's own rotation field is zeroed in exchange.
	Rotation int
	MimeType string

	TextureID int
	ScaleX    float32
	ScaleY    float32
	// Mirror flips the camera texture horizontally (front facing cameras).
	Mirror bool

	// Context is the handle captured from the rendering goroutine. The
	// engine worker creates its drawing surface from it and owns it until
	// teardown.
	Context *gl.Handle

	OverlayTextureID int
	OverlayRotation  int
}

// HasOverlay reports whether an overlay texture participates in this session.
func (c TextureConfig) HasOverlay() bool {
	return c.OverlayTextureID != 0
}

// An AudioConfig describes an audio encoder session.
type AudioConfig struct {
	BitRate    int
	Channels   int
	SampleRate int
	MimeType   string
}

// NewAudioConfig returns an audio configuration with device defaults:
// single channel, 44.1kHz, AAC.
func NewAudioConfig() AudioConfig {
	return AudioConfig{
		Channels:   1,
		SampleRate: 44100,
		MimeType:   MimeTypeAAC,
	}
}
