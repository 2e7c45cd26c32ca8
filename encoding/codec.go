package encoding

import (
	"image"

	"github.com/edaniels/golog"
)

// A VideoCodec is a single video encode session: frames in, compressed
// bytes out.
type VideoCodec interface {
	Encode(img image.Image) ([]byte, error)
	Close() error
}

// A VideoCodecBuilder constructs a codec session for a texture encoder
// configuration. Builders must reject MIME types they cannot serve.
type VideoCodecBuilder func(cfg TextureConfig, logger golog.Logger) (VideoCodec, error)

// An AudioEncoder holds the configuration of an audio encoder session.
// Audio capture itself is handled by an external collaborator; the engine
// only carries the session parameters.
type AudioEncoder struct {
	cfg AudioConfig
}

// NewAudioEncoder creates an audio encoder for the given configuration.
func NewAudioEncoder(cfg AudioConfig) *AudioEncoder {
	return &AudioEncoder{cfg: cfg}
}

// Config returns the session configuration.
func (a *AudioEncoder) Config() AudioConfig {
	return a.cfg
}
