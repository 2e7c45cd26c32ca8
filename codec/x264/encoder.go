// Package x264 provides the H.264 codec session used by default for video
// snapshots.
package x264

import (
	"image"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/x264"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"

	"github.com/edaniels/gosnap/encoding"
)

type session struct {
	codec  codec.ReadCloser
	img    image.Image
	logger golog.Logger
}

// NewCodec builds an H.264 encode session for the given texture encoder
// configuration. It satisfies encoding.VideoCodecBuilder.
func NewCodec(cfg encoding.TextureConfig, logger golog.Logger) (encoding.VideoCodec, error) {
	if cfg.MimeType != encoding.MimeTypeH264 {
		return nil, errors.Errorf("no encoder session available for mime type %q", cfg.MimeType)
	}
	s := &session{logger: logger}

	var builder codec.VideoEncoderBuilder
	params, err := x264.NewParams()
	if err != nil {
		return nil, err
	}
	builder = &params
	params.BitRate = cfg.BitRate
	params.KeyFrameInterval = cfg.FrameRate

	enc, err := builder.BuildVideoEncoder(s, prop.Media{
		Video: prop.Video{
			Width:  cfg.Width,
			Height: cfg.Height,
		},
	})
	if err != nil {
		return nil, err
	}
	s.codec = enc

	return s, nil
}

func (s *session) Read() (img image.Image, release func(), err error) {
	return s.img, nil, nil
}

func (s *session) Encode(img image.Image) ([]byte, error) {
	s.img = img
	data, release, err := s.codec.Read()
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	release()
	return dataCopy, err
}

func (s *session) Close() error {
	return s.codec.Close()
}
