package gosnap

import (
	"io"
	"time"
)

// Facing identifies which way the active camera points.
type Facing int

const (
	// FacingBack is a camera facing away from the user.
	FacingBack Facing = iota
	// FacingFront is a camera facing the user. Front camera snapshots are
	// mirrored horizontally to match what the user sees in the preview.
	FacingFront
)

// AudioMode controls whether and how audio is requested for a video capture.
type AudioMode int

const (
	// AudioOff requests no audio.
	AudioOff AudioMode = iota
	// AudioOn requests audio with a device default channel layout.
	AudioOn
	// AudioMono requests single channel audio.
	AudioMono
	// AudioStereo requests two channel audio.
	AudioStereo
)

// VideoCodec selects the codec used for video snapshot encoding.
type VideoCodec int

const (
	// CodecDeviceDefault lets the device pick; it maps to H.264.
	CodecDeviceDefault VideoCodec = iota
	// CodecH263 requests H.263.
	CodecH263
	// CodecH264 requests H.264.
	CodecH264
)

// EndReason is the terminal cause of a video recording's stop.
type EndReason int

const (
	// EndReasonUserRequested means the recording stopped because the
	// caller asked it to.
	EndReasonUserRequested EndReason = iota
	// EndReasonMaxDurationReached means the duration limit stopped the
	// recording. This is a normal completion, not an error.
	EndReasonMaxDurationReached
	// EndReasonMaxSizeReached means the size limit stopped the recording.
	EndReasonMaxSizeReached
)

// A VideoResult describes a video snapshot request and, once the recording
// ends, its outcome. It is owned by the recorder until it is dispatched to
// the listener and must not be touched afterwards.
type VideoResult struct {
	Size           Size
	Rotation       int
	Facing         Facing
	Codec          VideoCodec
	VideoBitRate   int
	VideoFrameRate int
	Audio          AudioMode
	AudioBitRate   int
	MaxDuration    time.Duration
	MaxSize        int64

	// Sink receives the encoded stream. The engine closes it when
	// encoding ends.
	Sink io.WriteCloser

	// EndReason is populated when the recording completes without error.
	EndReason EndReason
}

// PictureFormat identifies the compression format of picture snapshot data.
type PictureFormat int

// FormatJPEG is the only picture snapshot format currently produced.
const FormatJPEG PictureFormat = iota

// A PictureResult describes a picture snapshot request and carries the
// compressed bytes once the capture completes.
type PictureResult struct {
	Size     Size
	Rotation int
	Facing   Facing
	Format   PictureFormat
	Data     []byte
}

// A VideoResultListener receives video recording lifecycle events and the
// final result. OnVideoResult is called exactly once per recording; on
// failure the result is nil and the error is set.
type VideoResultListener interface {
	OnVideoRecordingStart()
	OnVideoRecordingEnd()
	OnVideoResult(result *VideoResult, err error)
}

// A PictureResultListener receives the final outcome of a picture snapshot.
// It is called exactly once per Take; on failure the result is nil and the
// error is set.
type PictureResultListener interface {
	OnPictureResult(result *PictureResult, err error)
}
