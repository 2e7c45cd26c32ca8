package gosnap

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/edaniels/gosnap/encoding"
	"github.com/edaniels/gosnap/overlay"
)

func startedVideoRecorder(
	t *testing.T,
	result *VideoResult,
) (*SnapshotVideoRecorder, *videoListener, *codecRecorder, chan<- struct{}, func()) {
	t.Helper()
	prev, imgs := newTestPreview(t, result.Size.Width, result.Size.Height)
	listener := newVideoListener()
	builder := &codecRecorder{}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, nil, 0, golog.NewTestLogger(t))

	frame := solidImage(result.Size.Width, result.Size.Height, color.NRGBA{R: 0xFF, A: 0xFF})
	frames := make(chan struct{})
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-frames:
				pushFrame(t, imgs, frame)
			}
		}
	}()
	rec.Start()
	return rec, listener, builder, frames, func() { close(done) }
}

func TestVideoSnapshotDefaultsAndLifecycle(t *testing.T) {
	sink := &memorySink{}
	result := &VideoResult{
		Size:     Size{Width: 1281, Height: 720},
		Rotation: 90,
		Sink:     sink,
	}
	rec, listener, builder, frames, stopFrames := startedVideoRecorder(t, result)
	defer stopFrames()

	frames <- struct{}{}
	recvSignal(t, listener.startCh, "recording start")

	cfg := builder.lastConfig(t)
	// width rounded up to even, height untouched
	test.That(t, cfg.Width, test.ShouldEqual, 1282)
	test.That(t, cfg.Height, test.ShouldEqual, 720)
	test.That(t, cfg.FrameRate, test.ShouldEqual, 30)
	test.That(t, cfg.BitRate, test.ShouldEqual, int(0.07*float32(1281)*float32(720)*float32(30)))
	test.That(t, cfg.MimeType, test.ShouldEqual, encoding.MimeTypeH264)
	// rotation baked into the config, then zeroed on the result
	test.That(t, cfg.Rotation, test.ShouldEqual, 90)
	test.That(t, result.Rotation, test.ShouldEqual, 0)
	test.That(t, result.AudioBitRate, test.ShouldEqual, 64000)

	frames <- struct{}{}
	// wait for the engine worker to drain at least one frame to the sink
	deadline := time.Now().Add(5 * time.Second)
	for sink.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for encoded bytes")
		}
		time.Sleep(time.Millisecond)
	}
	rec.Stop()
	// the stop request is observed at the next produced frame, not sooner
	frames <- struct{}{}
	recvSignal(t, listener.endCh, "recording end")
	out := recvVideoOutcome(t, listener)
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, out.result, test.ShouldNotBeNil)
	test.That(t, out.result.EndReason, test.ShouldEqual, EndReasonUserRequested)
	test.That(t, sink.Len(), test.ShouldBeGreaterThan, 0)

	// idempotent reset of both flags
	test.That(t, rec.current.Load(), test.ShouldEqual, stateNotRecording)
	test.That(t, rec.desired.Load(), test.ShouldEqual, stateNotRecording)
	test.That(t, listener.dispatchCount(), test.ShouldEqual, 1)
}

func TestVideoSnapshotCodecMapping(t *testing.T) {
	for _, tc := range []struct {
		codec    VideoCodec
		mimeType string
	}{
		{CodecH263, encoding.MimeTypeH263},
		{CodecH264, encoding.MimeTypeH264},
		{CodecDeviceDefault, encoding.MimeTypeH264},
	} {
		result := &VideoResult{
			Size:  Size{Width: 64, Height: 48},
			Codec: tc.codec,
			Sink:  &memorySink{},
		}
		rec, listener, builder, frames, stopFrames := startedVideoRecorder(t, result)

		frames <- struct{}{}
		recvSignal(t, listener.startCh, "recording start")
		test.That(t, builder.lastConfig(t).MimeType, test.ShouldEqual, tc.mimeType)

		rec.Stop()
		frames <- struct{}{}
		recvVideoOutcome(t, listener)
		stopFrames()
	}
}

func TestVideoSnapshotAudioModes(t *testing.T) {
	for _, tc := range []struct {
		audio    AudioMode
		channels int
	}{
		{AudioMono, 1},
		{AudioStereo, 2},
		{AudioOn, 1},
	} {
		result := &VideoResult{
			Size:  Size{Width: 64, Height: 48},
			Audio: tc.audio,
			Sink:  &memorySink{},
		}
		rec, listener, _, frames, stopFrames := startedVideoRecorder(t, result)

		frames <- struct{}{}
		recvSignal(t, listener.startCh, "recording start")
		engine := rec.engine.Load()
		test.That(t, engine, test.ShouldNotBeNil)
		audioCfg := engine.AudioEncoder().Config()
		test.That(t, audioCfg.Channels, test.ShouldEqual, tc.channels)
		test.That(t, audioCfg.BitRate, test.ShouldEqual, 64000)

		rec.Stop()
		frames <- struct{}{}
		recvVideoOutcome(t, listener)
		stopFrames()
	}
}

func TestVideoSnapshotWithOverlay(t *testing.T) {
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{}
	ovl := &stampOverlay{targets: map[overlay.Target]bool{overlay.VideoSnapshot: true}}
	result := &VideoResult{Size: Size{Width: 64, Height: 48}, Sink: &memorySink{}}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, ovl, 180, golog.NewTestLogger(t))
	rec.Start()

	frame := solidImage(64, 48, color.NRGBA{R: 0xFF, A: 0xFF})
	pushFrame(t, imgs, frame)
	recvSignal(t, listener.startCh, "recording start")

	cfg := builder.lastConfig(t)
	test.That(t, cfg.HasOverlay(), test.ShouldBeTrue)
	test.That(t, cfg.OverlayTextureID, test.ShouldNotEqual, 0)
	test.That(t, cfg.OverlayRotation, test.ShouldEqual, 180)
	waitForCount(t, ovl.callCount, 1)

	pushFrame(t, imgs, frame)
	waitForCount(t, ovl.callCount, 2)

	rec.Stop()
	pushFrame(t, imgs, frame)
	out := recvVideoOutcome(t, listener)
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, out.result, test.ShouldNotBeNil)
	// the overlay is drawn once per recorded frame, the stop frame included
	test.That(t, ovl.callCount(), test.ShouldEqual, 3)
}

func TestVideoSnapshotOverlayDrawFailureKeepsRecording(t *testing.T) {
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{}
	ovl := &stampOverlay{
		targets: map[overlay.Target]bool{overlay.VideoSnapshot: true},
		err:     errors.New("out of resources"),
	}
	sink := &memorySink{}
	result := &VideoResult{Size: Size{Width: 64, Height: 48}, Sink: sink}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, ovl, 0, golog.NewTestLogger(t))
	rec.Start()

	frame := solidImage(64, 48, color.NRGBA{R: 0xFF, A: 0xFF})
	pushFrame(t, imgs, frame)
	recvSignal(t, listener.startCh, "recording start")
	deadline := time.Now().Add(5 * time.Second)
	for sink.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for encoded bytes")
		}
		time.Sleep(time.Millisecond)
	}

	rec.Stop()
	pushFrame(t, imgs, frame)
	out := recvVideoOutcome(t, listener)
	// the failing overlay costs only its own frames, never the recording
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, out.result, test.ShouldNotBeNil)
	test.That(t, ovl.callCount(), test.ShouldBeGreaterThan, 0)
}

func TestVideoSnapshotOverlayMaxSize(t *testing.T) {
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{encodeLen: 100}
	ovl := &stampOverlay{targets: map[overlay.Target]bool{overlay.VideoSnapshot: true}}
	result := &VideoResult{
		Size:    Size{Width: 64, Height: 48},
		MaxSize: 150,
		Sink:    &memorySink{},
	}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, ovl, 0, golog.NewTestLogger(t))
	rec.Start()

	frame := solidImage(64, 48, color.NRGBA{A: 0xFF})
	pushFrame(t, imgs, frame)
	recvSignal(t, listener.startCh, "recording start")
	// keep rendering while the engine self-stops on its worker goroutine;
	// overlay draws racing the teardown must not crash the rendering loop
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case imgs <- frame:
			case <-time.After(5 * time.Second):
				return
			}
		}
	}()
	out := recvVideoOutcome(t, listener)
	close(done)
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, out.result, test.ShouldNotBeNil)
	test.That(t, out.result.EndReason, test.ShouldEqual, EndReasonMaxSizeReached)
}

func TestVideoSnapshotStopBeforeStart(t *testing.T) {
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{}
	result := &VideoResult{Size: Size{Width: 64, Height: 48}, Sink: &memorySink{}}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, nil, 0, golog.NewTestLogger(t))

	rec.Stop()
	frame := solidImage(64, 48, color.NRGBA{A: 0xFF})
	pushFrame(t, imgs, frame)
	pushFrame(t, imgs, frame)
	time.Sleep(50 * time.Millisecond)
	test.That(t, builder.builds(), test.ShouldEqual, 0)
	test.That(t, listener.dispatchCount(), test.ShouldEqual, 0)
}

func TestVideoSnapshotEncoderError(t *testing.T) {
	errBuild := errors.New("whoops")
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{buildErr: errBuild}
	result := &VideoResult{Size: Size{Width: 64, Height: 48}, Sink: &memorySink{}}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, nil, 0, golog.NewTestLogger(t))

	rec.Start()
	pushFrame(t, imgs, solidImage(64, 48, color.NRGBA{A: 0xFF}))
	out := recvVideoOutcome(t, listener)
	// the error discards the result entirely
	test.That(t, out.result, test.ShouldBeNil)
	test.That(t, out.err, test.ShouldNotBeNil)
	test.That(t, rec.current.Load(), test.ShouldEqual, stateNotRecording)
	test.That(t, rec.desired.Load(), test.ShouldEqual, stateNotRecording)
	test.That(t, listener.dispatchCount(), test.ShouldEqual, 1)
}

func TestVideoSnapshotMaxSize(t *testing.T) {
	result := &VideoResult{
		Size:    Size{Width: 64, Height: 48},
		MaxSize: 150,
		Sink:    &memorySink{},
	}
	prev, imgs := newTestPreview(t, 64, 48)
	listener := newVideoListener()
	builder := &codecRecorder{encodeLen: 100}
	rec := NewSnapshotVideoRecorder(
		result, listener, prev, builder.build, nil, 0, golog.NewTestLogger(t))
	rec.Start()

	frame := solidImage(64, 48, color.NRGBA{A: 0xFF})
	pushFrame(t, imgs, frame)
	recvSignal(t, listener.startCh, "recording start")
	// keep producing until the size limit trips the engine
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case imgs <- frame:
			case <-time.After(5 * time.Second):
				return
			}
		}
	}()
	out := recvVideoOutcome(t, listener)
	close(done)
	test.That(t, out.err, test.ShouldBeNil)
	test.That(t, out.result, test.ShouldNotBeNil)
	test.That(t, out.result.EndReason, test.ShouldEqual, EndReasonMaxSizeReached)
}
