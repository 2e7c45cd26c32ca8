package gosnap

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"github.com/edaniels/gosnap/encoding"
	"github.com/edaniels/gosnap/preview"
)

// chanImageSource produces exactly the images a test pushes into it, so
// frame production is fully under test control.
type chanImageSource struct {
	imgs chan image.Image
}

func (s *chanImageSource) Read(ctx context.Context) (image.Image, func(), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case img := <-s.imgs:
		return img, func() {}, nil
	}
}

func newTestPreview(t *testing.T, width, height int) (*preview.Preview, chan image.Image) {
	t.Helper()
	imgs := make(chan image.Image)
	prev, err := preview.New(preview.Config{
		Source:       &chanImageSource{imgs: imgs},
		StreamWidth:  width,
		StreamHeight: height,
		Logger:       golog.NewTestLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	prev.Start()
	t.Cleanup(prev.Stop)
	return prev, imgs
}

func solidImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func pushFrame(t *testing.T, imgs chan image.Image, img image.Image) {
	t.Helper()
	select {
	case imgs <- img:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out pushing frame")
	}
}

// codecRecorder is an encoding.VideoCodecBuilder that records every
// configuration it is asked to build and returns canned sessions.
type codecRecorder struct {
	mu        sync.Mutex
	cfgs      []encoding.TextureConfig
	buildErr  error
	encodeLen int
}

func (cr *codecRecorder) build(cfg encoding.TextureConfig, _ golog.Logger) (encoding.VideoCodec, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.cfgs = append(cr.cfgs, cfg)
	if cr.buildErr != nil {
		return nil, cr.buildErr
	}
	return &fakeVideoCodec{encodeLen: cr.encodeLen}, nil
}

func (cr *codecRecorder) builds() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return len(cr.cfgs)
}

func (cr *codecRecorder) lastConfig(t *testing.T) encoding.TextureConfig {
	t.Helper()
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if len(cr.cfgs) == 0 {
		t.Fatal("no codec session was ever built")
	}
	return cr.cfgs[len(cr.cfgs)-1]
}

type fakeVideoCodec struct {
	encodeLen int
}

func (c *fakeVideoCodec) Encode(image.Image) ([]byte, error) {
	n := c.encodeLen
	if n == 0 {
		n = 16
	}
	return make([]byte, n), nil
}

func (c *fakeVideoCodec) Close() error {
	return nil
}

// memorySink collects encoded bytes in memory.
type memorySink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *memorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

type videoOutcome struct {
	result *VideoResult
	err    error
}

type videoListener struct {
	startCh    chan struct{}
	endCh      chan struct{}
	resultCh   chan videoOutcome
	mu         sync.Mutex
	dispatches int
}

func newVideoListener() *videoListener {
	return &videoListener{
		startCh:  make(chan struct{}, 4),
		endCh:    make(chan struct{}, 4),
		resultCh: make(chan videoOutcome, 4),
	}
}

func (l *videoListener) OnVideoRecordingStart() {
	l.startCh <- struct{}{}
}

func (l *videoListener) OnVideoRecordingEnd() {
	l.endCh <- struct{}{}
}

func (l *videoListener) OnVideoResult(result *VideoResult, err error) {
	l.mu.Lock()
	l.dispatches++
	l.mu.Unlock()
	l.resultCh <- videoOutcome{result: result, err: err}
}

func (l *videoListener) dispatchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatches
}

func waitForCount(t *testing.T, count func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for count to reach %d, at %d", want, count())
		}
		time.Sleep(time.Millisecond)
	}
}

func recvSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func recvVideoOutcome(t *testing.T, l *videoListener) videoOutcome {
	t.Helper()
	select {
	case out := <-l.resultCh:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for video result")
		return videoOutcome{}
	}
}

type pictureOutcome struct {
	result *PictureResult
	err    error
}

type pictureListener struct {
	resultCh   chan pictureOutcome
	mu         sync.Mutex
	dispatches int
}

func newPictureListener() *pictureListener {
	return &pictureListener{resultCh: make(chan pictureOutcome, 4)}
}

func (l *pictureListener) OnPictureResult(result *PictureResult, err error) {
	l.mu.Lock()
	l.dispatches++
	l.mu.Unlock()
	l.resultCh <- pictureOutcome{result: result, err: err}
}

func (l *pictureListener) dispatchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatches
}

func recvPictureOutcome(t *testing.T, l *pictureListener) pictureOutcome {
	t.Helper()
	select {
	case out := <-l.resultCh:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for picture result")
		return pictureOutcome{}
	}
}
