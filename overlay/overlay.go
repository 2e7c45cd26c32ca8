// Package overlay defines the caller supplied overlay capability and the
// compositor that turns overlay drawings into textures for snapshot capture.
package overlay

import (
	"github.com/gogpu/gg"
)

// Target distinguishes the composition sites an overlay can draw on.
type Target int

const (
	// PictureSnapshot is the one-shot still capture surface.
	PictureSnapshot Target = iota
	// VideoSnapshot is the per-frame video capture surface.
	VideoSnapshot
)

// String implements fmt.Stringer.
func (t Target) String() string {
	switch t {
	case PictureSnapshot:
		return "picture_snapshot"
	case VideoSnapshot:
		return "video_snapshot"
	}
	return "unknown"
}

// An Overlay draws a graphic over captured snapshots. Implementations are
// caller owned; the capture pipelines only ever invoke these two methods and
// never mutate the overlay.
type Overlay interface {
	// DrawsOn reports whether this overlay applies to the given target.
	DrawsOn(target Target) bool

	// DrawOn renders the overlay for the given target onto the canvas.
	// The canvas is cleared to fully transparent before each call.
	DrawOn(target Target, canvas *gg.Context) error
}
