// Package gosnap implements still and video snapshot capture from frames
// already rendered onto a live preview surface, rather than from a dedicated
// still/video capture session. Both recorders redraw the live camera texture,
// optionally composited with a caller supplied overlay, onto a surface they
// own: the picture recorder reads the result back as compressed bytes, the
// video recorder feeds it frame by frame into an encoder engine.
package gosnap

import (
	"github.com/edaniels/golog"
)

// Debug controls whether or not to print per-frame debug information.
var Debug = false

// Logger is the global logger to use by default for capture related
// activities.
var Logger = golog.Global().Named("gosnap")
