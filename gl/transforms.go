package gl

// CameraSnapshotTransform resolves the texture transform for a camera frame
// headed into a snapshot surface. Starting from the transform sampled off the
// surface texture it applies, in order: crop compensation (translate by
// (1-scale)/2 then scale, with the axes swapped when the view and sensor
// axes are), a recenter, the given rotation around the center, a horizontal
// mirror when the active camera faces the user, and the recenter back.
//
// Callers bake the output rotation in here and must zero their result's
// rotation field so downstream consumers do not apply it twice.
func CameraSnapshotTransform(m Mat4, scaleX, scaleY float32, flip bool, rotation int, mirror bool) Mat4 {
	realScaleX, realScaleY := scaleX, scaleY
	if flip {
		realScaleX, realScaleY = scaleY, scaleX
	}
	m = m.Translate((1-realScaleX)/2, (1-realScaleY)/2, 0)
	m = m.Scale(realScaleX, realScaleY, 1)
	m = m.Translate(0.5, 0.5, 0)
	m = m.RotateZ(float32(rotation))
	if mirror {
		m = m.Scale(-1, 1, 1)
	}
	m = m.Translate(-0.5, -0.5, 0)
	return m
}

// OverlaySnapshotTransform resolves the texture transform for an overlay
// texture. Overlays are not sensor derived so they are never mirrored
// horizontally, but they are always flipped vertically: canvas backed
// surfaces publish their buffers with a bottom-left origin and the flip
// restores the drawing orientation.
func OverlaySnapshotTransform(m Mat4, rotation int) Mat4 {
	m = m.Translate(0.5, 0.5, 0)
	m = m.RotateZ(float32(rotation))
	m = m.Scale(1, -1, 1)
	m = m.Translate(-0.5, -0.5, 0)
	return m
}
