package gl

import "math"

// A Mat4 is a column-major 4x4 texture transform matrix. It maps raw sampled
// texture coordinates to corrected (scaled, rotated, cropped, mirrored)
// coordinates. Element (row, col) lives at index col*4+row.
type Mat4 [16]float32

// Identity returns the identity transform.
func Identity() Mat4 {
	var m Mat4
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
	return m
}

// Mul returns m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Translate post-multiplies a translation, matching the semantics of a GL
// matrix stack: the translation applies to coordinates before m does.
func (m Mat4) Translate(x, y, z float32) Mat4 {
	t := Identity()
	t[12], t[13], t[14] = x, y, z
	return m.Mul(t)
}

// Scale post-multiplies a scale.
func (m Mat4) Scale(x, y, z float32) Mat4 {
	s := Identity()
	s[0], s[5], s[10] = x, y, z
	return m.Mul(s)
}

// RotateZ post-multiplies a rotation of the given degrees around the z axis.
func (m Mat4) RotateZ(degrees float32) Mat4 {
	rad := float64(degrees) * math.Pi / 180
	sin, cos := float32(math.Sin(rad)), float32(math.Cos(rad))
	r := Identity()
	r[0], r[1] = cos, sin
	r[4], r[5] = -sin, cos
	return m.Mul(r)
}

// Apply transforms the texture coordinate (x, y, 0, 1) and returns the
// resulting x and y.
func (m Mat4) Apply(x, y float32) (float32, float32) {
	return m[0]*x + m[4]*y + m[12], m[1]*x + m[5]*y + m[13]
}
