package gosnap

import "math"

// A Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Ratio returns the width to height ratio of this size.
func (s Size) Ratio() float64 {
	return float64(s.Width) / float64(s.Height)
}

// Flip returns a size with the dimensions swapped.
func (s Size) Flip() Size {
	return Size{Width: s.Height, Height: s.Width}
}

// An AspectRatio is a reduced width to height proportion, independent
// of any concrete size.
type AspectRatio struct {
	X int
	Y int
}

// Float returns the ratio as a floating point value.
func (a AspectRatio) Float() float64 {
	return float64(a.X) / float64(a.Y)
}

// CropToRatio center-crops the given size to the target aspect ratio,
// shrinking whichever dimension is in excess.
func CropToRatio(s Size, target AspectRatio) Size {
	if s.Width <= 0 || s.Height <= 0 {
		return s
	}
	if s.Ratio() > target.Float() {
		// too wide
		return Size{
			Width:  int(math.Round(float64(s.Height) * target.Float())),
			Height: s.Height,
		}
	}
	// too tall (or exact)
	return Size{
		Width:  s.Width,
		Height: int(math.Round(float64(s.Width) / target.Float())),
	}
}
