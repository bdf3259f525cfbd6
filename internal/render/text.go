package render

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var labelFace = basicfont.Face7x13

// Alignment of a text label relative to its anchor
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

func textWidth(s string) int {
	return font.MeasureString(labelFace, s).Ceil()
}

// drawText writes s with its baseline at y
func drawText(img *image.RGBA, x, y int, s string, c color.Color, align Alignment) {
	switch align {
	case AlignCenter:
		x -= textWidth(s) / 2
	case AlignRight:
		x -= textWidth(s)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: labelFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
