package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var face = basicfont.Face7x13

// textWidth returns the advance of s in pixels.
func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// textHeight is the line height of the label face.
func textHeight() int {
	return face.Metrics().Height.Ceil()
}

// drawText draws s with its baseline-left corner at (x, y).
func drawText(dst draw.Image, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawTextAligned draws s on baseline y, aligned at x according to loc:
// "left" starts at x, "right" ends at x, anything else centers on x.
func drawTextAligned(dst draw.Image, s string, x, y int, loc string, c color.Color) {
	switch loc {
	case "left":
	case "right":
		x -= textWidth(s)
	default:
		x -= textWidth(s) / 2
	}
	drawText(dst, s, x, y, c)
}

// drawTextVertical draws s rotated a quarter turn counter-clockwise,
// centered vertically on cy with its left edge at x.
func drawTextVertical(dst draw.Image, s string, x, cy int, c color.Color) {
	w, h := textWidth(s), textHeight()
	if w == 0 {
		return
	}
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	drawText(tmp, s, 0, face.Metrics().Ascent.Ceil(), c)

	top := cy - w/2
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			px := tmp.RGBAAt(tx, ty)
			if px.A == 0 {
				continue
			}
			dx, dy := x+ty, top+(w-1-tx)
			if !(image.Point{X: dx, Y: dy}).In(dst.Bounds()) {
				continue
			}
			blend(dst, dx, dy, px)
		}
	}
}

// blend composites the premultiplied color src over the pixel at (x, y).
func blend(dst draw.Image, x, y int, src color.RGBA) {
	draw.Draw(dst, image.Rect(x, y, x+1, y+1), image.NewUniform(src), image.Point{}, draw.Over)
}
