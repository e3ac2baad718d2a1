package hw

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// LCD is the physical display framebuffer: a single-writer RGBA surface
// the UI arbiter draws into and that is also exported as a PNG topic
// (spec.md §4.4, "/v1/tac/display/content"). There is no third-party
// imaging dependency anywhere in the example pack this daemon was built
// against, so encoding uses the standard library's image/png directly
// rather than reaching for an ungrounded one.
type LCD struct {
	Width, Height int
	img           *image.RGBA
	inverted      bool
}

// NewLCD allocates a blank (all-black) framebuffer of the given size.
func NewLCD(width, height int) *LCD {
	return &LCD{
		Width:  width,
		Height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Clear fills the framebuffer with c.
func (l *LCD) Clear(c color.Color) {
	draw.Draw(l.img, l.img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// FillRect draws a solid rectangle, used by the UI arbiter to lay out
// screen regions (header bar, alert banner, content area) without
// needing a font or vector-graphics library.
func (l *LCD) FillRect(x, y, w, h int, c color.Color) {
	rect := image.Rect(x, y, x+w, y+h).Intersect(l.img.Bounds())
	draw.Draw(l.img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// SetInverted flips the rendered output for the locator feature's
// invert/pulse behavior (spec.md §4.4).
func (l *LCD) SetInverted(inverted bool) {
	l.inverted = inverted
}

// Inverted reports the current invert state.
func (l *LCD) Inverted() bool {
	return l.inverted
}

// PNG encodes the current framebuffer (applying the invert flag) as a
// PNG image, the wire format for /v1/tac/display/content.
func (l *LCD) PNG() ([]byte, error) {
	src := image.Image(l.img)
	if l.inverted {
		inv := image.NewRGBA(l.img.Bounds())
		b := l.img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bch, a := l.img.At(x, y).RGBA()
				inv.Set(x, y, color.RGBA{
					R: uint8(255 - r>>8),
					G: uint8(255 - g>>8),
					B: uint8(255 - bch>>8),
					A: uint8(a >> 8),
				})
			}
		}
		src = inv
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
