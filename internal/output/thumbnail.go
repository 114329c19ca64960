package output

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FitSize scales w x h down to fit within maxW x maxH keeping the aspect
// ratio. A zero bound leaves that dimension unconstrained; images are never
// scaled up.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	sw, sh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	return max(sw, 1), max(sh, 1)
}

// Thumbnail returns src scaled to fit within maxW x maxH
func Thumbnail(src *image.RGBA, maxW, maxH int) *image.RGBA {
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

var (
	labelColor      = color.RGBA{255, 255, 255, 255}
	labelBackground = color.RGBA{0, 0, 0, 160}
)

const labelPadding = 3

// Label draws text on a translucent bar along the bottom edge of img,
// truncated to the image width
func Label(img *image.RGBA, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	b := img.Bounds()
	barHeight := face.Height + labelPadding*2
	if b.Dy() < barHeight {
		return
	}

	bar := image.Rect(b.Min.X, b.Max.Y-barHeight, b.Max.X, b.Max.Y)
	draw.Draw(img, bar, image.NewUniform(labelBackground), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(bar.Min.X+labelPadding, bar.Max.Y-labelPadding-face.Descent),
	}
	avail := fixed.I(b.Dx() - labelPadding*2)
	runes := []rune(text)
	for len(runes) > 0 && d.MeasureString(string(runes)) > avail {
		runes = runes[:len(runes)-1]
	}
	d.DrawString(string(runes))
}
