package fetch

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
)

// DefaultMaxPixels keeps phone photos within what vision models accept.
const DefaultMaxPixels = 12_000_000

// Shrink re-encodes an image as JPEG when it has more than maxPixels pixels.
// Anything it cannot decode (PDF, HEIC) is returned untouched.
func Shrink(b []byte, maxPixels int, mime string) ([]byte, string) {
	if maxPixels <= 0 {
		return b, mime
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return b, mime
	}
	total := cfg.Width * cfg.Height
	if total <= maxPixels {
		return b, mime
	}
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return b, mime
	}
	scale := math.Sqrt(float64(maxPixels) / float64(total))
	newW := max(int(float64(cfg.Width)*scale+0.5), 1)
	newH := max(int(float64(cfg.Height)*scale+0.5), 1)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, scaleDownNN(src, newW, newH), &jpeg.Options{Quality: 90}); err != nil {
		return b, mime
	}
	return out.Bytes(), "image/jpeg"
}

func scaleDownNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	srcW := sb.Dx()
	srcH := sb.Dy()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*srcH)/newH
		for x := 0; x < newW; x++ {
			sx := sb.Min.X + (x*srcW)/newW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}
