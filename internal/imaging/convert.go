package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// ChannelsFor returns the tile channel count used for img: 4 when the
// image carries transparency, 3 otherwise.
func ChannelsFor(img image.Image) int {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		if !opaque(img) {
			return 4
		}
	}
	return 3
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

// ToBuffer converts an image to a float buffer with values in [0,1].
//
// Supported channel counts are 1 (luminance), 3 (RGB) and 4 (RGBA, not
// premultiplied). Conversion goes through 16-bit color so 16-bit sources
// keep their precision.
func ToBuffer(img image.Image, channels int) (*tiling.Buffer, error) {
	if channels != 1 && channels != 3 && channels != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	bounds := img.Bounds()
	buf := tiling.NewBuffer(bounds.Dx(), bounds.Dy(), channels)
	const max16 = float64(0xffff)

	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			off := buf.Offset(x, y)
			if channels == 1 {
				g := color.Gray16Model.Convert(c).(color.Gray16)
				buf.Pix[off] = float64(g.Y) / max16
				continue
			}
			n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
			buf.Pix[off] = float64(n.R) / max16
			buf.Pix[off+1] = float64(n.G) / max16
			buf.Pix[off+2] = float64(n.B) / max16
			if channels == 4 {
				buf.Pix[off+3] = float64(n.A) / max16
			}
		}
	}
	return buf, nil
}

// ToNRGBA converts a buffer back to an 8-bit image. Values are scaled by
// 255, rounded and clamped to [0,255]; images without an alpha channel come
// out opaque.
func ToNRGBA(buf *tiling.Buffer) (*image.NRGBA, error) {
	if buf.Channels != 1 && buf.Channels != 3 && buf.Channels != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", buf.Channels)
	}
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			off := buf.Offset(x, y)
			d := img.PixOffset(x, y)
			switch buf.Channels {
			case 1:
				v := Quantize(buf.Pix[off])
				img.Pix[d], img.Pix[d+1], img.Pix[d+2], img.Pix[d+3] = v, v, v, 0xff
			case 3:
				img.Pix[d] = Quantize(buf.Pix[off])
				img.Pix[d+1] = Quantize(buf.Pix[off+1])
				img.Pix[d+2] = Quantize(buf.Pix[off+2])
				img.Pix[d+3] = 0xff
			case 4:
				img.Pix[d] = Quantize(buf.Pix[off])
				img.Pix[d+1] = Quantize(buf.Pix[off+1])
				img.Pix[d+2] = Quantize(buf.Pix[off+2])
				img.Pix[d+3] = Quantize(buf.Pix[off+3])
			}
		}
	}
	return img, nil
}

// Quantize maps a [0,1] value to an 8-bit component.
func Quantize(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(math.Max(0, math.Min(255, math.Round(v*255))))
}
