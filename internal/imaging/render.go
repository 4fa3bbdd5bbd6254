package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// Render runs img through a configured session and returns the 8-bit
// result. The image is converted with the session's channel count. A
// transparent image rendered by an RGB session gets its alpha scaled to the
// output size and restored.
func Render(sess *tiling.Session, img image.Image) (*image.NRGBA, *tiling.RenderStats, error) {
	channels := sess.Config().InputTile.Channels
	buf, err := ToBuffer(img, channels)
	if err != nil {
		return nil, nil, err
	}
	canvas, stats, err := sess.Render(buf)
	if err != nil {
		return nil, nil, err
	}
	out, err := ToNRGBA(canvas)
	if err != nil {
		return nil, nil, fmt.Errorf("convert canvas: %w", err)
	}
	if channels != 4 && !opaque(img) {
		restoreAlpha(out, img)
	}
	return out, stats, nil
}

// restoreAlpha resizes the alpha channel of src to dst and writes it there.
func restoreAlpha(dst *image.NRGBA, src image.Image) {
	b := src.Bounds()
	alpha := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			alpha.Pix[alpha.PixOffset(x, y)] = uint8(a >> 8)
		}
	}
	scaled := imaging.Resize(alpha, dst.Bounds().Dx(), dst.Bounds().Dy(), imaging.Linear)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = scaled.Pix[i-3]
	}
}
