package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// TileOverlayResult is an image with tile outlines drawn over it.
type TileOverlayResult struct {
	EncodedImage
	TileCount int `json:"tile_count"`
}

// TileOverlay outlines every rectangle of a tile plan on img and, if
// showIndex is set, labels each tile with its index. Rectangles are in img
// pixel coordinates and may extend past the image.
func TileOverlay(img image.Image, rects []tiling.Rect, showIndex bool, lineColorHex string, maxSide int) (*TileOverlayResult, error) {
	lineColor, err := parseHexColor(lineColorHex)
	if err != nil {
		lineColor = color.RGBA{255, 0, 0, 255}
	}

	bounds := img.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	for _, r := range rects {
		drawOutline(result, r, lineColor)
	}

	if showIndex {
		labelColor := color.RGBA{255, 255, 255, 255}
		bgColor := color.RGBA{0, 0, 0, 180}
		for i, r := range rects {
			drawLabel(result, max(r.X, 0)+2, max(r.Y, 0)+2, strconv.Itoa(i), labelColor, bgColor)
		}
	}

	enc, err := EncodePNG(result, maxSide)
	if err != nil {
		return nil, err
	}
	return &TileOverlayResult{EncodedImage: *enc, TileCount: len(rects)}, nil
}

// drawOutline draws the one pixel border of r, clipped to img.
func drawOutline(img *image.RGBA, r tiling.Rect, c color.RGBA) {
	clip := img.Bounds()
	set := func(x, y int) {
		if image.Pt(x, y).In(clip) {
			img.SetRGBA(x, y, c)
		}
	}
	for x := r.X; x < r.Right(); x++ {
		set(x, r.Y)
		set(x, r.Bottom()-1)
	}
	for y := r.Y; y < r.Bottom(); y++ {
		set(r.X, y)
		set(r.Right()-1, y)
	}
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// Digit glyphs of a 3x5 pixel font.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
}

// drawLabel draws text on a background box with its top-left at (x, y).
// Characters without a glyph leave a blank cell.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	bounds := img.Bounds()
	const charWidth, labelHeight = 4, 7
	labelWidth := len(text) * charWidth

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if image.Pt(px, py).In(bounds) {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		for row, line := range glyphs[ch] {
			for col, pixel := range line {
				if pixel != '1' {
					continue
				}
				if p := image.Pt(cx+col, y+row); p.In(bounds) {
					img.Set(p.X, p.Y, fg)
				}
			}
		}
		cx += charWidth
	}
}
