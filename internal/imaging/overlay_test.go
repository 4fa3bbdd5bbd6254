package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

func decodeResult(t *testing.T, e *EncodedImage) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(e.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to decode png: %v", err)
	}
	return img
}

func rgb8(c color.Color) [3]uint8 {
	r, g, b, _ := c.RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func TestEncodePNG(t *testing.T) {
	img := createPatternImage(100, 50)

	full, err := EncodePNG(img, 0)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if full.Width != 100 || full.Height != 50 || full.MimeType != "image/png" {
		t.Errorf("got %dx%d %s, want 100x50 image/png", full.Width, full.Height, full.MimeType)
	}
	if rgb8(decodeResult(t, full).At(99, 49)) != [3]uint8{255, 255, 255} {
		t.Error("bottom-right pixel should be white")
	}

	small, err := EncodePNG(img, 40)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if small.Width != 40 || small.Height != 20 {
		t.Errorf("fitted dimensions: got %dx%d, want 40x20", small.Width, small.Height)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	img := createPatternImage(12, 8)

	for _, name := range []string{"a.png", "b.jpg", "nested/c.bmp"} {
		path := filepath.Join(dir, name)
		if err := Save(path, img); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
		cache := NewImageCache()
		dims, err := GetDimensions(cache, path)
		if err != nil {
			t.Fatalf("reload %s: %v", name, err)
		}
		if dims.Width != 12 || dims.Height != 8 {
			t.Errorf("%s: got %dx%d, want 12x8", name, dims.Width, dims.Height)
		}
	}

	if err := Save(filepath.Join(dir, "d.xyz"), img); err == nil {
		t.Error("Save should reject unknown extensions")
	}
	if _, err := os.Stat(filepath.Join(dir, "d.xyz")); err == nil {
		t.Error("rejected save should not create a file")
	}
}

func TestTileOverlay(t *testing.T) {
	img := createInMemoryImage(100, 60, color.RGBA{0, 0, 0, 255})
	rects := []tiling.Rect{
		{X: 0, Y: 0, W: 60, H: 60},
		{X: 50, Y: 0, W: 50, H: 60},
	}

	result, err := TileOverlay(img, rects, false, "#00FF00", 0)
	if err != nil {
		t.Fatalf("TileOverlay failed: %v", err)
	}
	if result.TileCount != 2 || result.Width != 100 || result.Height != 60 {
		t.Errorf("got %d tiles %dx%d, want 2 tiles 100x60", result.TileCount, result.Width, result.Height)
	}

	out := decodeResult(t, &result.EncodedImage)
	green := [3]uint8{0, 255, 0}
	for _, p := range []image.Point{{0, 30}, {59, 30}, {50, 30}, {99, 30}, {25, 0}, {25, 59}} {
		if got := rgb8(out.At(p.X, p.Y)); got != green {
			t.Errorf("outline at %v: got %v, want green", p, got)
		}
	}
	if got := rgb8(out.At(25, 30)); got != [3]uint8{0, 0, 0} {
		t.Errorf("interior at (25,30): got %v, want black", got)
	}
}

func TestTileOverlay_ClipsAndLabels(t *testing.T) {
	img := createInMemoryImage(40, 40, color.RGBA{128, 128, 128, 255})
	rects := []tiling.Rect{{X: -8, Y: -8, W: 32, H: 32}, {X: 16, Y: 16, W: 32, H: 32}}

	result, err := TileOverlay(img, rects, true, "not-a-color", 0)
	if err != nil {
		t.Fatalf("TileOverlay failed: %v", err)
	}
	out := decodeResult(t, &result.EncodedImage)

	// Invalid colors fall back to red.
	if got := rgb8(out.At(23, 10)); got != [3]uint8{255, 0, 0} {
		t.Errorf("outline at (23,10): got %v, want red", got)
	}

	// Label "1" on a dark box starting at (18,18).
	var hasWhite bool
	for y := 18; y < 25; y++ {
		for x := 18; x < 22; x++ {
			if rgb8(out.At(x, y)) == [3]uint8{255, 255, 255} {
				hasWhite = true
			}
		}
	}
	if !hasWhite {
		t.Error("label should have white pixels")
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		hex     string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF0000", color.RGBA{255, 0, 0, 255}, false},
		{"00FF00", color.RGBA{0, 255, 0, 255}, false},
		{"#FF000080", color.RGBA{255, 0, 0, 128}, false},
		{"", color.RGBA{}, true},
		{"#FFF", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			c, err := parseHexColor(tt.hex)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c != tt.want {
				t.Errorf("got %v, want %v", c, tt.want)
			}
		})
	}
}

func TestDrawLabel_BoundsCheck(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}

	// None of these may panic.
	drawLabel(img, 15, 15, "1024", fg, bg)
	drawLabel(img, -5, -5, "7", fg, bg)
	drawLabel(img, 2, 2, "", fg, bg)
	drawLabel(img, 2, 2, "a1", fg, bg)
}
