package tiling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightMapRamps(t *testing.T) {
	w := NewWeightMap(Size{W: 4, H: 3}, Shape{Width: 16, Height: 12, Channels: 1})

	require.InDelta(t, 1.0/4, w.Top.At(5, 0, 0), 1e-12)
	require.InDelta(t, 3.0/4, w.Top.At(5, 2, 0), 1e-12)
	require.Equal(t, 1.0, w.Top.At(5, 3, 0))
	require.InDelta(t, 1.0/4, w.Bottom.At(0, 11, 0), 1e-12)
	require.Equal(t, 1.0, w.Bottom.At(0, 8, 0))

	require.InDelta(t, 1.0/5, w.Left.At(0, 7, 0), 1e-12)
	require.InDelta(t, 4.0/5, w.Left.At(3, 7, 0), 1e-12)
	require.Equal(t, 1.0, w.Left.At(4, 7, 0))
	require.InDelta(t, 1.0/5, w.Right.At(15, 7, 0), 1e-12)
}

func TestWeightMapPartition(t *testing.T) {
	for _, ov := range []int{1, 2, 4, 8} {
		tile := Shape{Width: 32, Height: 32, Channels: 3}
		w := NewWeightMap(Size{W: ov, H: ov}, tile)
		for k := 0; k < ov; k++ {
			for c := 0; c < 3; c++ {
				// A tile's left/top band overlaps the last ov columns/rows of
				// its predecessor.
				require.InDelta(t, 1.0, w.Left.At(k, 5, c)+w.Right.At(tile.Width-ov+k, 5, c), 1e-12)
				require.InDelta(t, 1.0, w.Top.At(5, k, c)+w.Bottom.At(5, tile.Height-ov+k, c), 1e-12)
				require.InDelta(t, 1.0, w.Right.At(tile.Width-ov+k, 9, c)+w.Left.At(k, 9, c), 1e-12)
				require.InDelta(t, 1.0, w.Bottom.At(9, tile.Height-ov+k, c)+w.Top.At(9, k, c), 1e-12)
			}
		}
	}
}

func TestWeightMapZeroOverlap(t *testing.T) {
	w := NewWeightMap(Size{}, Shape{Width: 8, Height: 6, Channels: 2})
	for _, m := range []*Buffer{w.Top, w.Bottom, w.Left, w.Right} {
		for _, v := range m.Pix {
			require.Equal(t, 1.0, v)
		}
	}
}

func TestWeightMapApplyBySide(t *testing.T) {
	tile := Shape{Width: 8, Height: 8, Channels: 1}
	w := NewWeightMap(Size{W: 2, H: 2}, tile)
	canvas := Size{W: 20, H: 20}

	t.Run("top left corner fades right and bottom only", func(t *testing.T) {
		b := NewBuffer(8, 8, 1)
		b.Fill(1)
		w.Apply(b, Rect{X: 0, Y: 0, W: 8, H: 8}, canvas)
		require.Equal(t, 1.0, b.At(0, 0, 0))
		require.InDelta(t, 1.0/3, b.At(7, 0, 0), 1e-12)
		require.InDelta(t, 1.0/9, b.At(7, 7, 0), 1e-12)
	})

	t.Run("interior fades every side", func(t *testing.T) {
		b := NewBuffer(8, 8, 1)
		b.Fill(1)
		w.Apply(b, Rect{X: 6, Y: 6, W: 8, H: 8}, canvas)
		require.InDelta(t, 1.0/9, b.At(0, 0, 0), 1e-12)
		require.Equal(t, 1.0, b.At(3, 3, 0))
		require.InDelta(t, 1.0/9, b.At(7, 7, 0), 1e-12)
	})

	t.Run("clipped last tile keeps its far edge", func(t *testing.T) {
		b := NewBuffer(8, 8, 1)
		b.Fill(1)
		w.Apply(b, Rect{X: 12, Y: 12, W: 8, H: 8}, canvas)
		require.InDelta(t, 1.0/9, b.At(0, 0, 0), 1e-12)
		require.Equal(t, 1.0, b.At(7, 7, 0))
	})
}
