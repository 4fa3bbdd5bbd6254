package tiling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAugmentationInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	shapes := [][2]int{{1, 1}, {8, 8}, {7, 3}, {3, 11}}

	for _, aug := range Augmentations() {
		for _, sz := range shapes {
			src := randomBuffer(rng, sz[0], sz[1], 3)
			fwd := aug.Apply(src)
			if aug.SwapsAxes() {
				require.Equal(t, Size{W: sz[1], H: sz[0]}, fwd.Size(), aug.String())
			} else {
				require.Equal(t, src.Size(), fwd.Size(), aug.String())
			}
			back := aug.Reverse(fwd)
			require.Equal(t, src.Pix, back.Pix, "%s on %dx%d", aug, sz[0], sz[1])
		}
	}
}

func TestAugmentationDoesNotModifySource(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := randomBuffer(rng, 5, 4, 2)
	orig := src.Clone()
	for _, aug := range Augmentations() {
		out := aug.Apply(src)
		out.Fill(0)
		require.Equal(t, orig.Pix, src.Pix, aug.String())
	}
}

func TestAugmentationPixelPlacement(t *testing.T) {
	// 3x2 image:
	//   0 1 2
	//   3 4 5
	src := NewBuffer(3, 2, 1)
	for i := range src.Pix {
		src.Pix[i] = float64(i)
	}
	tests := []struct {
		aug  Augmentation
		w, h int
		want []float64
	}{
		{Identity, 3, 2, []float64{0, 1, 2, 3, 4, 5}},
		{FlipHorizontal, 3, 2, []float64{2, 1, 0, 5, 4, 3}},
		{FlipVertical, 3, 2, []float64{3, 4, 5, 0, 1, 2}},
		{Rotate90, 2, 3, []float64{3, 0, 4, 1, 5, 2}},
		{Rotate180, 3, 2, []float64{5, 4, 3, 2, 1, 0}},
		{Rotate270, 2, 3, []float64{2, 5, 1, 4, 0, 3}},
		{FlipHorizontalRotate90, 2, 3, []float64{5, 2, 4, 1, 3, 0}},
		{FlipVerticalRotate90, 2, 3, []float64{0, 3, 1, 4, 2, 5}},
	}
	for _, tc := range tests {
		t.Run(tc.aug.String(), func(t *testing.T) {
			got := tc.aug.Apply(src)
			require.Equal(t, tc.w, got.Width)
			require.Equal(t, tc.h, got.Height)
			require.Equal(t, tc.want, got.Pix)
		})
	}
}

func TestAugmentationString(t *testing.T) {
	require.Equal(t, "identity", Identity.String())
	require.Equal(t, "flip-vertical-rotate-90", FlipVerticalRotate90.String())
	require.Equal(t, "augmentation(9)", Augmentation(9).String())
	require.False(t, Augmentation(-1).Valid())
	require.Len(t, Augmentations(), TTASize)
}

func TestFitInto(t *testing.T) {
	src := NewBuffer(2, 3, 1)
	for i := range src.Pix {
		src.Pix[i] = float64(i + 1)
	}
	dst := NewBuffer(3, 2, 1)
	dst.Fill(9)
	fitInto(dst, src)
	require.Equal(t, []float64{1, 2, 0, 3, 4, 0}, dst.Pix)
}
