package backend

import (
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/image-upscale-mcp/internal/config"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

func TestPackUnpackNCHW(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	shape := tiling.Shape{Width: 5, Height: 3, Channels: 3}
	tiles := make([]*tiling.Buffer, 2)
	for i := range tiles {
		tiles[i] = tiling.NewBuffer(shape.Width, shape.Height, shape.Channels)
		for j := range tiles[i].Pix {
			// Exactly representable in float32.
			tiles[i].Pix[j] = float64(rng.Intn(256)) / 256
		}
	}

	data := make([]float32, 2*3*5*3)
	packNCHW(data, tiles, shape)

	// Channel 1 of tile 1 at (x=4, y=2).
	idx := ((1*3+1)*3+2)*5 + 4
	require.Equal(t, float32(tiles[1].At(4, 2, 1)), data[idx])

	back := unpackNCHW(data, 2, shape)
	for i := range tiles {
		require.Equal(t, tiles[i].Pix, back[i].Pix)
	}
}

func TestMatchDims(t *testing.T) {
	want := ort.NewShape(4, 3, 64, 64)
	require.NoError(t, matchDims("x", ort.NewShape(-1, 3, -1, -1), want))
	require.NoError(t, matchDims("x", ort.NewShape(4, 3, 64, 64), want))
	require.Error(t, matchDims("x", ort.NewShape(1, 3, 64, 64), want))
	require.Error(t, matchDims("x", ort.NewShape(-1, 1, -1, -1), want))
}

func TestNewONNXMissingModel(t *testing.T) {
	_, err := NewONNX(ONNXOptions{ModelPath: ""}, nil)
	require.Error(t, err)
	_, err = NewONNX(ONNXOptions{ModelPath: t.TempDir() + "/missing.onnx"}, nil)
	require.Error(t, err)
}

func TestResampleFilters(t *testing.T) {
	require.Equal(t, []string{"box", "catmullrom", "lanczos", "linear", "nearest"}, ResampleFilters())
	_, err := NewResample("bicubic", nil)
	require.Error(t, err)
}

func TestResampleConfigure(t *testing.T) {
	r, err := NewResample("linear", nil)
	require.NoError(t, err)
	require.NoError(t, r.Configure(tiling.Shape{Width: 8, Height: 8, Channels: 3}, tiling.Shape{Width: 16, Height: 16, Channels: 3}, 2))
	require.Error(t, r.Configure(tiling.Shape{Width: 8, Height: 8, Channels: 3}, tiling.Shape{Width: 16, Height: 16, Channels: 4}, 2))
	require.Error(t, r.Configure(tiling.Shape{Width: 8, Height: 8, Channels: 2}, tiling.Shape{Width: 16, Height: 16, Channels: 2}, 2))
	require.Error(t, r.Configure(tiling.Shape{Width: 8, Height: 8, Channels: 3}, tiling.Shape{Width: 16, Height: 16, Channels: 3}, 0))
}

func TestResampleNearestDoubles(t *testing.T) {
	r, err := NewResample("nearest", nil)
	require.NoError(t, err)
	in := tiling.Shape{Width: 4, Height: 4, Channels: 3}
	out := tiling.Shape{Width: 8, Height: 8, Channels: 3}
	require.NoError(t, r.Configure(in, out, 3))

	batch := make([]*tiling.Buffer, 3)
	for i := range batch {
		batch[i] = tiling.NewBuffer(4, 4, 3)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				batch[i].Set(x, y, 0, float64(x*60)/255)
				batch[i].Set(x, y, 1, float64(y*60)/255)
				batch[i].Set(x, y, 2, float64(i*100)/255)
			}
		}
	}

	got, err := r.RunBatch(batch)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, b := range got {
		require.Equal(t, 8, b.Width)
		require.Equal(t, 8, b.Height)
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				require.InDelta(t, batch[i].At(x/2, y/2, 0), b.At(x, y, 0), 1e-6)
				require.InDelta(t, batch[i].At(x/2, y/2, 1), b.At(x, y, 1), 1e-6)
				require.InDelta(t, float64(i*100)/255, b.At(x, y, 2), 1e-6)
			}
		}
	}

	_, err = r.RunBatch(batch[:2])
	require.Error(t, err)
}

func TestResampleDrivesSession(t *testing.T) {
	r, err := NewResample("nearest", nil)
	require.NoError(t, err)
	s, err := tiling.NewSession(r, tiling.Config{
		InputTile:  tiling.Shape{Width: 16, Height: 16, Channels: 3},
		OutputTile: tiling.Shape{Width: 32, Height: 32, Channels: 3},
		Scale:      tiling.Uniform(2),
		Overlap:    tiling.Uniform(1.0 / 8),
		BatchSize:  4,
	}, nil)
	require.NoError(t, err)

	input := tiling.NewBuffer(40, 30, 3)
	input.Fill(128.0 / 255)
	out, stats, err := s.Render(input)
	require.NoError(t, err)
	require.Equal(t, 80, out.Width)
	require.Equal(t, 60, out.Height)
	require.Positive(t, stats.BatchCount)
	for _, v := range out.Pix {
		require.InDelta(t, 128.0/255, v, 1e-6)
	}
}

func TestNew(t *testing.T) {
	opts := config.Defaults()
	opts.Backend = config.BackendResample
	opts.Filter = "box"
	b, err := New(opts, nil)
	require.NoError(t, err)
	require.IsType(t, &Resample{}, b)

	opts.Filter = "bicubic"
	b, err = New(opts, nil)
	require.Error(t, err)
	require.Nil(t, b)

	opts.Backend = config.BackendONNX
	opts.ModelDir = t.TempDir()
	b, err = New(opts, nil)
	require.Error(t, err)
	require.Nil(t, b)

	opts.Backend = "tpu"
	_, err = New(opts, nil)
	require.ErrorIs(t, err, config.ErrInvalidOptions)
}

func TestONNXOutputShapeFromModel(t *testing.T) {
	// A 2x model that trims eight output pixels from every side.
	o := &ONNX{
		log:        tiling.DiscardLogger(),
		inputName:  "x",
		outputName: "y",
		inputDims:  ort.NewShape(-1, 3, 256, 256),
		outputDims: ort.NewShape(-1, 3, 496, 496),
		shapes:     make(map[tiling.Shape]tiling.Shape),
	}

	out, err := o.OutputShape(tiling.Shape{Width: 256, Height: 256, Channels: 3})
	require.NoError(t, err)
	require.Equal(t, tiling.Shape{Width: 496, Height: 496, Channels: 3}, out)

	_, err = o.OutputShape(tiling.Shape{Width: 256, Height: 256, Channels: 4})
	require.Error(t, err)
	_, err = o.OutputShape(tiling.Shape{Width: 128, Height: 128, Channels: 3})
	require.Error(t, err)

	// The resolved shape is what Configure binds against.
	require.NoError(t, matchDims("y", o.outputDims, ort.NewShape(4, 3, 496, 496)))

	cfg, err := tiling.ResolveConfig(o, tiling.Config{
		InputTile:  tiling.Shape{Width: 256, Height: 256, Channels: 3},
		OutputTile: tiling.Shape{Width: 512, Height: 512, Channels: 3},
	})
	require.NoError(t, err)
	require.Equal(t, tiling.Shape{Width: 496, Height: 496, Channels: 3}, cfg.OutputTile)
}

func TestONNXOutputShapeCached(t *testing.T) {
	in := tiling.Shape{Width: 64, Height: 64, Channels: 3}
	o := &ONNX{
		log:        tiling.DiscardLogger(),
		inputDims:  ort.NewShape(-1, 3, -1, -1),
		outputDims: ort.NewShape(-1, 3, -1, -1),
		shapes:     map[tiling.Shape]tiling.Shape{in: {Width: 112, Height: 112, Channels: 3}},
	}
	out, err := o.OutputShape(in)
	require.NoError(t, err)
	require.Equal(t, 112, out.Width)
}

func TestInitializeEnvironmentOnce(t *testing.T) {
	origInit, origCheck, origLib := ortInitialize, ortIsInitialized, ortSetLibrary
	t.Cleanup(func() {
		ortInitialize, ortIsInitialized, ortSetLibrary = origInit, origCheck, origLib
	})

	var (
		started bool
		calls   int
		library string
	)
	ortIsInitialized = func() bool { return started }
	ortSetLibrary = func(path string) { library = path }
	ortInitialize = func() error {
		calls++
		if started {
			return errors.New("already initialized")
		}
		started = true
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = initializeEnvironment("/opt/onnxruntime.so")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, calls)
	require.Equal(t, "/opt/onnxruntime.so", library)
}

func TestInitializeEnvironmentRetriesAfterFailure(t *testing.T) {
	origInit, origCheck := ortInitialize, ortIsInitialized
	t.Cleanup(func() { ortInitialize, ortIsInitialized = origInit, origCheck })

	var started bool
	fail := errors.New("library not found")
	ortIsInitialized = func() bool { return started }
	ortInitialize = func() error { return fail }
	require.ErrorIs(t, initializeEnvironment(""), fail)

	ortInitialize = func() error { started = true; return nil }
	require.NoError(t, initializeEnvironment(""))
	require.True(t, started)
}

func TestNilLoggerDiscards(t *testing.T) {
	r, err := NewResample("box", nil)
	require.NoError(t, err)
	entry, ok := r.log.(*logrus.Entry)
	require.True(t, ok)
	require.Equal(t, io.Discard, entry.Logger.Out)
	require.NotSame(t, logrus.StandardLogger(), entry.Logger)
}
