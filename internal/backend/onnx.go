package backend

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// ONNXOptions selects the model and runtime for an ONNX backend.
type ONNXOptions struct {
	// ModelPath is the .onnx file to load.
	ModelPath string

	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string

	// Threads limits intra-op CPU threads; 0 lets the runtime decide.
	Threads int

	// Device is the CUDA device ordinal, or -1 to run on the CPU.
	Device int
}

// ONNX runs tiles through an ONNX model with one float32 NCHW input and one
// NCHW output. It owns a single session and its bound tensors; Configure
// rebuilds them and Close releases them.
type ONNX struct {
	opts ONNXOptions
	log  logrus.FieldLogger

	inputName, outputName string
	inputDims, outputDims ort.Shape

	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensor  *ort.Tensor[float32]
	input, output tiling.Shape
	batchSize     int

	// Output tile shapes already resolved, by input tile shape.
	shapes map[tiling.Shape]tiling.Shape
}

// NewONNX initializes the runtime environment if needed and inspects the
// model's input and output.
func NewONNX(opts ONNXOptions, log logrus.FieldLogger) (*ONNX, error) {
	if log == nil {
		log = tiling.DiscardLogger()
	}
	if opts.ModelPath == "" {
		return nil, errors.New("empty model path")
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if err := initializeEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, expected 1 and 1", len(inputs), len(outputs))
	}
	for _, info := range []ort.InputOutputInfo{inputs[0], outputs[0]} {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("%s: element type %v, expected float32", info.Name, info.DataType)
		}
		if len(info.Dimensions) != 4 {
			return nil, fmt.Errorf("%s: %d dimensions, expected NCHW", info.Name, len(info.Dimensions))
		}
	}

	o := &ONNX{
		opts:       opts,
		log:        log.WithFields(logrus.Fields{"backend": "onnx", "model": opts.ModelPath}),
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputDims:  inputs[0].Dimensions,
		outputDims: outputs[0].Dimensions,
		shapes:     make(map[tiling.Shape]tiling.Shape),
	}
	o.log.WithFields(logrus.Fields{
		"input":  fmt.Sprintf("%s%v", o.inputName, o.inputDims),
		"output": fmt.Sprintf("%s%v", o.outputName, o.outputDims),
	}).Debug("Model loaded")
	return o, nil
}

var (
	ortMu            sync.Mutex
	ortIsInitialized = ort.IsInitialized
	ortSetLibrary    = ort.SetSharedLibraryPath
	ortInitialize    = ort.InitializeEnvironment
)

// initializeEnvironment starts onnxruntime once per process. Concurrent
// callers wait for the first one.
func initializeEnvironment(libraryPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortIsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ortSetLibrary(libraryPath)
	}
	if err := ortInitialize(); err != nil {
		return fmt.Errorf("init onnxruntime: %w", err)
	}
	return nil
}

// OutputShape returns the tile shape the model produces for input. Models
// that trim a border yield less than input times their scale. Fixed output
// dimensions are read from the model; dynamic ones are measured by running
// one blank tile.
func (o *ONNX) OutputShape(input tiling.Shape) (tiling.Shape, error) {
	if out, ok := o.shapes[input]; ok {
		return out, nil
	}
	inDims := ort.NewShape(1, int64(input.Channels), int64(input.Height), int64(input.Width))
	if err := matchDims(o.inputName, o.inputDims[1:], inDims[1:]); err != nil {
		return tiling.Shape{}, err
	}
	dims := o.outputDims
	if dims[1] < 0 || dims[2] < 0 || dims[3] < 0 {
		probed, err := o.probe(inDims)
		if err != nil {
			return tiling.Shape{}, err
		}
		dims = probed
	}
	out := tiling.Shape{Width: int(dims[3]), Height: int(dims[2]), Channels: int(dims[1])}
	o.shapes[input] = out
	o.log.WithFields(logrus.Fields{
		"input":  input.String(),
		"output": out.String(),
	}).Debug("Resolved output tile")
	return out, nil
}

// probe runs a single zero tile of inDims and returns the output dimensions.
func (o *ONNX) probe(inDims ort.Shape) (ort.Shape, error) {
	opts, err := o.sessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(o.opts.ModelPath,
		[]string{o.inputName}, []string{o.outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("create probe session: %w", err)
	}
	defer session.Destroy()

	in, err := ort.NewEmptyTensor[float32](inDims)
	if err != nil {
		return nil, fmt.Errorf("allocate probe tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("probe %v: %w", inDims, err)
	}
	defer outputs[0].Destroy()

	dims := outputs[0].GetShape().Clone()
	if len(dims) != 4 {
		return nil, fmt.Errorf("%s: probe returned %v, expected NCHW", o.outputName, dims)
	}
	return dims, nil
}

// Configure binds tensors of the given shapes and creates the session. Fixed
// model dimensions must match; dynamic ones (-1) accept anything.
func (o *ONNX) Configure(input, output tiling.Shape, batchSize int) error {
	o.release()

	inDims := ort.NewShape(int64(batchSize), int64(input.Channels), int64(input.Height), int64(input.Width))
	outDims := ort.NewShape(int64(batchSize), int64(output.Channels), int64(output.Height), int64(output.Width))
	if err := matchDims(o.inputName, o.inputDims, inDims); err != nil {
		return err
	}
	if err := matchDims(o.outputName, o.outputDims, outDims); err != nil {
		return err
	}

	in, err := ort.NewEmptyTensor[float32](inDims)
	if err != nil {
		return fmt.Errorf("allocate input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](outDims)
	if err != nil {
		in.Destroy()
		return fmt.Errorf("allocate output tensor: %w", err)
	}

	opts, err := o.sessionOptions()
	if err != nil {
		in.Destroy()
		out.Destroy()
		return err
	}
	defer opts.Destroy()

	session, err := ort.NewAdvancedSession(o.opts.ModelPath,
		[]string{o.inputName}, []string{o.outputName},
		[]ort.Value{in}, []ort.Value{out}, opts)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return fmt.Errorf("create session: %w", err)
	}

	o.session, o.inputTensor, o.outputTensor = session, in, out
	o.input, o.output, o.batchSize = input, output, batchSize
	o.log.WithFields(logrus.Fields{
		"input":  fmt.Sprint(inDims),
		"output": fmt.Sprint(outDims),
		"device": o.opts.Device,
	}).Info("ONNX session ready")
	return nil
}

func (o *ONNX) sessionOptions() (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	if o.opts.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(o.opts.Threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}
	if o.opts.Device >= 0 {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(o.opts.Device)}); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("cuda device %d: %w", o.opts.Device, err)
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("enable cuda: %w", err)
		}
	}
	return opts, nil
}

func matchDims(name string, model, want ort.Shape) error {
	for i, d := range model {
		if d >= 0 && d != want[i] {
			return fmt.Errorf("%s: model expects %v, configured %v", name, model, want)
		}
	}
	return nil
}

// RunBatch packs the batch into the bound input tensor, runs the session
// and unpacks the output tensor.
func (o *ONNX) RunBatch(inputs []*tiling.Buffer) ([]*tiling.Buffer, error) {
	if o.session == nil {
		return nil, errors.New("onnx backend is not configured")
	}
	if len(inputs) != o.batchSize {
		return nil, fmt.Errorf("batch has %d tiles, configured for %d", len(inputs), o.batchSize)
	}
	packNCHW(o.inputTensor.GetData(), inputs, o.input)
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	return unpackNCHW(o.outputTensor.GetData(), o.batchSize, o.output), nil
}

// Close releases the session and its tensors.
func (o *ONNX) Close() error {
	return o.release()
}

func (o *ONNX) release() error {
	var errs []error
	if o.session != nil {
		errs = append(errs, o.session.Destroy())
		o.session = nil
	}
	if o.inputTensor != nil {
		errs = append(errs, o.inputTensor.Destroy())
		o.inputTensor = nil
	}
	if o.outputTensor != nil {
		errs = append(errs, o.outputTensor.Destroy())
		o.outputTensor = nil
	}
	return errors.Join(errs...)
}

// packNCHW writes interleaved tiles into a planar batch tensor.
func packNCHW(dst []float32, tiles []*tiling.Buffer, shape tiling.Shape) {
	plane := shape.Width * shape.Height
	for n, t := range tiles {
		base := n * shape.Channels * plane
		for c := 0; c < shape.Channels; c++ {
			p := dst[base+c*plane : base+(c+1)*plane]
			for i := range p {
				p[i] = float32(t.Pix[i*shape.Channels+c])
			}
		}
	}
}

// unpackNCHW splits a planar batch tensor into interleaved tiles.
func unpackNCHW(src []float32, batch int, shape tiling.Shape) []*tiling.Buffer {
	plane := shape.Width * shape.Height
	tiles := make([]*tiling.Buffer, batch)
	for n := range tiles {
		t := tiling.NewBuffer(shape.Width, shape.Height, shape.Channels)
		base := n * shape.Channels * plane
		for c := 0; c < shape.Channels; c++ {
			p := src[base+c*plane : base+(c+1)*plane]
			for i, v := range p {
				t.Pix[i*shape.Channels+c] = float64(v)
			}
		}
		tiles[n] = t
	}
	return tiles
}
