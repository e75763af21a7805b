package onnx

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

func TestShapeOf(t *testing.T) {
	Convey("Given graph dimensions", t, func() {
		Convey("When the batch is dynamic", func() {
			s, err := shapeOf(ort.NewShape(-1, 224, 224, 3))

			Convey("Then it should be pinned to one", func() {
				So(err, ShouldBeNil)
				So(s, ShouldResemble, tensor.Shape{1, 224, 224, 3})
			})
		})

		Convey("When an inner dimension is dynamic", func() {
			_, err := shapeOf(ort.NewShape(1, -1, 224, 3))

			Convey("Then it should be rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the tensor is a scalar", func() {
			_, err := shapeOf(ort.NewShape())
			So(err, ShouldNotBeNil)
		})

		Convey("When converting back for the runtime", func() {
			So(toORT(tensor.Shape{1, 2}), ShouldResemble, ort.NewShape(1, 2))
		})
	})
}

func TestSelectIO(t *testing.T) {
	Convey("Given graph io descriptions", t, func() {
		f := ort.InputOutputInfo{Name: "x", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 3)}

		Convey("When there is exactly one float input and output", func() {
			in, out, err := selectIO([]ort.InputOutputInfo{f}, []ort.InputOutputInfo{f})
			So(err, ShouldBeNil)
			So(in.Name, ShouldEqual, "x")
			So(out.Name, ShouldEqual, "x")
		})

		Convey("When there are two outputs", func() {
			_, _, err := selectIO([]ort.InputOutputInfo{f}, []ort.InputOutputInfo{f, f})
			So(errors.Is(err, ErrGraph), ShouldBeTrue)
		})

		Convey("When the input is not float", func() {
			i := f
			i.DataType = ort.TensorElementDataTypeUint8
			_, _, err := selectIO([]ort.InputOutputInfo{i}, []ort.InputOutputInfo{f})
			So(errors.Is(err, ErrGraph), ShouldBeTrue)
		})
	})
}

func TestLocateLibrary(t *testing.T) {
	Convey("Given a configured library path", t, func() {
		Convey("When the file exists", func() {
			p := filepath.Join(t.TempDir(), "libonnxruntime.so")
			So(os.WriteFile(p, []byte{0}, 0o600), ShouldBeNil)
			got, err := locateLibrary(p)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, p)
		})

		Convey("When the file is missing", func() {
			_, err := locateLibrary(filepath.Join(t.TempDir(), "missing.so"))
			So(errors.Is(err, ErrRuntime), ShouldBeTrue)
		})
	})

	Convey("Given each platform", t, func() {
		for _, goos := range []string{"linux", "darwin", "windows"} {
			So(libraryCandidates(goos), ShouldNotBeEmpty)
		}
	})
}

func TestCompileMissingRuntime(t *testing.T) {
	Convey("Given an onnx asset and no runtime library", t, func() {
		graph := []byte("not really a graph")
		a, err := asset.New("onnx", graph, map[string][]byte{asset.ONNX.TopologyFile: graph}, []string{"a"})
		So(err, ShouldBeNil)
		b := New(WithLibraryPath(filepath.Join(t.TempDir(), "missing.so")), WithThreads(2))

		Convey("When compiling", func() {
			_, err := b.Compile(context.Background(), a)

			Convey("Then compilation should fail before any session exists", func() {
				So(err, ShouldNotBeNil)
				if !ort.IsInitialized() {
					So(errors.Is(err, ErrRuntime), ShouldBeTrue)
				}
				So(b.Name(), ShouldEqual, "onnx")
			})
		})
	})
}

func TestOutputData(t *testing.T) {
	Convey("Given a session output slot", t, func() {
		Convey("When the runtime left it empty", func() {
			_, err := outputData(nil, 2)

			Convey("Then it should be reported as an output error", func() {
				So(errors.Is(err, ErrOutput), ShouldBeTrue)
			})
		})

		Convey("When it holds a nil float tensor", func() {
			var empty *ort.Tensor[float32]
			_, err := outputData(empty, 2)

			Convey("Then it should be rejected without dereferencing", func() {
				So(errors.Is(err, ErrOutput), ShouldBeTrue)
			})
		})
	})
}
