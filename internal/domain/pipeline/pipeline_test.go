package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/imaging"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/preprocess"
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

type stubNetwork struct {
	output []float32
	calls  atomic.Int32
}

func (n *stubNetwork) InputShape() tensor.Shape { return preprocess.InputShape }
func (n *stubNetwork) OutputLen() int           { return len(n.output) }
func (n *stubNetwork) Close() error             { return nil }

func (n *stubNetwork) Forward(_ context.Context, scope *tensor.Scope, _ *tensor.Tensor) (*tensor.Tensor, error) {
	n.calls.Add(1)
	out := scope.Zeros(tensor.Shape{1, len(n.output)})
	copy(out.Data(), n.output)
	return out, nil
}

type stubModel struct {
	status inference.Status
	engine *inference.Engine
}

func (m *stubModel) Status() inference.Status   { return m.status }
func (m *stubModel) Engine() *inference.Engine { return m.engine }

type countingDecoder struct {
	calls atomic.Int32
	img   model.RawImage
	err   error
	// block, when set, holds Decode until closed
	block chan struct{}
}

func (d *countingDecoder) Decode(ctx context.Context, data []byte) (model.RawImage, error) {
	d.calls.Add(1)
	if d.block != nil {
		<-d.block
	}
	if len(data) == 0 {
		return model.RawImage{}, imaging.ErrDecode
	}
	return d.img, d.err
}

func readyModel(net *stubNetwork) *stubModel {
	a, err := asset.New("tfjs", []byte("{}"), map[string][]byte{"w.bin": {0}}, []string{"benign", "malignant", "unknown"})
	if err != nil {
		panic(err)
	}
	e, err := inference.NewEngine(a, net, tensor.NewTracker(nil))
	if err != nil {
		panic(err)
	}
	return &stubModel{status: inference.StatusReady, engine: e}
}

func grey(w, h int) model.RawImage {
	px := make([]uint8, w*h*3)
	for i := range px {
		px[i] = 90
	}
	return model.RawImage{Width: w, Height: h, Channels: 3, Pixels: px}
}

func TestClassify(t *testing.T) {
	Convey("Given a pipeline", t, func() {
		ctx := context.Background()
		dec := &countingDecoder{img: grey(32, 24)}

		Convey("When the model is still loading", func() {
			m := &stubModel{status: inference.StatusLoading}
			p := New(m, dec)
			res, err := p.Classify(ctx, []byte{0xff, 0xd8})

			Convey("Then the loading message should be returned without decoding", func() {
				So(errors.Is(err, inference.ErrModelUnavailable), ShouldBeTrue)
				So(res.State, ShouldEqual, model.StateLoading)
				So(res.Message, ShouldEqual, resolve.MessageLoading)
				So(dec.calls.Load(), ShouldEqual, int32(0))
			})
		})

		Convey("When the model failed to load", func() {
			p := New(&stubModel{status: inference.StatusFailed}, dec)
			res, err := p.Classify(ctx, []byte{1})

			Convey("Then the startup failure should be shown", func() {
				So(errors.Is(err, inference.ErrModelUnavailable), ShouldBeTrue)
				So(res.Message, ShouldEqual, resolve.MessageLoadFailed)
				So(dec.calls.Load(), ShouldEqual, int32(0))
			})
		})

		Convey("When the model is ready", func() {
			net := &stubNetwork{output: []float32{0.91, 0.04, 0.05}}
			m := readyModel(net)
			p := New(m, dec)
			tracker := m.engine.Tracker()

			Convey("And the image is valid", func() {
				res, err := p.Classify(ctx, []byte{0xff, 0xd8})

				Convey("Then the top label should be returned and no tensor left live", func() {
					So(err, ShouldBeNil)
					So(res.Label, ShouldEqual, "benign")
					So(res.ConfidencePercent, ShouldEqual, 91.0)
					So(res.Message, ShouldEqual, "benign\nConfidence: 91.0%")
					So(tracker.Live(), ShouldEqual, int64(0))
					So(tracker.Allocated(), ShouldBeGreaterThan, int64(0))
				})
			})

			Convey("And the buffer is empty", func() {
				res, err := p.Classify(ctx, nil)

				Convey("Then the generic failure should surface and no tensor be created", func() {
					So(errors.Is(err, imaging.ErrDecode), ShouldBeTrue)
					So(res.State, ShouldEqual, model.StateError)
					So(res.Message, ShouldEqual, resolve.MessageError)
					So(tracker.Allocated(), ShouldEqual, int64(0))
					So(net.calls.Load(), ShouldEqual, int32(0))
				})
			})

			Convey("And the decoder returns an inconsistent image", func() {
				dec.img = model.RawImage{Width: 2, Height: 2, Channels: 3, Pixels: make([]uint8, 5)}
				res, err := p.Classify(ctx, []byte{1})

				Convey("Then prepare should fail and nothing reach the network", func() {
					So(errors.Is(err, preprocess.ErrDimensionMismatch), ShouldBeTrue)
					So(res.State, ShouldEqual, model.StateError)
					So(net.calls.Load(), ShouldEqual, int32(0))
				})
			})

			Convey("And the caller's context is already cancelled", func() {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				res, err := p.Classify(cctx, []byte{1})

				Convey("Then the unit should still run to completion", func() {
					So(err, ShouldBeNil)
					So(res.Succeeded(), ShouldBeTrue)
				})
			})
		})
	})
}

func TestSession(t *testing.T) {
	Convey("Given a session over a ready model", t, func() {
		ctx := context.Background()
		net := &stubNetwork{output: []float32{0.1, 0.8, 0.1}}
		m := readyModel(net)
		s := NewSession(m)

		Convey("Then the idle state should be shown first", func() {
			So(s.Current().Message, ShouldEqual, resolve.MessageReady)
			So(s.Latest(), ShouldEqual, uint64(0))
		})

		Convey("When a request begins", func() {
			ticket := s.Begin()

			Convey("Then the in-progress state should be shown", func() {
				So(s.Current().Message, ShouldEqual, resolve.MessageAnalyzing)
				So(s.IsLatest(ticket), ShouldBeTrue)
			})
		})

		Convey("When a newer request begins before the older completes", func() {
			first := s.Begin()
			second := s.Begin()
			okNew := s.Complete(ctx, second, model.ClassificationResult{State: model.StateSuccess, Label: "new", Message: "new"})
			okOld := s.Complete(ctx, first, model.ClassificationResult{State: model.StateSuccess, Label: "old", Message: "old"})

			Convey("Then only the newest result should be shown", func() {
				So(second, ShouldBeGreaterThan, first)
				So(okNew, ShouldBeTrue)
				So(okOld, ShouldBeFalse)
				So(s.Current().Label, ShouldEqual, "new")
			})
		})

		Convey("When two runs overlap", func() {
			dec := &countingDecoder{img: grey(8, 8), block: make(chan struct{})}
			p := New(m, dec)

			var wg sync.WaitGroup
			var firstPublished bool
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, firstPublished, _ = s.Run(ctx, p, []byte{1})
			}()
			for s.Latest() == 0 {
				runtime.Gosched()
			}
			newer := s.Begin()
			close(dec.block)
			wg.Wait()
			s.Complete(ctx, newer, resolve.Failed())

			Convey("Then the older run's result should be ignored", func() {
				So(firstPublished, ShouldBeFalse)
				So(s.Current().Message, ShouldEqual, resolve.MessageError)
			})
		})
	})

	Convey("Given a session over a loading model", t, func() {
		s := NewSession(&stubModel{status: inference.StatusLoading})

		Convey("Then the loading state should be shown", func() {
			So(s.Current().Message, ShouldEqual, resolve.MessageLoading)
		})
	})
}
