package tensor_test

import (
	"errors"
	"testing"

	"github.com/okian/skincheck/internal/domain/tensor"
	. "github.com/smartystreets/goconvey/convey"
)

func TestShape(t *testing.T) {
	Convey("Given shapes", t, func() {
		s := tensor.Shape{1, 224, 224, 3}

		Convey("Then size and equality should follow dimensions", func() {
			So(s.Size(), ShouldEqual, 150528)
			So(s.Equal(tensor.Shape{1, 224, 224, 3}), ShouldBeTrue)
			So(s.Equal(tensor.Shape{224, 224, 3}), ShouldBeFalse)
			So(tensor.Shape{}.Size(), ShouldEqual, 0)
			So(s.String(), ShouldEqual, "[1,224,224,3]")
		})
	})
}

func TestTrackerScope(t *testing.T) {
	Convey("Given a tracker with an observer", t, func() {
		var observed []int64
		tr := tensor.NewTracker(func(live int64) { observed = append(observed, live) })
		baseline := tr.Live()

		Convey("When a scope allocates tensors and views", func() {
			scope := tr.NewScope()
			a := scope.Zeros(tensor.Shape{2, 3})
			view, err := scope.Reshape(a, tensor.Shape{1, 2, 3})
			So(err, ShouldBeNil)
			_, err = scope.FromData(tensor.Shape{2}, []float32{1, 2})
			So(err, ShouldBeNil)

			Convey("Then every allocation should be live", func() {
				So(tr.Live(), ShouldEqual, baseline+3)
				So(scope.Len(), ShouldEqual, 3)
				So(view.Data(), ShouldHaveLength, 6)
			})

			Convey("And releasing the scope should return to the baseline", func() {
				scope.Release()
				So(tr.Live(), ShouldEqual, baseline)
				So(a.Released(), ShouldBeTrue)
				So(a.Data(), ShouldBeNil)
				So(tr.Allocated(), ShouldEqual, int64(3))
				So(observed[len(observed)-1], ShouldEqual, baseline)
			})

			Convey("And double release should not go below the baseline", func() {
				a.Release()
				scope.Release()
				scope.Release()
				So(tr.Live(), ShouldEqual, baseline)
			})
		})

		Convey("When shapes and data disagree", func() {
			scope := tr.NewScope()
			defer scope.Release()
			_, err := scope.FromData(tensor.Shape{2, 2}, []float32{1})
			a := scope.Zeros(tensor.Shape{4})
			_, reshapeErr := scope.Reshape(a, tensor.Shape{3})

			Convey("Then ErrShape should be returned", func() {
				So(errors.Is(err, tensor.ErrShape), ShouldBeTrue)
				So(errors.Is(reshapeErr, tensor.ErrShape), ShouldBeTrue)
			})
		})

		Convey("When allocating on a released scope", func() {
			scope := tr.NewScope()
			scope.Release()

			Convey("Then it should panic and leak nothing", func() {
				So(func() { scope.Zeros(tensor.Shape{1}) }, ShouldPanic)
				So(tr.Live(), ShouldEqual, baseline)
			})
		})
	})
}
