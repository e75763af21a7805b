//go:build !tflite

package tflite

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStubBackend(t *testing.T) {
	Convey("Given a build without tflite", t, func() {
		b := New(WithThreads(2))

		Convey("Then compiling should report the missing support", func() {
			_, err := b.Compile(context.Background(), nil)
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			So(b.Name(), ShouldEqual, "tflite")
		})
	})
}
