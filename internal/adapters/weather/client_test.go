package weather

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"

	"github.com/okian/skincheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

func TestAdvice(t *testing.T) {
	Convey("Given UV readings around the threshold", t, func() {
		So(Advice(20, 3).Advice, ShouldEqual, AdviceSafe)
		So(Advice(20, 3).NeedsSPF, ShouldBeFalse)
		So(Advice(28, 3.1).Advice, ShouldEqual, AdviceSPF)
		So(Advice(28, 3.1).NeedsSPF, ShouldBeTrue)
	})
}

func TestClient(t *testing.T) {
	Convey("Given a forecast server", t, func() {
		var hits atomic.Int32
		var query atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			query.Store(r.URL.Query())
			if r.URL.Query().Get("latitude") == "0" {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, `{"current":{"time":"2024-06-01T12:00","temperature_2m":27.4,"uv_index":6.2}}`)
		}))
		defer srv.Close()
		c := New(srv.URL, WithHTTPClient(srv.Client()))
		ctx := context.Background()

		Convey("When asking for a location twice", func() {
			first, err := c.Advise(ctx, 43.2389, 76.8897)
			So(err, ShouldBeNil)
			second, err := c.Advise(ctx, 43.2391, 76.8899)
			So(err, ShouldBeNil)

			Convey("Then the second lookup should come from the cache", func() {
				So(hits.Load(), ShouldEqual, int32(1))
				So(second, ShouldResemble, first)
				So(first.TemperatureC, ShouldEqual, 27.4)
				So(first.UVIndex, ShouldEqual, 6.2)
				So(first.Advice, ShouldEqual, AdviceSPF)
			})

			Convey("And the request should ask for current temperature and UV", func() {
				q := query.Load().(url.Values)
				So(q["current"], ShouldResemble, []string{"temperature_2m,uv_index"})
				So(q["timezone"], ShouldResemble, []string{"auto"})
			})
		})

		Convey("When the upstream fails", func() {
			_, err := c.Advise(ctx, 0, 10)
			So(errors.Is(err, ErrUpstream), ShouldBeTrue)
		})

		Convey("When coordinates are out of range", func() {
			_, err := c.Advise(ctx, 91, 0)
			So(errors.Is(err, ErrInvalidCoordinates), ShouldBeTrue)
			So(hits.Load(), ShouldEqual, int32(0))
		})

		Convey("When a coordinate is NaN", func() {
			_, errLat := c.Advise(ctx, math.NaN(), 10)
			_, errLon := c.Advise(ctx, 10, math.NaN())

			Convey("Then it should be rejected before any lookup", func() {
				So(errors.Is(errLat, ErrInvalidCoordinates), ShouldBeTrue)
				So(errors.Is(errLon, ErrInvalidCoordinates), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, int32(0))
				So(c.cache.ItemCount(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given no forecast endpoint", t, func() {
		_, err := New("").Advise(context.Background(), 1, 1)
		So(errors.Is(err, ErrDisabled), ShouldBeTrue)
	})
}
