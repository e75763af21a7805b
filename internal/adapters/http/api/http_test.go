package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/okian/skincheck/internal/adapters/http/api"
	"github.com/okian/skincheck/internal/adapters/mq/queue"
	"github.com/okian/skincheck/internal/adapters/weather"
	"github.com/okian/skincheck/internal/domain/imaging"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init(logger.WithOutput(io.Discard))
	os.Exit(m.Run())
}

type mockDependencies struct {
	mu        sync.Mutex
	received  [][]byte
	result    model.ClassificationResult
	err       error
	submitErr error
	status    types.Status
	labels    []string
	advisory  types.Advisory
	adviseErr error
}

func (m *mockDependencies) Classify(_ context.Context, image []byte) (model.ClassificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, image)
	return m.result, m.err
}

func (m *mockDependencies) Submit(_ context.Context, image []byte) (types.Accepted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return types.Accepted{}, m.submitErr
	}
	m.received = append(m.received, image)
	return types.Accepted{JobID: "job-1", Ticket: uint64(len(m.received)), Status: "accepted"}, nil
}

func (m *mockDependencies) Current() model.ClassificationResult { return m.result }

func (m *mockDependencies) Status() types.Status { return m.status }

func (m *mockDependencies) Labels() ([]string, error) {
	if m.labels == nil {
		return nil, inference.ErrModelUnavailable
	}
	return m.labels, nil
}

func (m *mockDependencies) Advise(_ context.Context, lat, lon float64) (types.Advisory, error) {
	return m.advisory, m.adviseErr
}

func (m *mockDependencies) last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.received) == 0 {
		return nil
	}
	return m.received[len(m.received)-1]
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func success() model.ClassificationResult {
	return model.ClassificationResult{
		State:             model.StateSuccess,
		Label:             "benign",
		Index:             0,
		ConfidencePercent: 91.0,
		Message:           resolve.Message("benign", 91.0),
	}
}

func newMux(deps *mockDependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{result: success(), labels: []string{"benign", "malignant"}}
		mux := newMux(deps)

		Convey("Then health should expose metrics", func() {
			w := serve(mux, httptest.NewRequest("GET", "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("And health should summarise readiness as JSON on request", func() {
			deps.status = types.Status{State: "ready"}
			req := httptest.NewRequest("GET", "/healthz", nil)
			req.Header.Set("Accept", "application/json")
			w := serve(mux, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"model":"ready"`)

			deps.status = types.Status{State: "failed"}
			w = serve(mux, req)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, `"status":"degraded"`)
		})

		Convey("And stats should be served as JSON", func() {
			w := serve(mux, httptest.NewRequest("GET", "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(w.Body.String(), ShouldContainSubstring, `"uptimeSeconds"`)
		})

		Convey("And every response should carry a request id", func() {
			w := serve(mux, httptest.NewRequest("GET", "/status", nil))
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)

			req := httptest.NewRequest("GET", "/status", nil)
			req.Header.Set(api.RequestIDHeader, "req-42")
			So(serve(mux, req).Header().Get(api.RequestIDHeader), ShouldEqual, "req-42")
		})

		Convey("And unknown paths should be not found", func() {
			w := serve(mux, httptest.NewRequest("GET", "/unknown", nil))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And wrong methods should be not found", func() {
			So(serve(mux, httptest.NewRequest("GET", "/classify", nil)).Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, httptest.NewRequest("POST", "/labels", nil)).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestClassifyHandler(t *testing.T) {
	Convey("Given a ready model", t, func() {
		deps := &mockDependencies{result: success()}
		mux := newMux(deps, api.WithMaxBodyBytes(1024))
		img := []byte("\x89PNG fake image bytes")

		Convey("When posting raw image bytes", func() {
			req := httptest.NewRequest("POST", "/classify", bytes.NewReader(img))
			req.Header.Set("Content-Type", "image/png")
			w := serve(mux, req)

			Convey("Then the result should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res model.ClassificationResult
				So(json.NewDecoder(w.Body).Decode(&res), ShouldBeNil)
				So(res.Label, ShouldEqual, "benign")
				So(res.Message, ShouldEqual, "benign\nConfidence: 91.0%")
				So(deps.last(), ShouldResemble, img)
			})
		})

		Convey("When posting a multipart form", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, err := mw.CreateFormFile("image", "mole.png")
			So(err, ShouldBeNil)
			_, _ = part.Write(img)
			So(mw.Close(), ShouldBeNil)

			req := httptest.NewRequest("POST", "/classify", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := serve(mux, req)

			Convey("Then the file field should be classified", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.last(), ShouldResemble, img)
			})
		})

		Convey("When posting base64 JSON with a data URL prefix", func() {
			payload := `{"image_base64":"data:image/png;base64,aGVsbG8="}`
			req := httptest.NewRequest("POST", "/classify", strings.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			w := serve(mux, req)

			Convey("Then the decoded bytes should be classified", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(string(deps.last()), ShouldEqual, "hello")
			})
		})

		Convey("When the JSON body has no image", func() {
			req := httptest.NewRequest("POST", "/classify", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			So(serve(mux, req).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the media type is unsupported", func() {
			req := httptest.NewRequest("POST", "/classify", strings.NewReader("x"))
			req.Header.Set("Content-Type", "text/plain")
			So(serve(mux, req).Code, ShouldEqual, http.StatusUnsupportedMediaType)
		})

		Convey("When the body is larger than the limit", func() {
			req := httptest.NewRequest("POST", "/classify", bytes.NewReader(make([]byte, 4096)))
			req.Header.Set("Content-Type", "image/jpeg")
			So(serve(mux, req).Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})
	})

	Convey("Given classification failures", t, func() {
		cases := []struct {
			err    error
			result model.ClassificationResult
			status int
			code   string
		}{
			{inference.ErrModelUnavailable, resolve.Loading(), http.StatusServiceUnavailable, "not_ready"},
			{fmt.Errorf("%w: not an image", imaging.ErrDecode), resolve.Failed(), http.StatusUnprocessableEntity, "decode_error"},
			{fmt.Errorf("%w: NaN", inference.ErrInference), resolve.Failed(), http.StatusInternalServerError, "inference_error"},
		}
		for _, tc := range cases {
			Convey(fmt.Sprintf("When the pipeline returns %q", tc.code), func() {
				deps := &mockDependencies{result: tc.result, err: tc.err}
				req := httptest.NewRequest("POST", "/classify", strings.NewReader("x"))
				req.Header.Set("Content-Type", "image/jpeg")
				w := serve(newMux(deps), req)

				Convey("Then the status, code and display result should match", func() {
					So(w.Code, ShouldEqual, tc.status)
					var body struct {
						Code   string                     `json:"code"`
						Result model.ClassificationResult `json:"result"`
					}
					So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
					So(body.Code, ShouldEqual, tc.code)
					So(body.Result.Message, ShouldEqual, tc.result.Message)
				})
			})
		}
	})
}

func TestAnalyzeHandler(t *testing.T) {
	Convey("Given an analyze endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		post := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest("POST", "/analyze", strings.NewReader("img"))
			req.Header.Set("Content-Type", "image/jpeg")
			return serve(mux, req)
		}

		Convey("When the job is queued", func() {
			w := post()

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var acc types.Accepted
				So(json.NewDecoder(w.Body).Decode(&acc), ShouldBeNil)
				So(acc.JobID, ShouldEqual, "job-1")
				So(acc.Ticket, ShouldEqual, uint64(1))
			})
		})

		Convey("When the queue is full", func() {
			deps.submitErr = queue.ErrFull
			So(post().Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("When the model is still loading", func() {
			deps.submitErr = inference.ErrModelUnavailable
			So(post().Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When the queue is stopped", func() {
			deps.submitErr = queue.ErrStopped
			So(post().Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestReadHandlers(t *testing.T) {
	Convey("Given read endpoints", t, func() {
		deps := &mockDependencies{
			result: resolve.Analyzing(),
			status: types.Status{State: "ready", Message: resolve.MessageReady, Format: "tfjs", Labels: 2},
			labels: []string{"benign", "malignant"},
		}
		mux := newMux(deps)

		Convey("When reading the result", func() {
			w := serve(mux, httptest.NewRequest("GET", "/result", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, resolve.MessageAnalyzing)
		})

		Convey("When reading the status", func() {
			w := serve(mux, httptest.NewRequest("GET", "/status", nil))
			var st types.Status
			So(json.NewDecoder(w.Body).Decode(&st), ShouldBeNil)
			So(st.Labels, ShouldEqual, 2)
			So(st.Format, ShouldEqual, "tfjs")
		})

		Convey("When reading labels", func() {
			w := serve(mux, httptest.NewRequest("GET", "/labels", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `["benign","malignant"]`)
		})

		Convey("When reading labels before the model is ready", func() {
			deps.labels = nil
			w := serve(mux, httptest.NewRequest("GET", "/labels", nil))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestWeatherHandler(t *testing.T) {
	Convey("Given a weather endpoint", t, func() {
		deps := &mockDependencies{advisory: weather.Advice(27, 6)}
		mux := newMux(deps)

		Convey("When coordinates are valid", func() {
			w := serve(mux, httptest.NewRequest("GET", "/weather?lat=43.2&lon=76.9", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, weather.AdviceSPF)
		})

		Convey("When coordinates are missing", func() {
			w := serve(mux, httptest.NewRequest("GET", "/weather?lat=abc", nil))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When coordinates are out of range", func() {
			deps.adviseErr = weather.ErrInvalidCoordinates
			So(serve(mux, httptest.NewRequest("GET", "/weather?lat=99&lon=0", nil)).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the advisory is disabled", func() {
			deps.adviseErr = weather.ErrDisabled
			So(serve(mux, httptest.NewRequest("GET", "/weather?lat=1&lon=1", nil)).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the forecast service fails", func() {
			deps.adviseErr = weather.ErrUpstream
			So(serve(mux, httptest.NewRequest("GET", "/weather?lat=1&lon=1", nil)).Code, ShouldEqual, http.StatusBadGateway)
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Given kind-tagged errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		So(api.NewKind("api.op", api.ErrNotReady).Error(), ShouldEqual, "api.op: model not ready")
		So(api.Wrap("api.op", nil), ShouldBeNil)
		So(fmt.Sprint(api.Wrap("api.op", cause)), ShouldEqual, "api.op: boom")

		var target *api.KindError
		So(errors.As(err, &target), ShouldBeTrue)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(target.Op, ShouldEqual, "api.op")
	})
}
