package commands

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/skincheck/internal/app"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/pkg/logger"
)

const tinyModel = `{
  "modelTopology": {"class_name": "Sequential", "config": {"name": "tiny", "layers": [
    {"class_name": "InputLayer", "config": {"name": "input", "batch_input_shape": [null, 224, 224, 3]}},
    {"class_name": "GlobalAveragePooling2D", "config": {"name": "gap"}},
    {"class_name": "Dense", "config": {"name": "head", "units": 2, "activation": "softmax"}}
  ]}},
  "weightsManifest": [{"paths": ["weights.bin"], "weights": [
    {"name": "head/kernel", "shape": [3, 2], "dtype": "float32"},
    {"name": "head/bias", "shape": [2], "dtype": "float32"}
  ]}]
}`

// writeModel lays out a two-class tfjs model that calls bright images benign.
func writeModel(t *testing.T, withMetadata bool) string {
	t.Helper()
	dir := t.TempDir()
	var shard []byte
	for _, v := range []float32{1, -1, 1, -1, 1, -1, 0, 0} {
		shard = binary.LittleEndian.AppendUint32(shard, math.Float32bits(v))
	}
	files := map[string][]byte{
		"model.json":  []byte(tinyModel),
		"weights.bin": shard,
	}
	if withMetadata {
		files["metadata.json"] = []byte(`{"labels": ["benign", "malignant"]}`)
	}
	for name, b := range files {
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeConfig(t *testing.T, modelDir, format string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skincheck.yaml")
	body := "model_url: " + modelDir + "\n" +
		"model_format: " + format + "\n" +
		"weather_url: \"\"\n" +
		"log_level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeImage(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "lesion.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(ctx context.Context, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root := newRoot()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestClassifyCommand(t *testing.T) {
	Convey("Given a tfjs model on disk", t, func() {
		conf := writeConfig(t, writeModel(t, true), "tfjs")

		Convey("When classifying a bright image", func() {
			out, _, err := run(context.Background(), "classify", "--config", conf, writeImage(t, color.White))

			Convey("Then the label and confidence are printed", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "benign\nConfidence: 99.8%\n")
			})
		})

		Convey("When asking for JSON output", func() {
			out, _, err := run(context.Background(), "classify", "--json", "--config", conf, writeImage(t, color.White))

			Convey("Then the full result is encoded", func() {
				So(err, ShouldBeNil)
				var res model.ClassificationResult
				So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
				So(res.State, ShouldEqual, model.StateSuccess)
				So(res.Label, ShouldEqual, "benign")
				So(res.ConfidencePercent, ShouldEqual, 99.8)
			})
		})

		Convey("When the file is not an image", func() {
			path := filepath.Join(t.TempDir(), "notes.txt")
			So(os.WriteFile(path, []byte("not an image"), 0o600), ShouldBeNil)
			out, _, err := run(context.Background(), "classify", "--config", conf, path)

			Convey("Then the generic error message is printed and the command fails", func() {
				So(err, ShouldNotBeNil)
				So(out, ShouldEqual, "Could not recognize\n")
			})
		})

		Convey("When the file does not exist", func() {
			_, _, err := run(context.Background(), "classify", "--config", conf, filepath.Join(t.TempDir(), "missing.png"))

			Convey("Then the command fails", func() {
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When no path is given", func() {
			_, _, err := run(context.Background(), "classify", "--config", conf)

			Convey("Then argument validation fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given a model without label metadata", t, func() {
		conf := writeConfig(t, writeModel(t, false), "tfjs")

		Convey("When classifying", func() {
			out, _, err := run(context.Background(), "classify", "--config", conf, writeImage(t, color.White))

			Convey("Then startup failure is reported", func() {
				So(err, ShouldNotBeNil)
				So(out, ShouldEqual, "Startup failed\n")
			})
		})
	})
}

func TestLabelsCommand(t *testing.T) {
	Convey("Given a tfjs model on disk", t, func() {
		conf := writeConfig(t, writeModel(t, true), "tfjs")

		Convey("When listing labels", func() {
			out, _, err := run(context.Background(), "labels", "--config", conf)

			Convey("Then they are printed in output order", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "0\tbenign\n1\tmalignant\n")
			})
		})
	})
}

func TestRootCommand(t *testing.T) {
	Convey("Given the root command", t, func() {
		Convey("When the config names an unknown model format", func() {
			conf := writeConfig(t, writeModel(t, true), "caffe")
			_, _, err := run(context.Background(), "labels", "--config", conf)

			Convey("Then configuration validation fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the log level flag is invalid", func() {
			conf := writeConfig(t, writeModel(t, true), "tfjs")
			_, errOut, err := run(context.Background(), "labels", "--config", conf, "--log-level", "loud")

			Convey("Then the command still runs and warns", func() {
				So(err, ShouldBeNil)
				So(errOut, ShouldContainSubstring, "invalid log_level")
			})
		})

		Convey("When listing subcommands", func() {
			names := []string{}
			for _, c := range newRoot().Commands() {
				names = append(names, c.Name())
			}

			Convey("Then serve, classify and labels are present", func() {
				So(strings.Join(names, ","), ShouldContainSubstring, "classify")
				So(names, ShouldContain, "serve")
				So(names, ShouldContain, "labels")
			})
		})
	})
}

func TestServeCommand(t *testing.T) {
	Convey("Given a served model", t, func() {
		conf := writeConfig(t, writeModel(t, true), "tfjs")
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		Convey("When the context is cancelled", func() {
			_, _, err := run(ctx, "serve", "--config", conf, "--addr", "127.0.0.1:0")

			Convey("Then the server shuts down cleanly", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	Convey("Given a started service", t, func() {
		if err := logger.Init(logger.WithOutput(&bytes.Buffer{})); err != nil {
			t.Fatal(err)
		}
		svc := service.New(service.WithModel(writeModel(t, true), "tfjs"), service.WithWeather("", 0))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("Then refreshing metrics does not panic", func() {
			So(updateSystemMetrics, ShouldNotPanic)
			So(func() { updateServiceMetrics(svc) }, ShouldNotPanic)
		})
	})
}
