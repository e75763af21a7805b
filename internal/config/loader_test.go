package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/skincheck/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ModelFormat, convey.ShouldEqual, "tfjs")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 16)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SKINCHECK_ADDR", ":8080")
			_ = os.Setenv("SKINCHECK_MODEL_URL", "/srv/models/skin")
			_ = os.Setenv("SKINCHECK_MODEL_FORMAT", "onnx")
			_ = os.Setenv("SKINCHECK_QUEUE_SIZE", "4")
			_ = os.Setenv("SKINCHECK_WORKER_COUNT", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelURL, convey.ShouldEqual, "/srv/models/skin")
				convey.So(cfg.ModelFormat, convey.ShouldEqual, "onnx")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 4)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
model_url: "https://models.example.com/skin/"
queue_size: 8
max_image_pixels: 1000000
weather_url: ""
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SKINCHECK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ModelURL, convey.ShouldEqual, "https://models.example.com/skin/")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 8)
				convey.So(cfg.MaxImagePixels, convey.ShouldEqual, 1000000)
				convey.So(cfg.WeatherURL, convey.ShouldEqual, "")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nqueue_size: 8\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SKINCHECK_CONFIG", tmpFile)
			_ = os.Setenv("SKINCHECK_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SKINCHECK_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.LoadFile(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SKINCHECK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown model format", func() {
			_ = os.Setenv("SKINCHECK_MODEL_FORMAT", "pickle")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SKINCHECK_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SKINCHECK_CONFIG",
		"SKINCHECK_ADDR",
		"SKINCHECK_MODEL_URL",
		"SKINCHECK_MODEL_FORMAT",
		"SKINCHECK_QUEUE_SIZE",
		"SKINCHECK_WORKER_COUNT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "skincheck-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
