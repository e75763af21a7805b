package smoke

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/okian/skincheck/pkg/logger"
)

var sampleExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// paintPlan fixes everything random about one sample so encoding can run
// concurrently while the set stays reproducible for a seed.
type paintPlan struct {
	background color.NRGBA
	spot       color.NRGBA
	at         image.Point
	radius     int
	format     imaging.Format
}

// generateSamples paints cfg.Images lesion-like images: a skin-toned field
// with a darker blurred spot. Even indices are PNG and odd ones JPEG.
func generateSamples(ctx context.Context, cfg *Config, stats *Stats) ([]Sample, error) {
	if cfg.Images <= 0 {
		return nil, ErrNoSamples
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultSize
	}
	logger.Get().Info(ctx, "generating sample images", logger.Int("count", cfg.Images), logger.Int("size", size))

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible test data
	plans := make([]paintPlan, cfg.Images)
	for i := range plans {
		plans[i] = newPlan(rng, size, i)
	}

	type paintResult struct {
		index  int
		sample Sample
		err    error
	}
	resultChan := make(chan paintResult, cfg.Images)

	workerCount := max(1, min(cfg.Workers, cfg.Images))
	perWorker := cfg.Images / workerCount
	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = cfg.Images
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					resultChan <- paintResult{index: i, err: err}
					continue
				}
				s, err := paint(i, plans[i], size)
				resultChan <- paintResult{index: i, sample: s, err: err}
			}
		}(start, end)
	}

	samples := make([]Sample, cfg.Images)
	var firstErr error
	for i := 0; i < cfg.Images; i++ {
		r := <-resultChan
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sample %d: %w", r.index, r.err)
		}
		samples[r.index] = r.sample
	}
	if firstErr != nil {
		return nil, firstErr
	}

	stats.SamplesPrepared = len(samples)
	return samples, nil
}

func newPlan(rng *rand.Rand, size, index int) paintPlan {
	radius := size/8 + rng.IntN(max(1, size/4))
	span := max(1, size-2*radius)
	p := paintPlan{
		background: color.NRGBA{
			R: uint8(180 + rng.IntN(60)),
			G: uint8(130 + rng.IntN(60)),
			B: uint8(110 + rng.IntN(50)),
			A: 255,
		},
		spot: color.NRGBA{
			R: uint8(60 + rng.IntN(60)),
			G: uint8(30 + rng.IntN(50)),
			B: uint8(20 + rng.IntN(40)),
			A: 255,
		},
		at:     image.Pt(rng.IntN(span), rng.IntN(span)),
		radius: radius,
		format: imaging.PNG,
	}
	if index%2 == 1 {
		p.format = imaging.JPEG
	}
	return p
}

func paint(index int, p paintPlan, size int) (Sample, error) {
	canvas := imaging.New(size, size, p.background)
	spot := imaging.New(2*p.radius, 2*p.radius, p.spot)
	canvas = imaging.Blur(imaging.Overlay(canvas, spot, p.at, spotOpacity), spotBlurSigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, p.format); err != nil {
		return Sample{}, fmt.Errorf("encode: %w", err)
	}

	s := Sample{Name: fmt.Sprintf("generated-%04d.png", index), ContentType: "image/png", data: buf.Bytes()}
	if p.format == imaging.JPEG {
		s.Name = fmt.Sprintf("generated-%04d.jpg", index)
		s.ContentType = "image/jpeg"
	}
	s.Bytes = len(s.data)
	return s, nil
}

// loadSamples reads every image file of dir in name order.
func loadSamples(ctx context.Context, dir string, stats *Stats) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sample dir: %w", err)
	}

	var samples []Sample
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		ct, ok := sampleExtensions[ext]
		if !ok {
			continue
		}
		if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
			ct = t
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read sample %s: %w", e.Name(), err)
		}
		samples = append(samples, Sample{Name: e.Name(), ContentType: ct, Bytes: len(data), data: data})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}

	stats.SamplesPrepared = len(samples)
	logger.Get().Info(ctx, "loaded sample images", logger.String("dir", dir), logger.Int("count", len(samples)))
	return samples, nil
}
