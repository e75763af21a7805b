package asset

import (
	"encoding/json"
	"fmt"
)

// MetadataFile is the label document that sits next to every model.
const MetadataFile = "metadata.json"

// Layout describes how a model format is laid out in a store.
type Layout struct {
	// Format is the model format name.
	Format string
	// TopologyFile is fetched first, relative to the base location.
	TopologyFile string
	// weightPaths lists the blobs the topology references.
	weightPaths func(topology []byte) ([]string, error)
	// selfContained marks graph files that embed their weights.
	selfContained bool
}

// WeightPaths returns the weight blobs the topology references.
func (l Layout) WeightPaths(topology []byte) ([]string, error) {
	if l.selfContained {
		return nil, nil
	}
	return l.weightPaths(topology)
}

// Layouts.
var (
	TFJS   = Layout{Format: "tfjs", TopologyFile: "model.json", weightPaths: tfjsWeightPaths}
	ONNX   = Layout{Format: "onnx", TopologyFile: "model.onnx", selfContained: true}
	TFLite = Layout{Format: "tflite", TopologyFile: "model.tflite", selfContained: true}
)

// LayoutFor resolves a format name.
func LayoutFor(format string) (Layout, error) {
	switch format {
	case TFJS.Format:
		return TFJS, nil
	case ONNX.Format:
		return ONNX, nil
	case TFLite.Format:
		return TFLite, nil
	}
	return Layout{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Metadata is the label document. Fields other than Labels are informational.
type Metadata struct {
	Labels      []string `json:"labels"`
	ModelName   string   `json:"modelName,omitempty"`
	ImageSize   int      `json:"imageSize,omitempty"`
	TMVersion   string   `json:"tmVersion,omitempty"`
	TFJSVersion string   `json:"tfjsVersion,omitempty"`
}

// ParseMetadata decodes metadata.json and requires a non-empty label list.
func ParseMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	if len(m.Labels) == 0 {
		return Metadata{}, fmt.Errorf("parse metadata: missing or empty label list")
	}
	return m, nil
}

// WeightSpec describes one tensor inside a TF.js weight group.
type WeightSpec struct {
	Name         string        `json:"name"`
	Shape        []int         `json:"shape"`
	DType        string        `json:"dtype"`
	Quantization *Quantization `json:"quantization,omitempty"`
}

// Quantization parameters for uint8/uint16 weights: value = q*scale + min.
type Quantization struct {
	DType string  `json:"dtype"`
	Scale float32 `json:"scale"`
	Min   float32 `json:"min"`
}

// WeightGroup is one entry of a TF.js weightsManifest. The group's
// tensors are packed back to back across its shard paths.
type WeightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

// TFJSModel is the parsed model.json document.
type TFJSModel struct {
	Format          string          `json:"format,omitempty"`
	ModelTopology   json.RawMessage `json:"modelTopology"`
	WeightsManifest []WeightGroup   `json:"weightsManifest"`
}

// ParseTFJSModel decodes model.json and checks that it has both halves.
func ParseTFJSModel(raw []byte) (*TFJSModel, error) {
	var m TFJSModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model.json: %w", err)
	}
	if len(m.ModelTopology) == 0 || string(m.ModelTopology) == "null" {
		return nil, fmt.Errorf("parse model.json: missing modelTopology")
	}
	if len(m.WeightsManifest) == 0 {
		return nil, fmt.Errorf("parse model.json: missing weightsManifest")
	}
	return &m, nil
}

func tfjsWeightPaths(topology []byte) ([]string, error) {
	m, err := ParseTFJSModel(topology)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var paths []string
	for _, g := range m.WeightsManifest {
		if len(g.Paths) == 0 && len(g.Weights) > 0 {
			return nil, fmt.Errorf("parse model.json: weight group without paths")
		}
		for _, p := range g.Paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	return paths, nil
}
