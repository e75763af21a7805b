package tfjs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/okian/skincheck/internal/domain/tensor"
)

type layerSpec struct {
	ClassName    string          `json:"class_name"`
	Name         string          `json:"name"`
	Config       json.RawMessage `json:"config"`
	InboundNodes json.RawMessage `json:"inbound_nodes"`
}

type functionalConfig struct {
	Name         string          `json:"name"`
	Layers       []layerSpec     `json:"layers"`
	InputLayers  json.RawMessage `json:"input_layers"`
	OutputLayers json.RawMessage `json:"output_layers"`
}

type node struct {
	name   string
	op     op
	inputs []int
	shape  tensor.Shape
}

// graph is the flattened layer DAG in topological order.
type graph struct {
	nodes  []*node
	input  int
	output int
}

type builder struct {
	nodes  []*node
	inputs []int
	ws     *weightStore
}

// buildGraph flattens a Keras topology, including nested Sequential and
// functional models, into a single graph with one input and one output.
func buildGraph(topology json.RawMessage, ws *weightStore) (*graph, error) {
	var wrapper struct {
		ModelConfig json.RawMessage `json:"model_config"`
	}
	if err := json.Unmarshal(topology, &wrapper); err == nil && len(wrapper.ModelConfig) > 0 {
		topology = wrapper.ModelConfig
	}
	var root layerSpec
	if err := json.Unmarshal(topology, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopology, err)
	}

	b := &builder{ws: ws}
	outs, err := b.model(root, nil)
	if err != nil {
		return nil, err
	}
	if len(b.inputs) != 1 {
		return nil, fmt.Errorf("%w: expected one input, found %d", ErrTopology, len(b.inputs))
	}
	if len(outs) != 1 {
		return nil, fmt.Errorf("%w: expected one output, found %d", ErrTopology, len(outs))
	}
	return &graph{nodes: b.nodes, input: b.inputs[0], output: outs[0]}, nil
}

func (b *builder) add(name string, o op, inputs []int) (int, error) {
	shapes := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		shapes[i] = b.nodes[in].shape
	}
	shape, err := o.infer(shapes, b.ws)
	if err != nil {
		return 0, fmt.Errorf("layer %s: %w", name, err)
	}
	b.nodes = append(b.nodes, &node{name: name, op: o, inputs: inputs, shape: shape})
	return len(b.nodes) - 1, nil
}

func (b *builder) addInput(spec layerSpec, cfg layerConfig) (int, error) {
	shape, ok, err := cfg.inputShape()
	if err != nil {
		return 0, fmt.Errorf("%w: layer %s: %w", ErrTopology, spec.Name, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: layer %s declares no input shape", ErrTopology, spec.Name)
	}
	idx, err := b.add(layerName(spec, cfg), &inputOp{shape: shape}, nil)
	if err != nil {
		return 0, err
	}
	b.inputs = append(b.inputs, idx)
	return idx, nil
}

func (b *builder) model(spec layerSpec, inputs []int) ([]int, error) {
	switch spec.ClassName {
	case "Sequential":
		return b.sequential(spec.Config, inputs)
	case "Model", "Functional":
		return b.functional(spec.Config, inputs)
	}
	return nil, fmt.Errorf("%w: root class %q", ErrTopology, spec.ClassName)
}

func isModel(class string) bool {
	return class == "Sequential" || class == "Model" || class == "Functional"
}

func layerName(spec layerSpec, cfg layerConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return spec.Name
}

func (b *builder) sequential(raw json.RawMessage, inputs []int) ([]int, error) {
	var layers []layerSpec
	if err := json.Unmarshal(raw, &layers); err != nil {
		var wrapped struct {
			Layers []layerSpec `json:"layers"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: sequential config: %w", ErrTopology, err)
		}
		layers = wrapped.Layers
	}

	cur := inputs
	for _, l := range layers {
		if isModel(l.ClassName) {
			outs, err := b.model(l, cur)
			if err != nil {
				return nil, err
			}
			cur = outs
			continue
		}

		var cfg layerConfig
		if err := json.Unmarshal(l.Config, &cfg); err != nil {
			return nil, fmt.Errorf("%w: layer %s config: %w", ErrTopology, l.Name, err)
		}
		if l.ClassName == "InputLayer" {
			if len(cur) == 0 {
				idx, err := b.addInput(l, cfg)
				if err != nil {
					return nil, err
				}
				cur = []int{idx}
			}
			continue
		}
		if len(cur) == 0 {
			// the first layer of a Sequential may carry the input shape
			idx, err := b.addInput(layerSpec{Name: layerName(l, cfg) + "_input"}, cfg)
			if err != nil {
				return nil, err
			}
			cur = []int{idx}
		}

		o, err := newOp(l.ClassName, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %w", ErrTopology, layerName(l, cfg), err)
		}
		idx, err := b.add(layerName(l, cfg), o, cur[:1])
		if err != nil {
			return nil, err
		}
		cur = []int{idx}
	}
	if len(cur) == 0 {
		return nil, fmt.Errorf("%w: empty sequential model", ErrTopology)
	}
	return cur, nil
}

func (b *builder) functional(raw json.RawMessage, inputs []int) ([]int, error) {
	var cfg functionalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: functional config: %w", ErrTopology, err)
	}
	inNames, err := parseRefs(cfg.InputLayers)
	if err != nil {
		return nil, err
	}
	outNames, err := parseRefs(cfg.OutputLayers)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(cfg.Layers))
	for i, n := range inNames {
		if i < len(inputs) {
			byName[n] = inputs[i]
		}
	}

	for _, l := range cfg.Layers {
		if l.ClassName == "InputLayer" {
			if _, ok := byName[l.Name]; ok {
				continue
			}
			var lc layerConfig
			if err := json.Unmarshal(l.Config, &lc); err != nil {
				return nil, fmt.Errorf("%w: layer %s config: %w", ErrTopology, l.Name, err)
			}
			idx, err := b.addInput(l, lc)
			if err != nil {
				return nil, err
			}
			byName[l.Name] = idx
			continue
		}

		srcNames, err := parseInbound(l.InboundNodes)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %w", ErrTopology, l.Name, err)
		}
		srcs := make([]int, len(srcNames))
		for i, n := range srcNames {
			idx, ok := byName[n]
			if !ok {
				return nil, fmt.Errorf("%w: layer %s reads unknown layer %s", ErrTopology, l.Name, n)
			}
			srcs[i] = idx
		}

		if isModel(l.ClassName) {
			outs, err := b.model(l, srcs)
			if err != nil {
				return nil, err
			}
			byName[l.Name] = outs[0]
			continue
		}

		var lc layerConfig
		if err := json.Unmarshal(l.Config, &lc); err != nil {
			return nil, fmt.Errorf("%w: layer %s config: %w", ErrTopology, l.Name, err)
		}
		o, err := newOp(l.ClassName, lc)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %s: %w", ErrTopology, l.Name, err)
		}
		idx, err := b.add(l.Name, o, srcs)
		if err != nil {
			return nil, err
		}
		byName[l.Name] = idx
	}

	outs := make([]int, len(outNames))
	for i, n := range outNames {
		idx, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: output layer %s not found", ErrTopology, n)
		}
		outs[i] = idx
	}
	return outs, nil
}

// parseRefs reads [["name",0,0], ...] or a single ["name",0,0].
func parseRefs(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: layer refs: %w", ErrTopology, err)
	}
	if len(items) > 0 {
		var name string
		if json.Unmarshal(items[0], &name) == nil {
			return []string{name}, nil
		}
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		var ref []json.RawMessage
		var name string
		if err := json.Unmarshal(it, &ref); err != nil || len(ref) == 0 || json.Unmarshal(ref[0], &name) != nil {
			return nil, fmt.Errorf("%w: malformed layer ref %s", ErrTopology, it)
		}
		names = append(names, name)
	}
	return names, nil
}

// parseInbound returns the source layer names of a layer's first call.
// Both the list form [[["src",0,0,{}]]] and the keras_history form are read.
func parseInbound(raw json.RawMessage) ([]string, error) {
	var calls []json.RawMessage
	if err := json.Unmarshal(raw, &calls); err != nil || len(calls) == 0 {
		return nil, fmt.Errorf("missing inbound nodes")
	}
	first := bytes.TrimSpace(calls[0])
	if len(first) > 0 && first[0] == '[' {
		return parseRefs(first)
	}

	var tree any
	if err := json.Unmarshal(first, &tree); err != nil {
		return nil, err
	}
	var names []string
	collectHistory(tree, &names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no keras_history in inbound node")
	}
	return names, nil
}

func collectHistory(v any, names *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if h, ok := t["keras_history"].([]any); ok && len(h) > 0 {
			if name, ok := h[0].(string); ok {
				*names = append(*names, name)
				return
			}
		}
		// keep "args" ahead of "kwargs" so inputs come out in call order
		for _, k := range []string{"args", "config", "kwargs"} {
			if child, ok := t[k]; ok {
				collectHistory(child, names)
			}
		}
	case []any:
		for _, child := range t {
			collectHistory(child, names)
		}
	}
}
