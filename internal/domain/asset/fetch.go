package asset

import (
	"context"
	"fmt"
	"strings"
)

// Store is a black-box asset source keyed by URL.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Resolve joins a base location and a file name.
func Resolve(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(name, "/")
}

// Fetch downloads the topology, every weight blob it references and the
// label metadata. Either all of it succeeds or ErrModelUnavailable is
// returned with no asset.
func Fetch(ctx context.Context, store Store, layout Layout, base string) (*ModelAsset, error) {
	topology, err := store.Fetch(ctx, Resolve(base, layout.TopologyFile))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrModelUnavailable, layout.TopologyFile, err)
	}

	paths, err := layout.WeightPaths(topology)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	weights := make(map[string][]byte, len(paths)+1)
	if len(paths) == 0 {
		weights[layout.TopologyFile] = topology
	}
	for _, p := range paths {
		blob, err := store.Fetch(ctx, Resolve(base, p))
		if err != nil {
			return nil, fmt.Errorf("%w: fetch weights %s: %w", ErrModelUnavailable, p, err)
		}
		weights[p] = blob
	}

	rawMeta, err := store.Fetch(ctx, Resolve(base, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrModelUnavailable, MetadataFile, err)
	}
	meta, err := ParseMetadata(rawMeta)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	return New(layout.Format, topology, weights, meta.Labels)
}
