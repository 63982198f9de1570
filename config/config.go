// Package config assembles and validates the enumerated configuration
// values a shard's segments and graph index are built against (spec §6.4),
// following the teacher's own `apoc.LoadConfig`/`DefaultConfig` pattern: a
// plain struct, a loader function, and a Validate step the caller runs
// before the config is handed to `segment`/`graph`.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/segment"
	"github.com/shardstore/shardcore/vectype"
)

// Cardinality selects whether a shard's vectors are single- or multi-vector
// per paragraph, which in turn selects the maxsim search path (spec §6.4
// "vector_cardinality").
type Cardinality int

const (
	// Single means exactly one vector per paragraph.
	Single Cardinality = iota
	// Multi means a paragraph may carry more than one vector, searched via
	// the maxsim rescoring path.
	Multi
)

// Flag is one of the closed set of boolean feature flags spec §6.4 names.
type Flag string

// ForceDataStoreV1 selects the legacy single-vector-only on-disk layout
// (spec §6.4 "flags contains FORCE_DATA_STORE_V1").
const ForceDataStoreV1 Flag = "FORCE_DATA_STORE_V1"

// Config is the full set of configuration values a shard is built from.
type Config struct {
	VectorType struct {
		Dimension int         `yaml:"dimension"`
		Kind      vectype.Kind `yaml:"kind"`
	} `yaml:"vector_type"`
	Similarity       vectype.Similarity `yaml:"similarity"`
	NormalizeVectors bool               `yaml:"normalize_vectors"`
	VectorCardinality Cardinality       `yaml:"vector_cardinality"`
	Flags            []Flag            `yaml:"flags"`

	// HNSW tuning (spec §4.3/§4.4).
	HNSW hnsw.Config `yaml:"hnsw"`

	// Graph tuning (spec §4.7): a default fuzzy-match edit distance and a
	// facet depth limit. They are loaded and checked by Validate; the graph
	// package does not read them.
	Graph GraphConfig `yaml:"graph"`
}

// GraphConfig tunes the relations path-query index.
type GraphConfig struct {
	DefaultFuzzyDistance int `yaml:"default_fuzzy_distance"`
	MaxFacetDepth        int `yaml:"max_facet_depth"`
}

// Default returns the configuration a new shard uses absent an explicit
// override: dense f32 vectors, cosine similarity, single-vector cardinality,
// no flags, and the library's own HNSW defaults.
func Default() Config {
	var cfg Config
	cfg.VectorType.Dimension = 768
	cfg.VectorType.Kind = vectype.DenseF32
	cfg.Similarity = vectype.SimilarityCosine
	cfg.NormalizeVectors = false
	cfg.VectorCardinality = Single
	cfg.HNSW = hnsw.DefaultConfig()
	cfg.Graph = GraphConfig{DefaultFuzzyDistance: 1, MaxFacetDepth: 16}
	return cfg
}

// LoadFile reads a YAML configuration file, following the teacher's
// `apoc.LoadConfig` (read file, yaml.Unmarshal). It starts from Default() and
// unmarshals the file on top of it, so fields the file leaves unset keep
// their default values.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// HasFlag reports whether the given flag is set.
func (c Config) HasFlag(f Flag) bool {
	for _, have := range c.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// ErrConfigInconsistent is the spec §7 "ConfigInconsistent" error kind:
// returned by Validate when two configuration values contradict each other.
var ErrConfigInconsistent = fmt.Errorf("config: inconsistent configuration")

// Validate rejects configuration combinations the rest of the module cannot
// honor: FORCE_DATA_STORE_V1 requires Single cardinality (spec §4.5.3 step 4:
// "v1 only merges from v1 and is single-vector"), and the dimension must be
// positive.
func (c Config) Validate() error {
	if c.VectorType.Dimension <= 0 {
		return fmt.Errorf("%w: vector_type.dimension must be positive, got %d", ErrConfigInconsistent, c.VectorType.Dimension)
	}
	if c.HasFlag(ForceDataStoreV1) && c.VectorCardinality != Single {
		return fmt.Errorf("%w: FORCE_DATA_STORE_V1 requires vector_cardinality=Single", ErrConfigInconsistent)
	}
	if c.Graph.DefaultFuzzyDistance < 0 {
		return fmt.Errorf("%w: graph.default_fuzzy_distance must not be negative", ErrConfigInconsistent)
	}
	if c.Graph.MaxFacetDepth < 0 {
		return fmt.Errorf("%w: graph.max_facet_depth must not be negative", ErrConfigInconsistent)
	}
	return nil
}

// SegmentConfig converts this configuration into the shape segment.Create,
// segment.Open, and segment.Merge actually take, attaching the tags and
// record alignment that are per-segment rather than per-shard concerns
// (spec §6.4: the enumerated configuration values feed segment
// construction).
func (c Config) SegmentConfig(tags []string, alignment int) segment.Config {
	return segment.Config{
		VectorType:       vectype.Type{Kind: c.VectorType.Kind, Dimension: c.VectorType.Dimension},
		Similarity:       c.Similarity,
		NormalizeVectors: c.NormalizeVectors,
		HNSW:             c.HNSW,
		Alignment:        alignment,
		ForceDataStoreV1: c.HasFlag(ForceDataStoreV1),
		Tags:             tags,
	}
}
