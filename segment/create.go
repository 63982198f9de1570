package segment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shardstore/shardcore/bitset"
	"github.com/shardstore/shardcore/datastore"
	"github.com/shardstore/shardcore/hnsw"
	"github.com/shardstore/shardcore/inverted"
	"github.com/shardstore/shardcore/vectype"
)

// Create builds a brand new segment directory from a batch of paragraphs.
// Paragraph order becomes paragraph address order, and vector address order
// follows from it (datastore's derived vector index).
func Create(dir string, inputs []Input, cfg Config) (*Segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segment: mkdir %s: %w", dir, err)
	}
	if cfg.ForceDataStoreV1 {
		for i, in := range inputs {
			if len(in.Vectors) != 1 {
				return nil, fmt.Errorf("%w: paragraph %d has %d vectors, data store v1 requires exactly 1", ErrConfigInconsistent, i, len(in.Vectors))
			}
		}
	}
	for i, in := range inputs {
		for j, v := range in.Vectors {
			if len(v) != cfg.VectorType.Dimension {
				return nil, fmt.Errorf("%w: paragraph %d vector %d has %d dimensions, configured dimension is %d", ErrConfigInconsistent, i, j, len(v), cfg.VectorType.Dimension)
			}
		}
	}

	paragraphs := make([]datastore.Paragraph, len(inputs))
	idx := inverted.New(len(inputs))
	for i, in := range inputs {
		vectors := in.Vectors
		if cfg.NormalizeVectors {
			normalized := make([][]float32, len(vectors))
			for j, v := range vectors {
				normalized[j] = vectype.Normalize(v)
			}
			vectors = normalized
		}
		paragraphs[i] = datastore.Paragraph{
			Key:      in.Key,
			Metadata: in.Metadata,
			Labels:   in.Labels,
			Vectors:  vectors,
		}
		for _, l := range in.Labels {
			idx.AddLabel(l, uint32(i))
		}
		if in.DeletionKey != "" {
			idx.AddDeletionKey(in.DeletionKey, uint32(i))
		}
	}

	nodesPath, indexPath, labelsPath, deletionsPath, metaPath := paths(dir)

	ds, err := datastore.Create(nodesPath, paragraphs, cfg.VectorType, cfg.Alignment)
	if err != nil {
		return nil, err
	}

	r := &retriever{ds: ds, simFunc: cfg.Similarity.Func()}
	graph := buildHNSWWith(ds, cfg, r)
	if err := hnsw.WriteFile(indexPath, graph); err != nil {
		return nil, err
	}
	if err := idx.WriteFiles(labelsPath, deletionsPath); err != nil {
		return nil, err
	}

	meta := Meta{
		VectorType:       cfg.VectorType,
		Similarity:       cfg.Similarity,
		NormalizeVectors: cfg.NormalizeVectors,
		ParagraphCount:   ds.StoredParagraphCount(),
		VectorCount:      ds.StoredVectorCount(),
		Tags:             cfg.Tags,
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return nil, err
	}

	return &Segment{
		dir:     dir,
		cfg:     cfg,
		Meta:    meta,
		Data:    ds,
		Graph:   graph,
		Indexes: idx,
		Alive:   bitset.New(ds.StoredParagraphCount(), true),
		retr:    r,
	}, nil
}

func buildHNSWWith(ds *datastore.DataStore, cfg Config, r *retriever) *hnsw.RAMHnsw {
	graph := hnsw.NewRAMHnsw(cfg.HNSW, r, nil)
	for v := 0; v < ds.StoredVectorCount(); v++ {
		graph.Insert(uint32(v))
	}
	return graph
}

func writeMeta(path string, m Meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readMeta(path string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("segment: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("segment: parse %s: %w", path, err)
	}
	return m, nil
}

// Open mmaps an existing segment directory and rebuilds its all-alive
// bitset (spec §4.2: the alive bitset is not persisted; it starts all-ones
// on every open and only the next Merge makes a deletion permanent).
func Open(dir string, cfg Config) (*Segment, error) {
	nodesPath, indexPath, labelsPath, deletionsPath, metaPath := paths(dir)

	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	ds, err := datastore.Open(nodesPath, meta.VectorType)
	if err != nil {
		return nil, err
	}
	idx, err := inverted.ReadFiles(labelsPath, deletionsPath)
	if err != nil {
		ds.Close()
		return nil, err
	}
	r := &retriever{ds: ds, simFunc: cfg.Similarity.Func()}
	graph, err := hnsw.OpenFile(indexPath, cfg.HNSW, r)
	if err != nil {
		ds.Close()
		return nil, err
	}

	return &Segment{
		dir:     dir,
		cfg:     cfg,
		Meta:    meta,
		Data:    ds,
		Graph:   graph,
		Indexes: idx,
		Alive:   bitset.New(meta.ParagraphCount, true),
		retr:    r,
	}, nil
}
