package hnsw

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// The on-disk form (index.hnsw, spec §6.1) is loaded fully into the same
// RAMHnsw structure used during construction rather than kept as a
// zero-copy mmap view: a graph's adjacency lists are small relative to the
// vectors they point at, so a load-once-on-open representation (the mapping
// is read via mmap-go the same way datastore.Open maps nodes.kv, then
// copied and unmapped) is preferred over hand-rolling an mmap-friendly
// adjacency encoding the spec does not require.

// Serialize encodes a built RAMHnsw to its on-disk byte form:
//
//	[u32 hasEntry][u32 entry][u32 entryLevel]
//	[u32 numLayers]
//	  per layer: [u32 numNodes] { [u32 addr][u32 degree]{u32 neighbor}... }
func Serialize(h *RAMHnsw) []byte {
	size := 4 + 4 + 4 + 4
	for _, layer := range h.neighbors {
		size += 4
		for _, neighbors := range layer {
			size += 4 + 4 + 4*len(neighbors)
		}
	}
	buf := make([]byte, size)
	off := 0
	if h.hasEntry {
		binary.LittleEndian.PutUint32(buf[off:], 1)
	}
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.entry)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.entryLevel))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(h.neighbors)))
	off += 4
	for _, layer := range h.neighbors {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(layer)))
		off += 4
		for addr, neighbors := range layer {
			binary.LittleEndian.PutUint32(buf[off:], addr)
			off += 4
			binary.LittleEndian.PutUint32(buf[off:], uint32(len(neighbors)))
			off += 4
			for _, n := range neighbors {
				binary.LittleEndian.PutUint32(buf[off:], n)
				off += 4
			}
		}
	}
	return buf
}

// WriteFile serializes and writes the graph to path.
func WriteFile(path string, h *RAMHnsw) error {
	return os.WriteFile(path, Serialize(h), 0o644)
}

// Deserialize decodes bytes produced by Serialize back into a traversable
// RAMHnsw (the struct doubles as both the mutable builder and the loaded
// read view, so a loaded graph accepts further Insert calls, as Merge does).
func Deserialize(cfg Config, retriever Retriever, buf []byte) (*RAMHnsw, error) {
	h := NewRAMHnsw(cfg, retriever, nil)
	off := 0
	need := func(n int) error {
		if off+n > len(buf) {
			return fmt.Errorf("hnsw: truncated graph file")
		}
		return nil
	}
	if err := need(16); err != nil {
		return nil, err
	}
	h.hasEntry = binary.LittleEndian.Uint32(buf[off:]) == 1
	off += 4
	h.entry = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.entryLevel = int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	numLayers := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4

	h.neighbors = make([]map[uint32][]uint32, numLayers)
	h.level = make(map[uint32]int)
	for l := 0; l < numLayers; l++ {
		if err := need(4); err != nil {
			return nil, err
		}
		numNodes := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		layer := make(map[uint32][]uint32, numNodes)
		for i := 0; i < numNodes; i++ {
			if err := need(8); err != nil {
				return nil, err
			}
			addr := binary.LittleEndian.Uint32(buf[off:])
			off += 4
			degree := int(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
			if err := need(4 * degree); err != nil {
				return nil, err
			}
			neighbors := make([]uint32, degree)
			for j := 0; j < degree; j++ {
				neighbors[j] = binary.LittleEndian.Uint32(buf[off:])
				off += 4
			}
			layer[addr] = neighbors
			if l > h.level[addr] || h.level[addr] == 0 {
				h.level[addr] = l
			}
		}
		h.neighbors[l] = layer
	}
	return h, nil
}

// OpenFile mmaps path and decodes it via Deserialize. The mapping is closed
// immediately after decoding: the loaded graph's traversal structures are plain Go
// maps/slices, not a view over the mapped bytes.
func OpenFile(path string, cfg Config, retriever Retriever) (*RAMHnsw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hnsw: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("hnsw: mmap %s: %w", path, err)
	}
	defer data.Unmap()

	buf := make([]byte, len(data))
	copy(buf, data)
	return Deserialize(cfg, retriever, buf)
}
