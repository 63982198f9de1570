package datastore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// store is the generic on-disk record file described by spec §4.1: a
// little-endian header holding the record count, a pointer table of absolute
// byte offsets, and a run of aligned, self-delimiting records. It knows
// nothing about what a record means — that's recordView's job — only how to
// lay bytes out and mmap them back.
//
// File layout:
//
//	[u32 count]
//	[count * u64 absolute offset into the file]
//	[padding to alignment][record 0][padding to alignment][record 1]...
type store struct {
	path      string
	data      mmap.MMap
	file      *os.File
	count     int
	offsets   []uint64
	bodyStart uint64
}

const headerAlign = 8

func alignUp(n, alignment int) int {
	if alignment <= 1 {
		return n
	}
	rem := n % alignment
	if rem == 0 {
		return n
	}
	return n + (alignment - rem)
}

// createStore writes records to path in producer order, padding each record's
// start to alignment bytes, and returns the absolute offsets assigned to each
// record (same order as the input slice).
func createStore(path string, records [][]byte, alignment int) ([]uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("datastore: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	header := make([]byte, 4+8*len(records))
	binary.LittleEndian.PutUint32(header, uint32(len(records)))

	offsets := make([]uint64, len(records))
	pos := alignUp(len(header), alignment)
	for i, r := range records {
		offsets[i] = uint64(pos)
		pos += len(r)
		pos = alignUp(pos, alignment)
	}
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(header[4+8*i:], off)
	}
	if _, err := w.Write(header); err != nil {
		return nil, err
	}

	written := len(header)
	for i, r := range records {
		if pad := int(offsets[i]) - written; pad > 0 {
			if _, err := w.Write(make([]byte, pad)); err != nil {
				return nil, err
			}
			written += pad
		}
		if _, err := w.Write(r); err != nil {
			return nil, err
		}
		written += len(r)
	}
	if pad := alignUp(written, alignment) - written; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return offsets, nil
}

// openStore mmaps path read-only and parses its header and pointer table.
func openStore(path string) (*store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s: %w", path, err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("datastore: mmap %s: %w", path, err)
	}

	if len(data) < 4 {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("datastore: %s too short for header", path)
	}
	count := int(binary.LittleEndian.Uint32(data[:4]))
	needed := 4 + 8*count
	if len(data) < needed {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("datastore: %s pointer table truncated", path)
	}
	offsets := make([]uint64, count)
	for i := 0; i < count; i++ {
		offsets[i] = binary.LittleEndian.Uint64(data[4+8*i:])
	}

	return &store{
		path:      path,
		data:      data,
		file:      f,
		count:     count,
		offsets:   offsets,
		bodyStart: uint64(needed),
	}, nil
}

// recordBytes returns the raw bytes starting at record id's offset and
// running to the end of the mapping; callers parse the exact length off the
// front via their own interpreter (readExact).
func (s *store) recordBytes(id int) []byte {
	return s.data[s.offsets[id]:]
}

func (s *store) close() error {
	if err := s.data.Unmap(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *store) sizeBytes() int64 {
	fi, err := s.file.Stat()
	if err != nil {
		return int64(len(s.data))
	}
	return fi.Size()
}

// mergeProducer is one input to mergeStores: a store plus a keep predicate
// evaluated once per record, in ascending record-index order.
type mergeProducer struct {
	s    *store
	keep func(localIdx int, record []byte) bool
}

// mergeStores concatenates the kept records of each producer, in producer
// order and in each producer's own record order, reproducing spec §4.1's
// merge guarantee: "the merged store preserves producer order and
// within-producer order; no record is globally re-sorted." recordLen parses
// one record's length off the front of a buffer (the same boundary logic as
// the interpreter's read_exact).
//
// onKeep, if non-nil, is invoked for every kept record with
// (producerIdx, localIdx, newAddr) so callers can build an old->new address
// remap without a second pass.
func mergeStores(path string, producers []mergeProducer, alignment int, recordLen func([]byte) (int, error), onKeep func(producerIdx, localIdx, newAddr int)) error {
	var kept [][]byte
	for pi, p := range producers {
		for li := 0; li < p.s.count; li++ {
			raw := p.s.recordBytes(li)
			n, err := recordLen(raw)
			if err != nil {
				return fmt.Errorf("datastore: merge: producer %d record %d: %w", pi, li, err)
			}
			record := raw[:n]
			if !p.keep(li, record) {
				continue
			}
			newAddr := len(kept)
			kept = append(kept, record)
			if onKeep != nil {
				onKeep(pi, li, newAddr)
			}
		}
	}
	_, err := createStore(path, kept, alignment)
	return err
}
