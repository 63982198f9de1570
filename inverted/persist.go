package inverted

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// writePostingFile serializes a label/key -> posting map to the simple
// length-prefixed format used for labels.idx and deletions.idx (spec §6.1):
//
//	[u32 n, the paragraph count the postings were built against]
//	[u32 numKeys] { [u32 keyLen][key][u32 postingLen]{u32 addr}... }...
func writePostingFile(path string, n int, m map[string][]uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("inverted: create %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(n))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(m)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for key, posting := range m {
		if err := writeLenPrefixed(w, []byte(key)); err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(posting)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		for _, addr := range posting {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], addr)
			if _, err := w.Write(b[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func writeLenPrefixed(w *bufio.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readPostingFile(path string) (n int, m map[string][]uint32, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("inverted: read %s: %w", path, err)
	}
	r := byteReader{buf: data}
	nRaw, err := r.u32()
	if err != nil {
		return 0, nil, err
	}
	numKeys, err := r.u32()
	if err != nil {
		return 0, nil, err
	}
	m = make(map[string][]uint32, numKeys)
	for i := 0; i < int(numKeys); i++ {
		key, err := r.lenPrefixed()
		if err != nil {
			return 0, nil, err
		}
		postingLen, err := r.u32()
		if err != nil {
			return 0, nil, err
		}
		posting := make([]uint32, postingLen)
		for j := range posting {
			posting[j], err = r.u32()
			if err != nil {
				return 0, nil, err
			}
		}
		m[string(key)] = posting
	}
	return int(nRaw), m, nil
}

type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) u32() (uint32, error) {
	if r.off+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *byteReader) lenPrefixed() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.off+int(n) > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

// WriteFiles persists labels and deletion keys to labelsPath/deletionsPath.
func (idx *Indexes) WriteFiles(labelsPath, deletionsPath string) error {
	if err := writePostingFile(labelsPath, idx.n, idx.Labels); err != nil {
		return err
	}
	return writePostingFile(deletionsPath, idx.n, idx.DeletionKeys)
}

// ReadFiles loads labels and deletion keys back from disk.
func ReadFiles(labelsPath, deletionsPath string) (*Indexes, error) {
	n, labels, err := readPostingFile(labelsPath)
	if err != nil {
		return nil, err
	}
	_, deletions, err := readPostingFile(deletionsPath)
	if err != nil {
		return nil, err
	}
	return &Indexes{Labels: labels, DeletionKeys: deletions, n: n}, nil
}
