package pmtiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxLeafDepth bounds directory recursion in a corrupt archive.
const maxLeafDepth = 3

// ErrNotFound is returned for tiles the archive does not contain.
var ErrNotFound = errors.New("pmtiles: tile not found")

// Reader serves tiles from a local archive.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	header HeaderV3
	root   []EntryV3

	mu     sync.Mutex
	leaves map[uint64][]EntryV3
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// NewReader reads the header and root directory from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	hb := make([]byte, HeaderV3LenBytes)
	if _, err := r.ReadAt(hb, 0); err != nil {
		return nil, fmt.Errorf("pmtiles: header: %w", err)
	}
	h, err := DeserializeHeader(hb)
	if err != nil {
		return nil, err
	}
	if h.SpecVersion != 3 {
		return nil, fmt.Errorf("pmtiles: unsupported version %d", h.SpecVersion)
	}
	rd := &Reader{r: r, header: h, leaves: make(map[uint64][]EntryV3)}
	rd.root, err = rd.directory(h.RootOffset, h.RootLength)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// Header returns the archive header.
func (rd *Reader) Header() HeaderV3 {
	return rd.header
}

// Metadata returns the decoded metadata JSON.
func (rd *Reader) Metadata() (map[string]any, error) {
	b, err := rd.read(rd.header.MetadataOffset, rd.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return DeserializeMetadata(b, rd.header.InternalCompression)
}

// Tile returns the stored (possibly compressed) bytes of tile z/x/y.
func (rd *Reader) Tile(z uint8, x, y uint32) ([]byte, error) {
	if z < rd.header.MinZoom || z > rd.header.MaxZoom {
		return nil, ErrNotFound
	}
	id := ZxyToID(z, x, y)
	entries := rd.root
	for depth := 0; depth <= maxLeafDepth; depth++ {
		e, ok := FindTile(entries, id)
		if !ok {
			return nil, ErrNotFound
		}
		if e.RunLength > 0 {
			return rd.read(rd.header.TileDataOffset+e.Offset, uint64(e.Length))
		}
		leaf, err := rd.leaf(e)
		if err != nil {
			return nil, err
		}
		entries = leaf
	}
	return nil, fmt.Errorf("pmtiles: directory nesting deeper than %d", maxLeafDepth)
}

func (rd *Reader) leaf(e EntryV3) ([]EntryV3, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if d, ok := rd.leaves[e.Offset]; ok {
		return d, nil
	}
	d, err := rd.directory(rd.header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
	if err != nil {
		return nil, err
	}
	rd.leaves[e.Offset] = d
	return d, nil
}

func (rd *Reader) directory(offset, length uint64) ([]EntryV3, error) {
	b, err := rd.read(offset, length)
	if err != nil {
		return nil, err
	}
	return DeserializeEntries(b, rd.header.InternalCompression)
}

func (rd *Reader) read(offset, length uint64) ([]byte, error) {
	b := make([]byte, length)
	n, err := rd.r.ReadAt(b, int64(offset))
	if n == len(b) {
		return b, nil
	}
	return nil, fmt.Errorf("pmtiles: read %d@%d: %w", length, offset, err)
}

// Close releases the underlying file, if the reader opened one.
func (rd *Reader) Close() error {
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}
