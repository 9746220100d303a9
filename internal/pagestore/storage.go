package pagestore

import (
	"fmt"
	"os"

	"github.com/paprikadb/paprika/internal/page"
	"github.com/paprikadb/paprika/internal/sys"
)

// storage owns the raw byte region backing every page, addressed as a
// flat array of page.Size-byte slots. Grounded on the teacher's
// mmapPageStorage, generalized from a variable system page size to
// the engine's fixed 4096-byte page.
type storage interface {
	// pageBytes returns a page.Size-length view over addr's bytes. The
	// returned slice aliases the backing region directly; mutating it
	// mutates the store.
	pageBytes(addr page.Address) []byte
	pageCount() uint64
	// grow ensures the region holds at least toPageCount pages.
	grow(toPageCount uint64) error
	sync() error
	close() error
}

// memStorage is the open_memory backing: a plain growable byte slice,
// never synced.
type memStorage struct {
	buf []byte
}

func newMemStorage(sizeBytes uint64) *memStorage {
	pages := sizeBytes / page.Size
	if pages < 1 {
		pages = 1
	}
	return &memStorage{buf: make([]byte, pages*page.Size)}
}

func (m *memStorage) pageBytes(addr page.Address) []byte {
	off := uint64(addr) * page.Size
	return m.buf[off : off+page.Size]
}

func (m *memStorage) pageCount() uint64 { return uint64(len(m.buf)) / page.Size }

func (m *memStorage) grow(toPageCount uint64) error {
	if toPageCount <= m.pageCount() {
		return nil
	}
	grown := make([]byte, toPageCount*page.Size)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *memStorage) sync() error  { return nil }
func (m *memStorage) close() error { return nil }

// mmapStorage is the open_persistent backing: a memory-mapped file
// growing the way the teacher's mmapPageStorage.grow does (double
// below 1 GiB, then grow by a flat 1 GiB), but in page.Size units.
type mmapStorage struct {
	file *os.File
	dat  []byte
}

func openMMapStorage(path string, minSizeBytes uint64) (*mmapStorage, error) {
	f, err := sys.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("pagestore: open %q: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagestore: stat %q: %w", path, err)
	}
	m := &mmapStorage{file: f}
	fileSize := uint64(stat.Size())
	if fileSize == 0 {
		initial := minSizeBytes
		if initial < page.Size {
			initial = page.Size
		}
		initial = (initial + page.Size - 1) / page.Size * page.Size
		if err := f.Truncate(int64(initial)); err != nil {
			f.Close()
			return nil, fmt.Errorf("pagestore: truncate %q: %w", path, err)
		}
		fileSize = initial
	}
	m.dat, err = sys.MMap(f, fileSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagestore: mmap %q: %w", path, err)
	}
	return m, nil
}

func (m *mmapStorage) pageBytes(addr page.Address) []byte {
	off := uint64(addr) * page.Size
	return m.dat[off : off+page.Size]
}

func (m *mmapStorage) pageCount() uint64 { return uint64(len(m.dat)) / page.Size }

func (m *mmapStorage) grow(toPageCount uint64) error {
	if toPageCount <= m.pageCount() {
		return nil
	}
	newSize := uint64(len(m.dat)) * 2
	want := toPageCount * page.Size
	if newSize < want {
		newSize = want
	}
	if newSize > 1<<30 && newSize-uint64(len(m.dat)) > 1<<30 {
		newSize = uint64(len(m.dat)) + 1<<30
		if newSize < want {
			newSize = want
		}
	}
	if err := m.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("pagestore: truncate: %w", err)
	}
	dat, err := sys.Remap(m.file, newSize, m.dat)
	if err != nil {
		return fmt.Errorf("pagestore: remap: %w", err)
	}
	m.dat = dat
	return nil
}

func (m *mmapStorage) sync() error {
	return m.file.Sync()
}

func (m *mmapStorage) close() error {
	if err := sys.MUnmap(m.file, m.dat); err != nil {
		return err
	}
	m.dat = nil
	return m.file.Close()
}
