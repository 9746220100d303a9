package paprika

import (
	"go.uber.org/zap"

	"github.com/paprikadb/paprika/internal/pagestore"
)

// CommitOptions is the durability level chosen at commit time, per
// spec.md §6.
type CommitOptions = pagestore.CommitOptions

const (
	CommitDataOnly    = pagestore.CommitDataOnly
	CommitDataAndRoot = pagestore.CommitDataAndRoot
	CommitNoFlush     = pagestore.CommitNoFlush
	CommitNoWrite     = pagestore.CommitNoWrite
)

// Config tunes the paged store, mirroring the teacher's Config struct
// for BTreeDisk: a plain value type built by the caller rather than
// loaded from an external file format, per SPEC_FULL.md §10.3.
type Config struct {
	// Dir/Name select the backing file in persistent mode; both are
	// ignored by OpenMemory.
	Dir  string
	Name string

	MaxReorgDepth uint32
	MaxSizeBytes  uint64

	DefaultCommitOptions CommitOptions
	Logger               *zap.Logger
}

func (c Config) toPagestore() pagestore.Config {
	return pagestore.Config{
		Dir:                  c.Dir,
		Name:                 c.Name,
		MaxReorgDepth:        c.MaxReorgDepth,
		MaxSizeBytes:         c.MaxSizeBytes,
		DefaultCommitOptions: c.DefaultCommitOptions,
		Logger:               c.Logger,
	}
}
