// Package fsadapter implements the jacobsa/fuse FileSystem interface on
// top of internal/cache, translating kernel upcalls into cache
// operations and cache errors into the errno values the kernel expects.
package fsadapter

import (
	"os"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/logger"
)

// FileSystem adapts a cache.Cache to fuseutil.FileSystem. It holds no
// filesystem state of its own beyond open-handle bookkeeping; all
// locking and invariant enforcement live in the cache.
type FileSystem struct {
	cache *cache.Cache

	mu         sync.Mutex
	nextHandle fuseops.HandleID
	fileHandle map[fuseops.HandleID]cache.InodeID
	dirHandle  map[fuseops.HandleID]cache.InodeID
}

// New wraps c for use as a fuse.Server via fuseutil.NewFileSystemServer.
func New(c *cache.Cache) *FileSystem {
	return &FileSystem{
		cache:      c,
		nextHandle: 1,
		fileHandle: make(map[fuseops.HandleID]cache.InodeID),
		dirHandle:  make(map[fuseops.HandleID]cache.InodeID),
	}
}

func (fs *FileSystem) allocHandle() fuseops.HandleID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.nextHandle
	fs.nextHandle++
	return h
}

// toAttr converts the cache's attribute record to the kernel's.
func toAttr(a cache.Attr) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: uint64(a.Nlink),
		Mode:  os.FileMode(a.Mode),
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
		Uid:   a.Uid,
		Gid:   a.Gid,
	}
}

// childEntry builds a ChildInodeEntry for a freshly looked-up or created
// child. Generation is always 1: inode numbers are never reused within a
// mount's lifetime, so the kernel never needs to distinguish generations.
func childEntry(ino cache.InodeID, a cache.Attr) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(ino),
		Generation: 1,
		Attributes: toAttr(a),
	}
}

func (fs *FileSystem) Destroy() {
	logger.Infof("fsadapter: unmounting")
}

var _ fuseutil.FileSystem = (*FileSystem)(nil)
