package cache

import (
	"context"
	"fmt"
	"sync"
	"syscall"

	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/logger"
	"github.com/lvkv/whenfs/internal/record"
	"github.com/lvkv/whenfs/internal/storage"
)

// DefaultBlockSize is used for brand-new volumes and persisted in the
// root record so a later build can recognize an existing volume's
// choice even if the default changes.
const DefaultBlockSize = 1024

// IncompatibleVolumeError means the root record's format version is
// newer than this build understands. Mounting must fail.
type IncompatibleVolumeError struct {
	Found, Supported byte
}

func (e *IncompatibleVolumeError) Error() string {
	return fmt.Sprintf("cache: volume format version %d unsupported (this build supports up to %d)", e.Found, e.Supported)
}

// Cache is the write-through object cache: the in-memory filesystem
// graph, guarded by one coarse lock, backed by a storage.Backend.
type Cache struct {
	mu sync.Mutex

	backend   storage.Backend
	clock     clock.Clock
	blockSize int

	inodes      map[InodeID]*Inode
	nextInodeID InodeID

	// identity maps an inode number to its backing record id, once
	// assigned at first flush. Entries never change once set.
	identity map[InodeID]string

	rootRecordID string

	dirty    *dirtyQueue
	flusherC chan struct{}
}

// New creates the cache for a brand-new, empty volume: just a root
// directory inode, nothing flushed yet. blockSize sizes every file's
// blocks for the life of the volume; a value <= 0 falls back to
// DefaultBlockSize.
func New(backend storage.Backend, clk clock.Clock, blockSize int) *Cache {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	c := &Cache{
		backend:     backend,
		clock:       clk,
		blockSize:   blockSize,
		inodes:      make(map[InodeID]*Inode),
		nextInodeID: RootInodeID + 1,
		identity:    make(map[InodeID]string),
		dirty:       newDirtyQueue(),
	}

	root := newDirInode(RootInodeID, 0755, 0, 0, clk.Now())
	c.inodes[RootInodeID] = root
	c.dirty.pushInode(RootInodeID)
	return c
}

// Mount reconstructs a cache from an existing volume by scanning every
// record in the backend, per the mount-recovery discipline: classify by
// role, reassemble inode chains, attach blocks. The only invariant it
// checks is that the root directory inode is present.
func Mount(ctx context.Context, backend storage.Backend, rootHint string) (*Cache, error) {
	rootID, err := backend.RootOf(ctx, rootHint)
	if err != nil {
		return nil, err
	}

	chain, err := fetchChain(ctx, backend, rootID)
	if err != nil {
		return nil, err
	}
	role, payload, err := record.DecodeChain(chain)
	if err != nil {
		return nil, err
	}
	if role != record.RoleRoot {
		return nil, fmt.Errorf("cache: record %s is not a root record", rootID)
	}
	root, err := decodeRoot(payload)
	if err != nil {
		return nil, err
	}
	if root.FormatVersion > record.FormatVersion {
		return nil, &IncompatibleVolumeError{Found: root.FormatVersion, Supported: record.FormatVersion}
	}

	c := &Cache{
		backend:      backend,
		clock:        clock.RealClock{},
		blockSize:    root.BlockSize,
		inodes:       make(map[InodeID]*Inode),
		nextInodeID:  InodeID(root.RootInode) + 1,
		identity:     make(map[InodeID]string),
		rootRecordID: rootID,
		dirty:        newDirtyQueue(),
	}
	if c.blockSize == 0 {
		c.blockSize = DefaultBlockSize
	}

	records, errc := backend.Scan(ctx)
	blockByRecordID := make(map[string][]byte)
	inodeTableIDs := make([]string, 0)
	seen := make(map[string]bool)

	for rec := range records {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		switch rec.Role {
		case record.RoleBlock:
			_, payload, err := record.DecodeFrame(rec.Frame)
			if err != nil {
				logger.Warnf("cache: skipping corrupt block record %s: %v", rec.ID, err)
				continue
			}
			blockByRecordID[rec.ID] = payload
		case record.RoleInodeFile, record.RoleInodeDir:
			inodeTableIDs = append(inodeTableIDs, rec.ID)
		case record.RoleRoot:
			// already consumed above.
		}
	}
	if err := <-errc; err != nil {
		return nil, err
	}

	for _, id := range inodeTableIDs {
		chain, err := fetchChain(ctx, backend, id)
		if err != nil {
			logger.Warnf("cache: skipping unreadable inode record %s: %v", id, err)
			continue
		}
		_, payload, err := record.DecodeChain(chain)
		if err != nil {
			logger.Warnf("cache: skipping corrupt inode record %s: %v", id, err)
			continue
		}
		in, err := decodeInode(payload)
		if err != nil {
			logger.Warnf("cache: skipping unparseable inode record %s: %v", id, err)
			continue
		}

		if in.Kind == KindFile {
			for idx, ref := range in.Blocks {
				if ref.RecordID == nil {
					continue
				}
				data, ok := blockByRecordID[*ref.RecordID]
				if !ok {
					logger.Warnf("cache: inode %d missing block %d (record %s)", in.ID, idx, *ref.RecordID)
					continue
				}
				in.Blocks[idx] = &Block{Index: idx, Data: data, RecordID: ref.RecordID}
			}
		}

		c.inodes[in.ID] = in
		c.identity[in.ID] = id
		if in.ID >= c.nextInodeID {
			c.nextInodeID = in.ID + 1
		}
	}

	if _, ok := c.inodes[RootInodeID]; !ok {
		return nil, fmt.Errorf("cache: root directory inode missing from scanned volume")
	}

	return c, nil
}

func fetchChain(ctx context.Context, backend storage.Backend, headID string) ([]string, error) {
	var frames []string
	id := headID
	for id != "" {
		rec, err := backend.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		frames = append(frames, rec.Frame)
		if rec.Next == nil {
			break
		}
		id = *rec.Next
	}
	return frames, nil
}

// Lookup resolves a child inode by name within parent.
func (c *Cache) Lookup(parent InodeID, name string) (InodeID, Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.inodes[parent]
	if !ok || p.Kind != KindDir {
		return 0, Attr{}, syscall.ENOTDIR
	}
	child, ok := p.Entries[name]
	if !ok {
		return 0, Attr{}, syscall.ENOENT
	}
	in, ok := c.inodes[child]
	if !ok {
		return 0, Attr{}, syscall.ENOENT
	}
	return child, in.Attr, nil
}

func (c *Cache) GetAttr(ino InodeID) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return Attr{}, syscall.ENOENT
	}
	return in.Attr, nil
}

// SetAttrRequest carries only the fields the caller wants changed.
type SetAttrRequest struct {
	Size  *uint64
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Atime *Attr
}

func (c *Cache) SetAttr(ino InodeID, size *uint64, mode *uint32) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return Attr{}, syscall.ENOENT
	}

	if mode != nil {
		in.Attr.Mode = *mode
	}
	if size != nil {
		c.resizeLocked(in, *size)
	}
	in.Attr.Ctime = c.clock.Now()
	in.Generation++
	c.markDirtyLocked(in)

	return in.Attr, nil
}

// resizeLocked truncates or zero-extends in to newSize. Caller holds c.mu.
func (c *Cache) resizeLocked(in *Inode, newSize uint64) {
	oldBlocks := blockCount(in.Attr.Size, c.blockSize)
	newBlocks := blockCount(newSize, c.blockSize)

	if newSize < in.Attr.Size {
		// Shrinking: drop now-out-of-range blocks, trim the boundary block.
		// A block already flushed gets its backing record queued for
		// deletion so truncation doesn't orphan it in the backend.
		for idx, b := range in.Blocks {
			if idx >= newBlocks {
				if b.RecordID != nil {
					c.dirty.push(dirtyItem{kind: dirtyDelete, ino: in.ID, block: idx, recordID: *b.RecordID})
				}
				delete(in.Blocks, idx)
			}
		}
		if newBlocks > 0 {
			boundary := newBlocks - 1
			if b, ok := in.Blocks[boundary]; ok {
				keep := int(newSize - boundary*uint64(c.blockSize))
				if keep < len(b.Data) {
					b.Data = b.Data[:keep]
					b.Dirty = true
					c.dirty.pushBlock(in.ID, boundary)
				}
			}
		}
	} else if newSize > in.Attr.Size && oldBlocks > 0 {
		// Growing without new writes: the old boundary block may need
		// zero-padding up to the block size before the gap opens.
		boundary := oldBlocks - 1
		if b, ok := in.Blocks[boundary]; ok && len(b.Data) < c.blockSize {
			full := make([]byte, c.blockSize)
			copy(full, b.Data)
			b.Data = full
			b.Dirty = true
			c.dirty.pushBlock(in.ID, boundary)
		}
	}

	in.Attr.Size = newSize
	in.Attr.Mtime = c.clock.Now()
}

func blockCount(size uint64, blockSize int) uint64 {
	if size == 0 {
		return 0
	}
	return (size + uint64(blockSize) - 1) / uint64(blockSize)
}

type DirEntry struct {
	Name string
	Ino  InodeID
	Kind Kind
}

// ReadDir emits ".", "..", then entries in insertion order, starting at
// the given offset (an index into that synthesized sequence).
func (c *Cache) ReadDir(ino InodeID, offset int) ([]DirEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return nil, syscall.ENOENT
	}
	if in.Kind != KindDir {
		return nil, syscall.ENOTDIR
	}

	all := make([]DirEntry, 0, len(in.Entries)+2)
	all = append(all, DirEntry{Name: ".", Ino: ino, Kind: KindDir})
	all = append(all, DirEntry{Name: "..", Ino: ino, Kind: KindDir})
	for _, name := range in.orderedNames() {
		child := in.Entries[name]
		childKind := KindFile
		if ci, ok := c.inodes[child]; ok {
			childKind = ci.Kind
		}
		all = append(all, DirEntry{Name: name, Ino: child, Kind: childKind})
	}

	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:], nil
}
