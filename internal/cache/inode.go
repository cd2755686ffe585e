// Package cache holds the live filesystem graph in memory and writes it
// through to a storage.Backend. It is the object cache of the design:
// an inode table, per-inode block maps, a dirty queue, and an identity
// map from inode number to backing record id.
package cache

import (
	"time"

	"github.com/lvkv/whenfs/internal/record"
)

// InodeID is a locally assigned, mount-lifetime-stable inode number.
// 1 always denotes the root directory.
type InodeID uint64

const RootInodeID InodeID = 1

type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

// Attr mirrors the standard attribute set a getattr/setattr upcall
// exchanges with the kernel.
type Attr struct {
	Size  uint64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
}

// Block is a fixed-maximum-size chunk of file content. Blocks carry no
// back-pointer to their owning inode; ownership is exclusively the
// inode's block map, keyed by index.
type Block struct {
	Index    uint64
	Data     []byte
	Dirty    bool
	RecordID *string
}

// Inode is the in-memory representation of one file or directory.
type Inode struct {
	ID   InodeID
	Kind Kind
	Attr Attr

	// Generation bumps on SetAttr, on Write, and on a directory when a
	// child is created in it, giving callers a cheap change-detection
	// counter independent of mtime's second resolution. Unlink, Rmdir and
	// Rename leave it unchanged.
	Generation uint64

	// Files: resident blocks by index. Absent entries within
	// [0, ceil(Size/blockSize)) are read as zero-filled until faulted in
	// from storage.
	Blocks map[uint64]*Block

	// Directories: child name to child inode number, plus the order
	// names were inserted so ReadDir can honor it.
	Entries map[string]InodeID
	order   []string

	// OpenCount tracks outstanding file handles; an inode is only
	// destroyed once both its link count and this reach zero.
	OpenCount int

	// dirty is true while this inode itself (attributes, entries, block
	// chain head) has unflushed changes.
	dirty bool
}

func newFileInode(id InodeID, mode uint32, uid, gid uint32, now time.Time) *Inode {
	return &Inode{
		ID:   id,
		Kind: KindFile,
		Attr: Attr{
			Atime: now, Mtime: now, Ctime: now,
			Mode: mode, Nlink: 1, Uid: uid, Gid: gid,
		},
		Blocks: make(map[uint64]*Block),
		dirty:  true,
	}
}

func newDirInode(id InodeID, mode uint32, uid, gid uint32, now time.Time) *Inode {
	return &Inode{
		ID:   id,
		Kind: KindDir,
		Attr: Attr{
			Atime: now, Mtime: now, Ctime: now,
			Mode: mode, Nlink: 2, Uid: uid, Gid: gid,
		},
		Entries: make(map[string]InodeID),
		dirty:   true,
	}
}

// addEntry records a new child name in insertion order. Caller holds the
// cache lock and has already verified the name is free.
func (in *Inode) addEntry(name string, child InodeID) {
	in.Entries[name] = child
	in.order = append(in.order, name)
}

// removeEntry deletes a child name, preserving the relative order of
// the remaining names.
func (in *Inode) removeEntry(name string) {
	delete(in.Entries, name)
	for i, n := range in.order {
		if n == name {
			in.order = append(in.order[:i], in.order[i+1:]...)
			break
		}
	}
}

// orderedNames returns child names in insertion order.
func (in *Inode) orderedNames() []string {
	return in.order
}

func (in *Inode) roleTag() record.Role {
	if in.Kind == KindDir {
		return record.RoleInodeDir
	}
	return record.RoleInodeFile
}
