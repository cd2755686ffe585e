package cache

import (
	"encoding/json"
	"time"
)

// wireInode and wireRoot are the JSON shapes flushed into the payload of
// inode-file/inode-dir and root records respectively. The codec itself
// is agnostic to payload shape; this is the cache's own encoding of "an
// inode" and "the root" into the bytes record.EncodeChain chains up.
type wireInode struct {
	ID      uint64            `json:"id"`
	Kind    Kind              `json:"kind"`
	Size    uint64            `json:"size"`
	Atime   time.Time         `json:"atime"`
	Mtime   time.Time         `json:"mtime"`
	Ctime   time.Time         `json:"ctime"`
	Mode    uint32            `json:"mode"`
	Nlink   uint32            `json:"nlink"`
	Uid     uint32            `json:"uid"`
	Gid     uint32            `json:"gid"`
	Blocks  []wireBlockRef    `json:"blocks,omitempty"`
	Entries map[string]uint64 `json:"entries,omitempty"`
	Order   []string          `json:"order,omitempty"`
}

type wireBlockRef struct {
	Index    uint64 `json:"index"`
	RecordID string `json:"record_id"`
}

type wireRoot struct {
	FormatVersion byte   `json:"format_version"`
	BlockSize     int    `json:"block_size"`
	RootInode     uint64 `json:"root_inode"`
	InodeTableID  string `json:"inode_table_id"`
}

func encodeInode(in *Inode) []byte {
	w := wireInode{
		ID: uint64(in.ID), Kind: in.Kind, Size: in.Attr.Size,
		Atime: in.Attr.Atime, Mtime: in.Attr.Mtime, Ctime: in.Attr.Ctime,
		Mode: in.Attr.Mode, Nlink: in.Attr.Nlink, Uid: in.Attr.Uid, Gid: in.Attr.Gid,
	}
	if in.Kind == KindFile {
		for idx, b := range in.Blocks {
			if b.RecordID == nil {
				continue
			}
			w.Blocks = append(w.Blocks, wireBlockRef{Index: idx, RecordID: *b.RecordID})
		}
	} else {
		w.Entries = make(map[string]uint64, len(in.Entries))
		for name, id := range in.Entries {
			w.Entries[name] = uint64(id)
		}
		w.Order = in.order
	}
	buf, err := json.Marshal(w)
	if err != nil {
		panic("cache: encodeInode: " + err.Error())
	}
	return buf
}

func decodeInode(data []byte) (*Inode, error) {
	var w wireInode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	in := &Inode{
		ID:   InodeID(w.ID),
		Kind: w.Kind,
		Attr: Attr{
			Size: w.Size, Atime: w.Atime, Mtime: w.Mtime, Ctime: w.Ctime,
			Mode: w.Mode, Nlink: w.Nlink, Uid: w.Uid, Gid: w.Gid,
		},
	}

	if w.Kind == KindFile {
		in.Blocks = make(map[uint64]*Block, len(w.Blocks))
		for _, ref := range w.Blocks {
			rid := ref.RecordID
			in.Blocks[ref.Index] = &Block{Index: ref.Index, RecordID: &rid}
		}
	} else {
		in.Entries = make(map[string]InodeID, len(w.Entries))
		for name, id := range w.Entries {
			in.Entries[name] = InodeID(id)
		}
		in.order = w.Order
	}

	return in, nil
}

func encodeRoot(r wireRoot) []byte {
	buf, err := json.Marshal(r)
	if err != nil {
		panic("cache: encodeRoot: " + err.Error())
	}
	return buf
}

func decodeRoot(data []byte) (wireRoot, error) {
	var w wireRoot
	err := json.Unmarshal(data, &w)
	return w, err
}
