package cache

import (
	"context"
	"syscall"

	"github.com/lvkv/whenfs/internal/record"
)

// Read implements the read path: look up the inode, fault in any
// missing blocks covering [off, off+len), splice, return. The cache
// lock is released while any storage I/O for missing blocks is in
// flight and retaken to install the result.
func (c *Cache) Read(ctx context.Context, ino InodeID, off int64, length int) ([]byte, error) {
	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil, syscall.ENOENT
	}
	if in.Kind != KindFile {
		c.mu.Unlock()
		return nil, syscall.EISDIR
	}

	size := in.Attr.Size
	if uint64(off) >= size {
		c.mu.Unlock()
		return nil, nil
	}
	end := off + int64(length)
	if uint64(end) > size {
		end = int64(size)
	}

	firstBlock := uint64(off) / uint64(c.blockSize)
	lastBlock := (uint64(end) - 1) / uint64(c.blockSize)

	var missing []uint64
	for idx := firstBlock; idx <= lastBlock; idx++ {
		if b, ok := in.Blocks[idx]; !ok || (b.Data == nil && b.RecordID != nil) {
			missing = append(missing, idx)
		}
	}
	c.mu.Unlock()

	// Fault in missing blocks without holding the lock: resolve which
	// record backs each one from the inode's own block chain, which we
	// snapshot above; any concurrent write that touches the same index
	// wins the lock back first and its installation is authoritative.
	fetched := make(map[uint64][]byte, len(missing))
	for _, idx := range missing {
		c.mu.Lock()
		in, ok := c.inodes[ino]
		if !ok {
			c.mu.Unlock()
			return nil, syscall.ENOENT
		}
		var recID *string
		if b, ok := in.Blocks[idx]; ok && b.RecordID != nil {
			recID = b.RecordID
		}
		c.mu.Unlock()

		if recID == nil {
			fetched[idx] = nil // not yet flushed anywhere: reads as zero.
			continue
		}

		rec, err := c.backend.Get(ctx, *recID)
		if err != nil {
			return nil, translateStorageErr(err)
		}
		_, payload, err := record.DecodeFrame(rec.Frame)
		if err != nil {
			return nil, syscall.EIO
		}
		fetched[idx] = payload
	}

	c.mu.Lock()
	in, ok = c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil, syscall.ENOENT
	}
	for idx, data := range fetched {
		if b, already := in.Blocks[idx]; already {
			// A block known only by its record id takes the fetched bytes;
			// one a concurrent write filled in first keeps its own.
			if b.Data == nil && !b.Dirty {
				b.Data = data
			}
			continue
		}
		in.Blocks[idx] = &Block{Index: idx, Data: data}
	}

	out := make([]byte, 0, end-off)
	for pos := off; pos < end; {
		idx := uint64(pos) / uint64(c.blockSize)
		offInBlock := uint64(pos) % uint64(c.blockSize)
		b := in.Blocks[idx]
		var data []byte
		if b != nil {
			data = b.Data
		}
		avail := uint64(len(data))
		take := uint64(c.blockSize) - offInBlock
		if remaining := uint64(end - pos); take > remaining {
			take = remaining
		}
		if offInBlock >= avail {
			out = append(out, make([]byte, take)...)
		} else {
			n := avail - offInBlock
			if n > take {
				n = take
			}
			out = append(out, data[offInBlock:offInBlock+n]...)
			if n < take {
				out = append(out, make([]byte, take-n)...)
			}
		}
		pos += int64(take)
	}
	c.mu.Unlock()

	return out, nil
}

// Write implements the write path: ensure target blocks are resident
// (reading in partial edge blocks first), overwrite, mark dirty,
// extend size, enqueue for flush.
func (c *Cache) Write(ctx context.Context, ino InodeID, off int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	// Fault in the edge blocks before taking the write lock for the
	// mutation itself, same read-without-lock discipline as Read.
	firstBlock := uint64(off) / uint64(c.blockSize)
	lastBlock := uint64(off+int64(len(buf))-1) / uint64(c.blockSize)
	if _, err := c.Read(ctx, ino, int64(firstBlock)*int64(c.blockSize), c.blockSize); err != nil && err != syscall.ENOENT {
		// Best-effort warm of the first edge block; errors here are not
		// fatal to the write since a full-block write doesn't need it.
	}
	if lastBlock != firstBlock {
		c.Read(ctx, ino, int64(lastBlock)*int64(c.blockSize), c.blockSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return 0, syscall.ENOENT
	}
	if in.Kind != KindFile {
		return 0, syscall.EISDIR
	}

	for pos := 0; pos < len(buf); {
		abs := off + int64(pos)
		idx := uint64(abs) / uint64(c.blockSize)
		offInBlock := int(uint64(abs) % uint64(c.blockSize))

		b, ok := in.Blocks[idx]
		if !ok {
			b = &Block{Index: idx}
			in.Blocks[idx] = b
		}
		need := offInBlock + (len(buf) - pos)
		if need > c.blockSize {
			need = c.blockSize
		}
		if len(b.Data) < need {
			grown := make([]byte, need)
			copy(grown, b.Data)
			b.Data = grown
		}
		n := copy(b.Data[offInBlock:], buf[pos:])
		b.Dirty = true
		c.dirty.pushBlock(ino, idx)
		pos += n
	}

	newSize := uint64(off) + uint64(len(buf))
	if newSize > in.Attr.Size {
		in.Attr.Size = newSize
	}
	in.Attr.Mtime = c.clock.Now()
	in.Attr.Ctime = in.Attr.Mtime
	in.Generation++
	c.markDirtyLocked(in)

	return len(buf), nil
}

func translateStorageErr(err error) error {
	return syscall.EIO
}
