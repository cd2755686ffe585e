package cache

import "github.com/lvkv/whenfs/common"

// dirtyKind distinguishes the three kinds of work the flusher drains:
// inode writes, block writes, and record deletions.
type dirtyKind uint8

const (
	dirtyInode dirtyKind = iota
	dirtyBlock
	dirtyDelete
)

type dirtyItem struct {
	kind     dirtyKind
	ino      InodeID
	block    uint64 // meaningful when kind == dirtyBlock or a block deletion
	recordID string // meaningful when kind == dirtyDelete
}

// dirtyQueue is the cache's pending-flush queue, backed by the same
// generic linked-list queue the rest of the module reaches for.
type dirtyQueue struct {
	q      common.Queue[dirtyItem]
	queued map[dirtyItem]bool
}

func newDirtyQueue() *dirtyQueue {
	return &dirtyQueue{q: common.NewLinkedListQueue[dirtyItem](), queued: make(map[dirtyItem]bool)}
}

func (d *dirtyQueue) pushInode(ino InodeID) {
	d.push(dirtyItem{kind: dirtyInode, ino: ino})
}

func (d *dirtyQueue) pushBlock(ino InodeID, idx uint64) {
	d.push(dirtyItem{kind: dirtyBlock, ino: ino, block: idx})
}

func (d *dirtyQueue) push(item dirtyItem) {
	if d.queued[item] {
		return
	}
	d.queued[item] = true
	d.q.Push(item)
}

func (d *dirtyQueue) pop() (dirtyItem, bool) {
	if d.q.IsEmpty() {
		return dirtyItem{}, false
	}
	item := d.q.Pop()
	delete(d.queued, item)
	return item, true
}

func (d *dirtyQueue) len() int { return d.q.Len() }

// markDirtyLocked enqueues in itself for flush. Caller holds c.mu.
func (c *Cache) markDirtyLocked(in *Inode) {
	in.dirty = true
	c.dirty.pushInode(in.ID)
}
