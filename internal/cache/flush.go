package cache

import (
	"context"
	"time"

	"github.com/lvkv/whenfs/internal/logger"
	"github.com/lvkv/whenfs/internal/metrics"
	"github.com/lvkv/whenfs/internal/record"
	"github.com/lvkv/whenfs/internal/storage"
)

// FlushInterval is how often the background flusher wakes to drain the
// dirty queue even if nothing triggered an immediate flush.
const FlushInterval = 2 * time.Second

// Run starts the background flusher and blocks until ctx is canceled,
// at which point it makes one final drain attempt before returning.
// Mirrors the teacher's periodic-background-task shape, adapted to
// drain a work queue instead of sweeping stale temporary objects.
// interval <= 0 falls back to FlushInterval.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = FlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainOnce(context.Background())
			return
		case <-ticker.C:
			c.drainOnce(ctx)
		}
	}
}

// dirtyLen reports the current dirty-queue depth for metrics.
func (c *Cache) dirtyLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty.len()
}

// Flush blocks until every dirty object owned by ino (and whatever
// ancestor updates that required) has drained, or a terminal error
// surfaces. Used to implement flush/fsync upcalls.
func (c *Cache) Flush(ctx context.Context, ino InodeID) error {
	for {
		c.mu.Lock()
		in, ok := c.inodes[ino]
		stillDirty := ok && in.dirty
		if !stillDirty && ok {
			for _, b := range in.Blocks {
				if b.Dirty {
					stillDirty = true
					break
				}
			}
		}
		c.mu.Unlock()

		if !ok || !stillDirty {
			return nil
		}
		if err := c.drainOnce(ctx); err != nil {
			return err
		}
	}
}

// drainOnce pops every item currently queued and flushes it: new blocks
// before their owning inode, then inode updates, then deletions. Inodes
// are written in queue order, so a directory can be written before a
// child it names (createLocked queues the parent first); a directory
// record names children by inode number only, not by record id. A
// failure re-queues the item with the storage
// backend's own retry/backoff already exhausted, so it surfaces here
// rather than looping forever.
func (c *Cache) drainOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.FlushLatency.Observe(time.Since(start).Seconds())
		metrics.DirtyQueueDepth.Set(float64(c.dirtyLen()))
	}()

	c.mu.Lock()
	batch := make([]dirtyItem, 0, c.dirty.len())
	for {
		item, ok := c.dirty.pop()
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	c.mu.Unlock()

	// Blocks first, then inodes, then deletions, so a block record
	// exists before the inode that references it is written.
	var blocks, inodes, deletes []dirtyItem
	for _, item := range batch {
		switch item.kind {
		case dirtyBlock:
			blocks = append(blocks, item)
		case dirtyInode:
			inodes = append(inodes, item)
		case dirtyDelete:
			deletes = append(deletes, item)
		}
	}

	var firstErr error
	for _, item := range blocks {
		if err := c.flushBlock(ctx, item.ino, item.block); err != nil {
			c.requeue(item, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, item := range inodes {
		if err := c.flushInode(ctx, item.ino); err != nil {
			c.requeue(item, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, item := range deletes {
		if err := c.backend.Delete(ctx, item.recordID); err != nil {
			c.requeue(item, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		logger.Warnf("cache: flush batch completed with errors: %v", firstErr)
	}
	return firstErr
}

// requeue puts a failed flush item back on the dirty queue. The
// backend has already absorbed transient failures internally via its
// own retry policy, so anything reaching here is a RemoteUnavailableError
// (or a local error); re-queueing lets the next periodic drain retry it.
func (c *Cache) requeue(item dirtyItem, err error) {
	c.mu.Lock()
	c.dirty.push(item)
	c.mu.Unlock()
}

func (c *Cache) flushBlock(ctx context.Context, ino InodeID, idx uint64) error {
	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil // inode already destroyed; nothing to flush.
	}
	b, ok := in.Blocks[idx]
	if !ok || !b.Dirty {
		c.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), b.Data...)
	existingID := b.RecordID
	c.mu.Unlock()

	frames := record.EncodeChain(record.RoleBlock, data)
	frame := frames[0]

	var newID string
	var err error
	if existingID != nil {
		err = c.backend.Update(ctx, *existingID, frame, nil)
		newID = *existingID
	} else {
		newID, err = c.backend.Put(ctx, record.RoleBlock, frame, nil)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if in, ok := c.inodes[ino]; ok {
		if b, ok := in.Blocks[idx]; ok {
			b.Dirty = false
			b.RecordID = &newID
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) flushInode(ctx context.Context, ino InodeID) error {
	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	payload := encodeInode(in)
	existingID, hadID := c.identity[ino]
	role := in.roleTag()
	c.mu.Unlock()

	var oldHead string
	if hadID {
		oldHead = existingID
	}
	newID, err := c.writeChain(ctx, oldHead, role, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if in, ok := c.inodes[ino]; ok {
		in.dirty = false
	}
	c.identity[ino] = newID
	shouldFlushRoot := ino == RootInodeID
	c.mu.Unlock()

	if shouldFlushRoot {
		return c.flushRoot(ctx, newID)
	}
	return nil
}

func (c *Cache) flushRoot(ctx context.Context, inodeTableID string) error {
	c.mu.Lock()
	payload := encodeRoot(wireRoot{
		FormatVersion: record.FormatVersion,
		BlockSize:     c.blockSize,
		RootInode:     uint64(RootInodeID),
		InodeTableID:  inodeTableID,
	})
	existingID := c.rootRecordID
	c.mu.Unlock()

	newID, err := c.writeChain(ctx, existingID, record.RoleRoot, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rootRecordID = newID
	c.mu.Unlock()
	return nil
}

// writeChain frames payload into one or more records and writes the
// chain to the backend, reusing as many of oldHead's existing record
// ids as will still fit (via Update) and discarding any excess once the
// new chain is shorter. oldHead == "" means there is no prior chain.
// Links are written tail-first so each record's Next pointer is known
// before the record itself is created or updated.
func (c *Cache) writeChain(ctx context.Context, oldHead string, role record.Role, payload []byte) (string, error) {
	frames := record.EncodeChain(role, payload)

	var oldIDs []string
	if oldHead != "" {
		var err error
		oldIDs, err = chainIDs(ctx, c.backend, oldHead)
		if err != nil {
			return "", err
		}
	}

	newIDs := make([]string, len(frames))
	var nextID *string
	for i := len(frames) - 1; i >= 0; i-- {
		var id string
		var err error
		if i < len(oldIDs) {
			id = oldIDs[i]
			err = c.backend.Update(ctx, id, frames[i], nextID)
		} else {
			id, err = c.backend.Put(ctx, role, frames[i], nextID)
		}
		if err != nil {
			return "", err
		}
		newIDs[i] = id
		next := id
		nextID = &next
	}

	for i := len(frames); i < len(oldIDs); i++ {
		if err := c.backend.Delete(ctx, oldIDs[i]); err != nil {
			logger.Warnf("cache: failed to delete stale chain link %s: %v", oldIDs[i], err)
		}
	}

	return newIDs[0], nil
}

func chainIDs(ctx context.Context, backend storage.Backend, headID string) ([]string, error) {
	var ids []string
	id := headID
	for id != "" {
		rec, err := backend.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if rec.Next == nil {
			break
		}
		id = *rec.Next
	}
	return ids, nil
}

// RootRecordID returns the volume's root record id, valid once at
// least one flush has occurred.
func (c *Cache) RootRecordID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rootRecordID
}
