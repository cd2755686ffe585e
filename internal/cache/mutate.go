package cache

import "syscall"

// Create allocates a new file inode and links it into parent.
func (c *Cache) Create(parent InodeID, name string, mode uint32, uid, gid uint32) (InodeID, Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(parent, name, mode, uid, gid, KindFile)
}

// Mkdir is Create with kind=directory.
func (c *Cache) Mkdir(parent InodeID, name string, mode uint32, uid, gid uint32) (InodeID, Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(parent, name, mode, uid, gid, KindDir)
}

func (c *Cache) createLocked(parent InodeID, name string, mode uint32, uid, gid uint32, kind Kind) (InodeID, Attr, error) {
	p, ok := c.inodes[parent]
	if !ok {
		return 0, Attr{}, syscall.ENOENT
	}
	if p.Kind != KindDir {
		return 0, Attr{}, syscall.ENOTDIR
	}
	if _, exists := p.Entries[name]; exists {
		return 0, Attr{}, syscall.EEXIST
	}

	id := c.nextInodeID
	c.nextInodeID++

	now := c.clock.Now()
	var in *Inode
	if kind == KindFile {
		in = newFileInode(id, mode, uid, gid, now)
	} else {
		in = newDirInode(id, mode, uid, gid, now)
	}
	c.inodes[id] = in

	p.addEntry(name, id)
	p.Attr.Mtime = now
	p.Attr.Ctime = now
	p.Generation++
	c.markDirtyLocked(p)
	c.markDirtyLocked(in)

	return id, in.Attr, nil
}

// Unlink removes name from parent, destroying the child inode once its
// link count reaches zero and no handle remains open.
func (c *Cache) Unlink(parent InodeID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachLocked(parent, name, KindFile)
}

// Rmdir removes an empty child directory named name from parent.
func (c *Cache) Rmdir(parent InodeID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.inodes[parent]
	if !ok {
		return syscall.ENOENT
	}
	child, ok := p.Entries[name]
	if !ok {
		return syscall.ENOENT
	}
	in, ok := c.inodes[child]
	if !ok {
		return syscall.ENOENT
	}
	if in.Kind != KindDir {
		return syscall.ENOTDIR
	}
	if len(in.Entries) != 0 {
		return syscall.ENOTEMPTY
	}

	return c.detachLocked(parent, name, KindDir)
}

func (c *Cache) detachLocked(parent InodeID, name string, expect Kind) error {
	p, ok := c.inodes[parent]
	if !ok {
		return syscall.ENOENT
	}
	if p.Kind != KindDir {
		return syscall.ENOTDIR
	}
	child, ok := p.Entries[name]
	if !ok {
		return syscall.ENOENT
	}
	in, ok := c.inodes[child]
	if !ok {
		return syscall.ENOENT
	}
	if expect == KindFile && in.Kind != KindFile {
		return syscall.EISDIR
	}
	if expect == KindDir && in.Kind != KindDir {
		return syscall.ENOTDIR
	}

	p.removeEntry(name)
	now := c.clock.Now()
	p.Attr.Mtime = now
	p.Attr.Ctime = now
	c.markDirtyLocked(p)

	in.Attr.Nlink--
	if in.Attr.Nlink == 0 && in.OpenCount == 0 {
		c.destroyLocked(in)
	} else {
		c.markDirtyLocked(in)
	}

	return nil
}

// destroyLocked removes in from the inode table and enqueues deletion
// of its backing records. Caller holds c.mu.
func (c *Cache) destroyLocked(in *Inode) {
	delete(c.inodes, in.ID)
	if id, ok := c.identity[in.ID]; ok {
		c.dirty.push(dirtyItem{kind: dirtyDelete, ino: in.ID, recordID: id})
		delete(c.identity, in.ID)
	}
	for idx, b := range in.Blocks {
		if b.RecordID != nil {
			c.dirty.push(dirtyItem{kind: dirtyDelete, ino: in.ID, block: idx, recordID: *b.RecordID})
		}
	}
}

// Rename detaches name from oldParent and re-attaches it as newName
// under newParent, overwriting an existing file target.
func (c *Cache) Rename(oldParent InodeID, oldName string, newParent InodeID, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.inodes[oldParent]
	if !ok || op.Kind != KindDir {
		return syscall.ENOTDIR
	}
	np, ok := c.inodes[newParent]
	if !ok || np.Kind != KindDir {
		return syscall.ENOTDIR
	}
	child, ok := op.Entries[oldName]
	if !ok {
		return syscall.ENOENT
	}

	if existing, exists := np.Entries[newName]; exists {
		existingIn, ok := c.inodes[existing]
		if ok && existingIn.Kind == KindDir {
			return syscall.EISDIR
		}
		np.removeEntry(newName)
		if ok {
			existingIn.Attr.Nlink--
			if existingIn.Attr.Nlink == 0 && existingIn.OpenCount == 0 {
				c.destroyLocked(existingIn)
			}
		}
	}

	op.removeEntry(oldName)
	np.addEntry(newName, child)

	now := c.clock.Now()
	op.Attr.Mtime, op.Attr.Ctime = now, now
	np.Attr.Mtime, np.Attr.Ctime = now, now
	c.markDirtyLocked(op)
	if newParent != oldParent {
		c.markDirtyLocked(np)
	}

	return nil
}

// Open records a new file-handle reference on ino; Release drops one.
func (c *Cache) Open(ino InodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inodes[ino]
	if !ok {
		return syscall.ENOENT
	}
	in.OpenCount++
	return nil
}

func (c *Cache) Release(ino InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inodes[ino]
	if !ok {
		return
	}
	in.OpenCount--
	if in.OpenCount <= 0 && in.Attr.Nlink == 0 {
		c.destroyLocked(in)
	}
}
