package fsadapter

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/lvkv/whenfs/common"
	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/metrics"
)

func (fs *FileSystem) StatFS(_ context.Context, op *fuseops.StatFSOp) (err error) {
	defer metrics.ObserveOp(common.OpStatFS, time.Now())(&err)
	return nil
}

func (fs *FileSystem) LookUpInode(_ context.Context, op *fuseops.LookUpInodeOp) (err error) {
	defer metrics.ObserveOp(common.OpLookUpInode, time.Now())(&err)
	ino, attr, err := fs.cache.Lookup(cache.InodeID(op.Parent), op.Name)
	if err != nil {
		return err
	}
	op.Entry = childEntry(ino, attr)
	return nil
}

func (fs *FileSystem) GetInodeAttributes(_ context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	defer metrics.ObserveOp(common.OpGetInodeAttributes, time.Now())(&err)
	attr, err := fs.cache.GetAttr(cache.InodeID(op.Inode))
	if err != nil {
		return err
	}
	op.Attributes = toAttr(attr)
	return nil
}

func (fs *FileSystem) SetInodeAttributes(_ context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	defer metrics.ObserveOp(common.OpSetInodeAttributes, time.Now())(&err)
	var mode *uint32
	if op.Mode != nil {
		m := uint32(*op.Mode)
		mode = &m
	}
	attr, err := fs.cache.SetAttr(cache.InodeID(op.Inode), op.Size, mode)
	if err != nil {
		return err
	}
	op.Attributes = toAttr(attr)
	return nil
}

// ForgetInode is a no-op: the cache destroys an inode once its link
// count and open-handle count both reach zero, regardless of whether
// the kernel has forgotten its dentry.
func (fs *FileSystem) ForgetInode(_ context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

func (fs *FileSystem) BatchForget(_ context.Context, op *fuseops.BatchForgetOp) error {
	return nil
}

func (fs *FileSystem) MkDir(_ context.Context, op *fuseops.MkDirOp) (err error) {
	defer metrics.ObserveOp(common.OpMkDir, time.Now())(&err)
	mode := uint32(op.Mode | os.ModeDir)
	ino, attr, err := fs.cache.Mkdir(cache.InodeID(op.Parent), op.Name, mode, 0, 0)
	if err != nil {
		return err
	}
	op.Entry = childEntry(ino, attr)
	return nil
}

// MkNode only supports plain regular files; device and fifo nodes are
// out of scope for a calendar-backed filesystem.
func (fs *FileSystem) MkNode(_ context.Context, op *fuseops.MkNodeOp) (err error) {
	defer metrics.ObserveOp(common.OpMkNode, time.Now())(&err)
	if !op.Mode.IsRegular() {
		return syscall.ENOSYS
	}
	ino, attr, err := fs.cache.Create(cache.InodeID(op.Parent), op.Name, uint32(op.Mode), 0, 0)
	if err != nil {
		return err
	}
	op.Entry = childEntry(ino, attr)
	return nil
}

func (fs *FileSystem) CreateFile(_ context.Context, op *fuseops.CreateFileOp) (err error) {
	defer metrics.ObserveOp(common.OpCreateFile, time.Now())(&err)
	ino, attr, err := fs.cache.Create(cache.InodeID(op.Parent), op.Name, uint32(op.Mode), 0, 0)
	if err != nil {
		return err
	}
	if err = fs.cache.Open(ino); err != nil {
		return err
	}
	op.Entry = childEntry(ino, attr)
	op.Handle = fs.allocHandle()
	fs.mu.Lock()
	fs.fileHandle[op.Handle] = ino
	fs.mu.Unlock()
	return nil
}

// CreateLink and CreateSymlink are not supported: every name in WhenFS
// maps to exactly one inode chain, so hard links and symlinks have no
// representation in the calendar record model.
func (fs *FileSystem) CreateLink(_ context.Context, op *fuseops.CreateLinkOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) CreateSymlink(_ context.Context, op *fuseops.CreateSymlinkOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) ReadSymlink(_ context.Context, op *fuseops.ReadSymlinkOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) Rename(_ context.Context, op *fuseops.RenameOp) (err error) {
	defer metrics.ObserveOp(common.OpRename, time.Now())(&err)
	return fs.cache.Rename(cache.InodeID(op.OldParent), op.OldName, cache.InodeID(op.NewParent), op.NewName)
}

func (fs *FileSystem) RmDir(_ context.Context, op *fuseops.RmDirOp) (err error) {
	defer metrics.ObserveOp(common.OpRmDir, time.Now())(&err)
	return fs.cache.Rmdir(cache.InodeID(op.Parent), op.Name)
}

func (fs *FileSystem) Unlink(_ context.Context, op *fuseops.UnlinkOp) (err error) {
	defer metrics.ObserveOp(common.OpUnlink, time.Now())(&err)
	return fs.cache.Unlink(cache.InodeID(op.Parent), op.Name)
}
